package apikey

import "github.com/go-faster/errors"

// Outcome is the state of a Result.
type Outcome int

const (
	// OutcomeNone means the scheme made no decision, deferring to other
	// schemes or to a challenge.
	OutcomeNone Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// Result is the outcome of a single authentication attempt.
type Result struct {
	outcome   Outcome
	principal *Principal
	failure   error
}

// Success returns a succeeded Result for p.
func Success(p *Principal) Result {
	return Result{outcome: OutcomeSucceeded, principal: p}
}

// Fail returns a failed Result. A nil err is replaced with a generic one.
func Fail(err error) Result {
	if err == nil {
		err = errors.New("authentication failed")
	}
	return Result{outcome: OutcomeFailed, failure: err}
}

// NoResult returns a Result that makes no decision.
func NoResult() Result {
	return Result{outcome: OutcomeNone}
}

func (r Result) Outcome() Outcome { return r.outcome }
func (r Result) Succeeded() bool  { return r.outcome == OutcomeSucceeded }
func (r Result) Failed() bool     { return r.outcome == OutcomeFailed }
func (r Result) None() bool       { return r.outcome == OutcomeNone }
func (r Result) Failure() error   { return r.failure }

// Principal returns the authenticated principal, or Anonymous.
func (r Result) Principal() *Principal {
	if r.principal == nil {
		return Anonymous()
	}
	return r.principal
}

// resultHolder is embedded in hook contexts that may decide the outcome.
type resultHolder struct {
	result *Result
}

// Result returns the result set by a hook, or nil.
func (h *resultHolder) Result() *Result { return h.result }

// Fail sets a failed result.
func (h *resultHolder) Fail(err error) {
	r := Fail(err)
	h.result = &r
}

// NoResult sets a result that makes no decision.
func (h *resultHolder) NoResult() {
	r := NoResult()
	h.result = &r
}

// succeed sets a succeeded result for p, or fails with ErrNoPrincipal when p
// is not authenticated.
func (h *resultHolder) succeed(p *Principal) {
	if !p.Authenticated() {
		h.Fail(ErrNoPrincipal)
		return
	}
	r := Success(p)
	h.result = &r
}
