package apikey

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
)

// Events lets the embedding application observe or override each stage of a
// scheme. Embed NopEvents to implement only the hooks you need.
//
// A hook returning an error aborts the attempt the same way a failing
// Service does: the error is offered to AuthenticationFailed and returned
// to the caller if that hook sets no result.
type Events interface {
	// ValidateKey runs before the Service. Setting a result, or an
	// authenticated Principal, skips the Service entirely.
	ValidateKey(ctx context.Context, c *ValidateKeyContext) error

	// AuthenticationSucceeded runs after the Service accepted the key.
	AuthenticationSucceeded(ctx context.Context, c *SucceededContext) error

	// AuthenticationFailed runs when any stage returned an error.
	AuthenticationFailed(ctx context.Context, c *FailedContext) error

	// HandleChallenge runs before the WWW-Authenticate header is written.
	HandleChallenge(ctx context.Context, c *ChallengeContext) error

	// HandleForbidden runs before the default 403 response.
	HandleForbidden(ctx context.Context, c *ForbiddenContext) error
}

// NopEvents implements Events with hooks that do nothing.
type NopEvents struct{}

var _ Events = NopEvents{}

func (NopEvents) ValidateKey(context.Context, *ValidateKeyContext) error           { return nil }
func (NopEvents) AuthenticationSucceeded(context.Context, *SucceededContext) error { return nil }
func (NopEvents) AuthenticationFailed(context.Context, *FailedContext) error       { return nil }
func (NopEvents) HandleChallenge(context.Context, *ChallengeContext) error         { return nil }
func (NopEvents) HandleForbidden(context.Context, *ForbiddenContext) error         { return nil }

// BaseContext carries what every hook sees. Options must be treated as
// read-only.
type BaseContext struct {
	Request *http.Request
	Scheme  Scheme
	Options *Options
}

// ValidateKeyContext is passed to Events.ValidateKey.
type ValidateKeyContext struct {
	BaseContext
	resultHolder

	// Key is the candidate key read from the request.
	Key string

	// Principal may be set to an authenticated principal instead of calling
	// one of the result methods; the attempt then succeeds with it.
	Principal *Principal
}

// ValidationSucceeded builds a principal for ownerName and claims and
// succeeds with it.
func (c *ValidateKeyContext) ValidationSucceeded(ownerName string, claims ...Claim) {
	c.Principal = NewPrincipal(c.Scheme.Name, ownerName, claims)
	c.succeed(c.Principal)
}

// ValidationFailed fails with message, or makes no decision when message is
// blank.
func (c *ValidateKeyContext) ValidationFailed(message string) {
	if isBlank(message) {
		c.NoResult()
		return
	}
	c.Fail(errors.New(message))
}

// ValidationFailedErr fails with err.
func (c *ValidateKeyContext) ValidationFailedErr(err error) {
	c.Fail(err)
}

// Success succeeds with the current Principal, or fails with ErrNoPrincipal
// when it is not authenticated.
func (c *ValidateKeyContext) Success() {
	c.succeed(c.Principal)
}

// SucceededContext is passed to Events.AuthenticationSucceeded.
type SucceededContext struct {
	BaseContext
	resultHolder

	// Principal is the identity built from the validated key. Setting it to
	// nil without setting a result fails the attempt with ErrNoPrincipal.
	Principal *Principal
}

// RejectPrincipal clears the principal.
func (c *SucceededContext) RejectPrincipal() {
	c.Principal = nil
}

// Success succeeds with the current Principal, or fails with ErrNoPrincipal
// when it is not authenticated.
func (c *SucceededContext) Success() {
	c.succeed(c.Principal)
}

// FailedContext is passed to Events.AuthenticationFailed.
type FailedContext struct {
	BaseContext
	resultHolder

	// Err is the error that aborted the attempt.
	Err error
}

// responseContext is shared by the challenge and forbidden hooks.
type responseContext struct {
	BaseContext

	Response http.ResponseWriter
	handled  bool
}

// Handled marks the response as written by the hook, suppressing the
// default behaviour.
func (c *responseContext) Handled() { c.handled = true }

// IsHandled reports whether Handled was called.
func (c *responseContext) IsHandled() bool { return c.handled }

// ChallengeContext is passed to Events.HandleChallenge.
type ChallengeContext struct {
	responseContext

	// Failure is the failure of the preceding authentication, if any.
	Failure error
}

// ForbiddenContext is passed to Events.HandleForbidden.
type ForbiddenContext struct {
	responseContext
}
