package apikey

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/go-faster/errors"
)

const (
	fakeKeyName    = "X-API-KEY"
	fakeRealm      = "Test Realm"
	fakeKey        = "myrandomfakekey"
	fakeInvalidKey = "<invalid-key>"
	fakeAliasKey   = "ForLegacyIgnoreExtraValidatedApiKeyCheck"
	fakeBrokenKey  = "myrandomfakekey-not-implemented"
	fakeOwner      = "Fake Key"
)

var (
	fakeNameClaim           = Claim{Type: ClaimName, Value: "FakeNameClaim"}
	fakeNameIdentifierClaim = Claim{Type: ClaimNameIdentifier, Value: "FakeNameIdentifierClaim"}
	fakeRoleClaim           = Claim{Type: ClaimRole, Value: "FakeRoleClaim"}

	errFakeNotImplemented = errors.New("not implemented")
)

// fakeService recognizes fakeKey, substitutes fakeKey for fakeAliasKey and
// fails for fakeBrokenKey.
type fakeService struct {
	calls  atomic.Int32
	closed atomic.Int32
	claims []Claim
}

func newFakeService() *fakeService {
	return &fakeService{claims: []Claim{fakeNameClaim, fakeNameIdentifierClaim, fakeRoleClaim}}
}

func (s *fakeService) Authenticate(_ context.Context, key string) (APIKey, error) {
	s.calls.Add(1)
	switch {
	case strings.EqualFold(key, fakeKey):
		return NewKey(fakeKey, fakeOwner, s.claims...), nil
	case strings.EqualFold(key, fakeAliasKey):
		return NewKey(fakeKey, fakeOwner, s.claims...), nil
	case strings.EqualFold(key, fakeBrokenKey):
		return nil, errFakeNotImplemented
	default:
		return nil, nil
	}
}

// closingService records Close calls on its parent.
type closingService struct {
	*fakeService
}

func (s closingService) Close() error {
	s.closed.Add(1)
	return nil
}

// hooks implements Events with optional per-hook functions.
type hooks struct {
	NopEvents

	validateKey func(ctx context.Context, c *ValidateKeyContext) error
	succeeded   func(ctx context.Context, c *SucceededContext) error
	failed      func(ctx context.Context, c *FailedContext) error
	challenge   func(ctx context.Context, c *ChallengeContext) error
	forbidden   func(ctx context.Context, c *ForbiddenContext) error
}

func (h *hooks) ValidateKey(ctx context.Context, c *ValidateKeyContext) error {
	if h.validateKey == nil {
		return nil
	}
	return h.validateKey(ctx, c)
}

func (h *hooks) AuthenticationSucceeded(ctx context.Context, c *SucceededContext) error {
	if h.succeeded == nil {
		return nil
	}
	return h.succeeded(ctx, c)
}

func (h *hooks) AuthenticationFailed(ctx context.Context, c *FailedContext) error {
	if h.failed == nil {
		return nil
	}
	return h.failed(ctx, c)
}

func (h *hooks) HandleChallenge(ctx context.Context, c *ChallengeContext) error {
	if h.challenge == nil {
		return nil
	}
	return h.challenge(ctx, c)
}

func (h *hooks) HandleForbidden(ctx context.Context, c *ForbiddenContext) error {
	if h.forbidden == nil {
		return nil
	}
	return h.forbidden(ctx, c)
}
