package apikey

import (
	"strings"

	"github.com/go-faster/errors"
)

// DefaultScheme is the scheme name used when none is given at registration.
const DefaultScheme = "ApiKey"

// Options configures a single scheme. Options are validated at registration
// and must not be modified afterwards.
type Options struct {
	// KeyName is the header or query parameter carrying the key. Required.
	KeyName string

	// Realm is sent in the WWW-Authenticate challenge. Required unless
	// SuppressChallengeHeader is set.
	Realm string

	// SuppressChallengeHeader omits the WWW-Authenticate header on 401.
	SuppressChallengeHeader bool

	// LegacyIgnoreExtraKeyCheck accepts a record from the Service even when its
	// key differs from the submitted one.
	LegacyIgnoreExtraKeyCheck bool

	// LegacyUseKeyNameAsSchemeNameInChallenge uses KeyName instead of the
	// scheme name as the challenge scheme token.
	LegacyUseKeyNameAsSchemeNameInChallenge bool

	// IgnoreIfEndpointAllowsAnonymous skips authentication entirely on
	// endpoints marked with AllowAnonymous.
	IgnoreIfEndpointAllowsAnonymous bool

	// NewService constructs the Service used when no ServiceFactory is
	// registered or the factory returns nil for this scheme.
	NewService func() Service

	// Events receives the scheme hooks. Nil means NopEvents.
	Events Events

	// SchemeName is set by the Registry.
	SchemeName string
}

// Validate reports whether o describes a usable scheme. factoryRegistered
// tells whether a ServiceFactory is available to resolve a Service.
func (o *Options) Validate(factoryRegistered bool) error {
	if !o.SuppressChallengeHeader && strings.TrimSpace(o.Realm) == "" {
		return errors.Wrap(ErrInvalidOptions, "Realm must be set in Options when setting up the authentication")
	}
	if strings.TrimSpace(o.KeyName) == "" {
		return errors.Wrap(ErrInvalidOptions, "KeyName must be set in Options when setting up the authentication")
	}
	if !o.hasEvents() && o.NewService == nil && !factoryRegistered {
		return errors.Wrap(ErrInvalidOptions, ErrNoService.Error())
	}
	return nil
}

func (o *Options) hasEvents() bool {
	switch o.Events.(type) {
	case nil, NopEvents, *NopEvents:
		return false
	default:
		return true
	}
}

func (o *Options) events() Events {
	if o.Events == nil {
		return NopEvents{}
	}
	return o.Events
}
