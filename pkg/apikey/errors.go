package apikey

import "github.com/go-faster/errors"

var (
	// ErrInvalidOptions is wrapped by every Options validation failure.
	ErrInvalidOptions = errors.New("invalid api key options")

	// ErrNoService is returned when a key reaches the Service path but no
	// Service can be resolved for the scheme. It is a configuration error and
	// is only turned into a Result by an AuthenticationFailed hook.
	ErrNoService = errors.New("either Events.ValidateKey must set a result, " +
		"Options.NewService must be set, or a ServiceFactory must be registered")

	// ErrInvalidKey is the failure reported when the Service does not recognize
	// the key or returns a record for a different key.
	ErrInvalidKey = errors.New("invalid API key provided by Service")

	// ErrNoPrincipal is the failure reported when the AuthenticationSucceeded
	// hook rejects the principal without setting a result.
	ErrNoPrincipal = errors.New("no authenticated principal set")

	ErrSchemeExists  = errors.New("scheme already registered")
	ErrUnknownScheme = errors.New("scheme not registered")
)

// ParseError is the failure reported when an Extractor fails.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "error parsing api key: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }
