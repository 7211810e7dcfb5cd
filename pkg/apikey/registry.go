package apikey

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Registry is the keyed store of configured schemes. Register every scheme
// before serving; registration is not safe for concurrent use, lookups are.
type Registry struct {
	schemes map[string]*Handler
	factory ServiceFactory
	tp      trace.TracerProvider
	mp      metric.MeterProvider
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithServiceFactory registers the factory consulted first when resolving a
// Service for any scheme.
func WithServiceFactory(f ServiceFactory) RegistryOption {
	return func(r *Registry) { r.factory = f }
}

// WithTracerProvider sets the tracer provider passed to every Handler.
func WithTracerProvider(tp trace.TracerProvider) RegistryOption {
	return func(r *Registry) { r.tp = tp }
}

// WithMeterProvider sets the meter provider passed to every Handler.
func WithMeterProvider(mp metric.MeterProvider) RegistryOption {
	return func(r *Registry) { r.mp = mp }
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{schemes: make(map[string]*Handler)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SchemeOption customizes a single registration.
type SchemeOption func(*schemeConfig)

type schemeConfig struct {
	displayName string
	newService  func() Service
}

// WithDisplayName sets the human readable scheme name.
func WithDisplayName(name string) SchemeOption {
	return func(c *schemeConfig) { c.displayName = name }
}

// WithService sets Options.NewService for the scheme, overriding any value
// set by the configure callback.
func WithService(newService func() Service) SchemeOption {
	return func(c *schemeConfig) { c.newService = newService }
}

// AddInHeader registers a scheme reading the key from the KeyName header.
// An empty name registers DefaultScheme.
func (r *Registry) AddInHeader(name string, configure func(*Options), opts ...SchemeOption) error {
	return r.Add(name, InHeader, configure, opts...)
}

// AddInAuthorizationHeader registers a scheme reading the key from the
// Authorization header.
func (r *Registry) AddInAuthorizationHeader(name string, configure func(*Options), opts ...SchemeOption) error {
	return r.Add(name, InAuthorizationHeader, configure, opts...)
}

// AddInQueryParams registers a scheme reading the key from the KeyName query
// parameter.
func (r *Registry) AddInQueryParams(name string, configure func(*Options), opts ...SchemeOption) error {
	return r.Add(name, InQueryParams, configure, opts...)
}

// AddInHeaderOrQueryParams registers a scheme reading the key from the query
// string, a header or the Authorization header.
func (r *Registry) AddInHeaderOrQueryParams(name string, configure func(*Options), opts ...SchemeOption) error {
	return r.Add(name, InHeaderOrQueryParams, configure, opts...)
}

// Add registers a scheme using ex. The options built by configure are
// validated immediately.
func (r *Registry) Add(name string, ex Extractor, configure func(*Options), opts ...SchemeOption) error {
	if name == "" {
		name = DefaultScheme
	}
	if _, ok := r.schemes[name]; ok {
		return errors.Wrapf(ErrSchemeExists, "scheme %q", name)
	}

	var sc schemeConfig
	for _, o := range opts {
		o(&sc)
	}

	var o Options
	if configure != nil {
		configure(&o)
	}
	if sc.newService != nil {
		o.NewService = sc.newService
	}
	o.SchemeName = name
	if err := o.Validate(r.factory != nil); err != nil {
		return errors.Wrapf(err, "scheme %q", name)
	}

	h, err := NewHandler(HandlerConfig{
		Scheme:         Scheme{Name: name, DisplayName: sc.displayName},
		Extractor:      ex,
		Options:        o,
		Resolve:        Locator(r.factory, o.NewService),
		TracerProvider: r.tp,
		MeterProvider:  r.mp,
	})
	if err != nil {
		return err
	}
	r.schemes[name] = h
	return nil
}

// Handler returns the handler registered for name.
func (r *Registry) Handler(name string) (*Handler, error) {
	h, ok := r.schemes[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownScheme, "scheme %q", name)
	}
	return h, nil
}

// Authenticate returns a middleware running the named schemes, in order,
// until one succeeds. With no names it runs DefaultScheme. The principal is
// stored on the request context (see PrincipalFrom).
//
// When no scheme succeeds, routes marked with AllowAnonymous are served with
// the Anonymous principal; all other requests are challenged by every scheme
// and answered with 401. A scheme error is answered with 500.
//
// Authenticate panics if a scheme is not registered.
func (r *Registry) Authenticate(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		names = []string{DefaultScheme}
	}
	handlers := make([]*Handler, 0, len(names))
	for _, name := range names {
		h, err := r.Handler(name)
		if err != nil {
			panic(err)
		}
		handlers = append(handlers, h)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			principal := Anonymous()
			var failure error
			for _, h := range handlers {
				res, err := h.Authenticate(req)
				if err != nil {
					zctx.From(req.Context()).Error("Authentication error",
						zap.String("scheme", h.scheme.Name),
						zap.Error(err),
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if res.Succeeded() {
					principal = res.Principal()
					break
				}
				if res.Failed() && failure == nil {
					failure = res.Failure()
				}
			}

			if principal.Authenticated() || AllowsAnonymous(req.Context()) {
				next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), principal)))
				return
			}
			challenge(w, req, handlers, failure)
		})
	}
}

// RequireClaim returns a middleware forbidding authenticated principals that
// lack a claim of type typ with one of values. With no values any claim of
// type typ is accepted. The 403 is issued through the scheme that
// authenticated the principal, so its HandleForbidden hook applies.
func (r *Registry) RequireClaim(typ string, values ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := PrincipalFrom(req.Context())
			if !p.Authenticated() {
				if AllowsAnonymous(req.Context()) {
					next.ServeHTTP(w, req)
					return
				}
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if hasClaim(p, typ, values) {
				next.ServeHTTP(w, req)
				return
			}

			h, ok := r.schemes[p.Scheme]
			if ok {
				handled, err := h.Forbid(w, req)
				if err != nil {
					zctx.From(req.Context()).Error("Forbid error", zap.String("scheme", p.Scheme), zap.Error(err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if handled {
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// challenge runs the schemes' challenges in order. A hook that handles the
// response ends the loop, since later headers could no longer be sent.
func challenge(w http.ResponseWriter, r *http.Request, handlers []*Handler, failure error) {
	for _, h := range handlers {
		handled, err := h.Challenge(w, r, failure)
		if err != nil {
			zctx.From(r.Context()).Error("Challenge error", zap.String("scheme", h.scheme.Name), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if handled {
			return
		}
	}
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func hasClaim(p *Principal, typ string, values []string) bool {
	if len(values) == 0 {
		_, ok := p.FindFirst(typ)
		return ok
	}
	for _, v := range values {
		if p.HasClaim(typ, v) {
			return true
		}
	}
	return false
}
