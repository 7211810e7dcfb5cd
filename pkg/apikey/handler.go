package apikey

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/xenking/apikey-auth/pkg/apikey"

// Scheme identifies a registered scheme.
type Scheme struct {
	Name        string
	DisplayName string
}

// HandlerConfig holds everything a Handler needs.
type HandlerConfig struct {
	Scheme    Scheme
	Extractor Extractor
	Options   Options

	// Resolve resolves the Service per request. Nil means
	// Locator(nil, Options.NewService).
	Resolve ResolveFunc

	// TracerProvider and MeterProvider default to the global providers.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Handler runs a single scheme. It holds no per-request state and is safe
// for concurrent use.
type Handler struct {
	scheme  Scheme
	extract Extractor
	opts    Options
	resolve ResolveFunc
	events  Events

	tracer  trace.Tracer
	results metric.Int64Counter
}

// NewHandler validates cfg.Options and returns a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Extractor == nil {
		return nil, errors.New("extractor is nil")
	}
	if cfg.Scheme.Name == "" {
		cfg.Scheme.Name = DefaultScheme
	}
	cfg.Options.SchemeName = cfg.Scheme.Name
	if err := cfg.Options.Validate(cfg.Resolve != nil); err != nil {
		return nil, errors.Wrapf(err, "scheme %q", cfg.Scheme.Name)
	}
	if cfg.Resolve == nil {
		cfg.Resolve = Locator(nil, cfg.Options.NewService)
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	results, err := cfg.MeterProvider.Meter(instrumentationName).Int64Counter("apikey.authenticate.results",
		metric.WithDescription("API key authentication attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create results counter")
	}

	return &Handler{
		scheme:  cfg.Scheme,
		extract: cfg.Extractor,
		opts:    cfg.Options,
		resolve: cfg.Resolve,
		events:  cfg.Options.events(),
		tracer:  cfg.TracerProvider.Tracer(instrumentationName),
		results: results,
	}, nil
}

// Scheme returns the scheme this handler runs.
func (h *Handler) Scheme() Scheme { return h.scheme }

// Options returns a copy of the scheme options.
func (h *Handler) Options() Options { return h.opts }

// Authenticate runs the scheme against r.
//
// A request without a key yields NoResult. A returned error means a stage
// failed (including ErrNoService) and the AuthenticationFailed hook did not
// replace it with a result; hosts usually answer such requests with 500.
func (h *Handler) Authenticate(r *http.Request) (res Result, err error) {
	ctx, span := h.tracer.Start(r.Context(), "apikey.Authenticate",
		trace.WithAttributes(attribute.String("apikey.scheme", h.scheme.Name)),
	)
	defer func() {
		h.record(ctx, span, res, err)
		span.End()
	}()
	r = r.WithContext(ctx)
	lg := zctx.From(ctx).With(zap.String("scheme", h.scheme.Name))

	if h.opts.IgnoreIfEndpointAllowsAnonymous && AllowsAnonymous(ctx) {
		lg.Debug("Endpoint allows anonymous access, request was not authenticated")
		return NoResult(), nil
	}

	key, err := h.extract.Extract(r, h.scheme.Name, &h.opts)
	if err != nil {
		lg.Error("Parse API key", zap.Error(err))
		return Fail(&ParseError{Err: err}), nil
	}
	if isBlank(key) {
		lg.Info("No API key found in the request")
		return NoResult(), nil
	}

	res, err = h.authenticateKey(ctx, r, key, lg)
	if err == nil {
		return res, nil
	}

	fc := &FailedContext{BaseContext: h.base(r), Err: err}
	if hookErr := h.events.AuthenticationFailed(ctx, fc); hookErr != nil {
		return Result{}, errors.Wrap(hookErr, "authentication failed hook")
	}
	if fc.result != nil {
		return *fc.result, nil
	}
	return Result{}, err
}

func (h *Handler) authenticateKey(ctx context.Context, r *http.Request, key string, lg *zap.Logger) (Result, error) {
	vc := &ValidateKeyContext{BaseContext: h.base(r), Key: key}
	if err := h.events.ValidateKey(ctx, vc); err != nil {
		return Result{}, errors.Wrap(err, "validate key hook")
	}
	if vc.result != nil {
		return *vc.result, nil
	}
	if vc.Principal.Authenticated() {
		vc.Success()
		return *vc.result, nil
	}

	cred, err := h.validate(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if cred == nil || (!h.opts.LegacyIgnoreExtraKeyCheck && !strings.EqualFold(cred.Key(), key)) {
		lg.Error("Invalid API key provided by Service")
		return Fail(ErrInvalidKey), nil
	}

	sc := &SucceededContext{
		BaseContext: h.base(r),
		Principal:   NewPrincipal(h.scheme.Name, cred.OwnerName(), cred.Claims()),
	}
	if err := h.events.AuthenticationSucceeded(ctx, sc); err != nil {
		return Result{}, errors.Wrap(err, "authentication succeeded hook")
	}
	if sc.result != nil {
		return *sc.result, nil
	}
	if sc.Principal.Authenticated() {
		return Success(sc.Principal), nil
	}

	lg.Error("No authenticated principal set")
	return Fail(ErrNoPrincipal), nil
}

// validate resolves a Service and calls it once, closing it afterwards.
func (h *Handler) validate(ctx context.Context, key string) (_ APIKey, err error) {
	svc, err := h.resolve(ctx, h.scheme.Name)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, ErrNoService
	}
	if c, ok := svc.(io.Closer); ok {
		defer func() {
			if closeErr := c.Close(); closeErr != nil && err == nil {
				err = errors.Wrap(closeErr, "close service")
			}
		}()
	}

	cred, err := svc.Authenticate(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "authenticate key")
	}
	return cred, nil
}

// Challenge prepares a 401 response for this scheme: it runs the
// HandleChallenge hook and, unless the hook handled the response or the
// header is suppressed, adds the WWW-Authenticate header. It does not write
// the status code. handled reports whether the hook took over the response.
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request, failure error) (handled bool, err error) {
	cc := &ChallengeContext{
		responseContext: responseContext{BaseContext: h.base(r), Response: w},
		Failure:         failure,
	}
	if err := h.events.HandleChallenge(r.Context(), cc); err != nil {
		return false, errors.Wrap(err, "handle challenge hook")
	}
	if cc.IsHandled() {
		return true, nil
	}
	if !h.opts.SuppressChallengeHeader {
		w.Header().Add("WWW-Authenticate", h.ChallengeHeader())
	}
	return false, nil
}

// Forbid runs the HandleForbidden hook. When the hook does not handle the
// response the caller writes the default 403.
func (h *Handler) Forbid(w http.ResponseWriter, r *http.Request) (handled bool, err error) {
	fc := &ForbiddenContext{
		responseContext: responseContext{BaseContext: h.base(r), Response: w},
	}
	if err := h.events.HandleForbidden(r.Context(), fc); err != nil {
		return false, errors.Wrap(err, "handle forbidden hook")
	}
	return fc.IsHandled(), nil
}

// ChallengeHeader returns the WWW-Authenticate value for this scheme.
func (h *Handler) ChallengeHeader() string {
	name := h.scheme.Name
	if h.opts.LegacyUseKeyNameAsSchemeNameInChallenge {
		name = h.opts.KeyName
	}
	return fmt.Sprintf(`%s realm="%s", charset="UTF-8", in="%s", key_name="%s"`,
		name, h.opts.Realm, h.extract.Location(), h.opts.KeyName,
	)
}

func (h *Handler) base(r *http.Request) BaseContext {
	opts := h.opts
	return BaseContext{Request: r, Scheme: h.scheme, Options: &opts}
}

func (h *Handler) record(ctx context.Context, span trace.Span, res Result, err error) {
	outcome := res.Outcome().String()
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Failed():
		span.SetStatus(codes.Error, res.Failure().Error())
	}
	span.SetAttributes(attribute.String("apikey.outcome", outcome))
	h.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String("apikey.scheme", h.scheme.Name),
		attribute.String("apikey.outcome", outcome),
	))
}
