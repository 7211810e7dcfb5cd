package app

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/apikey-auth/internal/domain/auth"
	"github.com/xenking/apikey-auth/internal/keyservice"
	"github.com/xenking/apikey-auth/pkg/apikey"
)

// newRegistry registers the header and query schemes. Both resolve their
// Service through a keyservice.Factory backed by repo.
func newRegistry(cfg *Config, repo auth.Repository, tp trace.TracerProvider, mp metric.MeterProvider) (*apikey.Registry, error) {
	var svc apikey.Service = keyservice.NewRepositoryService(repo)
	if cfg.Cache.Enabled {
		cached, err := keyservice.NewCachingService(svc, keyservice.CacheConfig{
			Size:          cfg.Cache.Size,
			TTL:           cfg.Cache.TTL,
			CacheMisses:   cfg.Cache.CacheMisses,
			MeterProvider: mp,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create cache")
		}
		svc = cached
	}

	factory := keyservice.NewFactory(svc)
	reg := apikey.NewRegistry(
		apikey.WithServiceFactory(factory),
		apikey.WithTracerProvider(tp),
		apikey.WithMeterProvider(mp),
	)

	var events apikey.Events = &sampleEvents{}
	if err := reg.AddInHeader(cfg.HeaderScheme.Name, func(o *apikey.Options) {
		cfg.HeaderScheme.Configure(o)
		o.Events = events
	}, apikey.WithDisplayName("API key in header")); err != nil {
		return nil, errors.Wrap(err, "add header scheme")
	}
	if err := reg.AddInQueryParams(cfg.QueryScheme.Name, func(o *apikey.Options) {
		cfg.QueryScheme.Configure(o)
		o.Events = events
	}, apikey.WithDisplayName("API key in query string")); err != nil {
		return nil, errors.Wrap(err, "add query scheme")
	}
	return reg, nil
}

// sampleEvents logs authentication outcomes and answers 403 with JSON.
type sampleEvents struct {
	apikey.NopEvents
}

func (sampleEvents) AuthenticationSucceeded(ctx context.Context, c *apikey.SucceededContext) error {
	zctx.From(ctx).Debug("Authenticated",
		zap.String("scheme", c.Scheme.Name),
		zap.String("principal", c.Principal.Name()),
	)
	return nil
}

func (sampleEvents) AuthenticationFailed(ctx context.Context, c *apikey.FailedContext) error {
	zctx.From(ctx).Error("Authentication failed",
		zap.String("scheme", c.Scheme.Name),
		zap.Error(c.Err),
	)
	return nil
}

func (sampleEvents) HandleForbidden(_ context.Context, c *apikey.ForbiddenContext) error {
	writeError(c.Response, http.StatusForbidden, "principal lacks the required claim")
	c.Handled()
	return nil
}
