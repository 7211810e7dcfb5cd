package keyservice

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/apikey-auth/pkg/apikey"
)

const instrumentationName = "github.com/xenking/apikey-auth/internal/keyservice"

// CacheConfig configures CachingService.
type CacheConfig struct {
	// Size is the maximum number of cached keys. Zero means 1024.
	Size int
	// TTL bounds how long a cached answer is served. Zero means one minute.
	TTL time.Duration
	// CacheMisses also caches "unknown key" answers.
	CacheMisses bool

	MeterProvider metric.MeterProvider
}

var _ apikey.Service = (*CachingService)(nil)

// CachingService caches the answers of another Service. Concurrent lookups of
// the same key share one call to the wrapped Service. Errors are not cached.
type CachingService struct {
	next        apikey.Service
	cache       *expirable.LRU[string, cacheEntry]
	group       singleflight.Group
	cacheMisses bool
	lookups     metric.Int64Counter
}

type cacheEntry struct {
	key apikey.APIKey
}

// NewCachingService wraps next with a cache.
func NewCachingService(next apikey.Service, cfg CacheConfig) (*CachingService, error) {
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	lookups, err := cfg.MeterProvider.Meter(instrumentationName).Int64Counter("apikey.cache.lookups",
		metric.WithDescription("API key cache lookups by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create lookups counter")
	}

	return &CachingService{
		next:        next,
		cache:       expirable.NewLRU[string, cacheEntry](cfg.Size, nil, cfg.TTL),
		cacheMisses: cfg.CacheMisses,
		lookups:     lookups,
	}, nil
}

// Authenticate serves key from the cache or asks the wrapped Service. The
// shared lookup is not canceled with ctx, so callers waiting on the same key
// are not failed by another caller going away; each caller still returns as
// soon as its own ctx is done.
func (s *CachingService) Authenticate(ctx context.Context, key string) (apikey.APIKey, error) {
	norm := strings.ToLower(key)
	if e, ok := s.cache.Get(norm); ok {
		s.record(ctx, "hit")
		return e.key, nil
	}
	s.record(ctx, "miss")

	lookupCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(norm, func() (any, error) {
		cred, err := s.next.Authenticate(lookupCtx, key)
		if err != nil {
			return nil, err
		}
		if cred != nil || s.cacheMisses {
			s.cache.Add(norm, cacheEntry{key: cred})
		}
		return cacheEntry{key: cred}, nil
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait for lookup")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(cacheEntry).key, nil
	}
}

// Purge drops every cached answer.
func (s *CachingService) Purge() {
	s.cache.Purge()
}

func (s *CachingService) record(ctx context.Context, result string) {
	s.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("apikey.cache.result", result)))
}
