package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/apikey-auth/internal/domain/auth"
	"github.com/xenking/apikey-auth/internal/storage/memory"
	"github.com/xenking/apikey-auth/internal/storage/postgres"
	"github.com/xenking/apikey-auth/internal/storage/redis"
	"github.com/xenking/apikey-auth/pkg/health"
)

// keyStore is an opened key repository with its readiness check and cleanup.
type keyStore struct {
	repo  auth.Repository
	check health.CheckFunc
	close func()
}

func openStore(ctx context.Context, lg *zap.Logger, cfg StoreConfig) (*keyStore, error) {
	switch cfg.Backend {
	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if cfg.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, errors.Wrap(err, "run migrations")
			}
		}
		repo := postgres.NewAPIKeyRepository(pool)
		return &keyStore{repo: repo, check: health.PingCheck(repo), close: pool.Close}, nil

	case BackendRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "create redis client")
		}
		repo := redis.NewAPIKeyRepository(client, cfg.RedisPrefix)
		return &keyStore{
			repo:  repo,
			check: health.PingCheck(repo),
			close: func() { _ = client.Close() },
		}, nil

	default:
		infos := memory.Defaults()
		if cfg.KeysFile != "" {
			var err error
			if infos, err = memory.LoadFile(cfg.KeysFile); err != nil {
				return nil, errors.Wrap(err, "load keys file")
			}
		}
		store := memory.New(infos...)
		lg.Info("Loaded in-memory keys", zap.Int("count", store.Len()))
		return &keyStore{repo: store, close: func() {}}, nil
	}
}
