package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/apikey-auth/internal/domain/auth"
	"github.com/xenking/apikey-auth/internal/storage/memory"
	"github.com/xenking/apikey-auth/internal/storage/postgres"
	"github.com/xenking/apikey-auth/internal/storage/redis"
)

func main() {
	var (
		databaseURL string
		redisURL    string
		redisPrefix string
		keysFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis URL (or REDIS_URL env)")
	flag.StringVar(&redisPrefix, "redis-prefix", "apikey:", "Redis hash name prefix")
	flag.StringVar(&keysFile, "keys-file", "db/seed/keys.yaml", "path to YAML keys file (optionally .gz)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if databaseURL == "" && redisURL == "" {
		lg.Fatal("no target store: set --database-url/DATABASE_URL or --redis-url/REDIS_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, keysFile, databaseURL, redisURL, redisPrefix); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, keysFile, databaseURL, redisURL, redisPrefix string) error {
	lg.Info("Reading keys file", zap.String("path", keysFile))

	infos, err := memory.LoadFile(keysFile)
	if err != nil {
		return errors.Wrap(err, "load keys file")
	}

	g, ctx := errgroup.WithContext(ctx)
	if databaseURL != "" {
		g.Go(func() error {
			return seedPostgres(ctx, lg.Named("postgres"), databaseURL, infos)
		})
	}
	if redisURL != "" {
		g.Go(func() error {
			return seedRedis(ctx, lg.Named("redis"), redisURL, redisPrefix, infos)
		})
	}
	return g.Wait()
}

func seedPostgres(ctx context.Context, lg *zap.Logger, databaseURL string, infos []*auth.APIKeyInfo) error {
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return upsertAll(ctx, lg, postgres.NewAPIKeyRepository(pool), infos)
}

func seedRedis(ctx context.Context, lg *zap.Logger, redisURL, prefix string, infos []*auth.APIKeyInfo) error {
	lg.Info("Connecting to redis")

	client, err := redis.NewClient(ctx, redisURL)
	if err != nil {
		return errors.Wrap(err, "connect to redis")
	}
	defer func() { _ = client.Close() }()

	return upsertAll(ctx, lg, redis.NewAPIKeyRepository(client, prefix), infos)
}

func upsertAll(ctx context.Context, lg *zap.Logger, store auth.Store, infos []*auth.APIKeyInfo) error {
	lg.Info("Upserting keys", zap.Int("count", len(infos)))

	for _, info := range infos {
		id, err := store.Upsert(ctx, info)
		if err != nil {
			return errors.Wrapf(err, "upsert key owned by %q", info.Owner)
		}

		lg.Info("Upserted key", zap.String("id", id), zap.String("owner", info.Owner))
	}

	return nil
}
