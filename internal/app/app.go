package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/apikey-auth/pkg/health"
	"github.com/xenking/apikey-auth/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store.Backend),
	)

	store, err := openStore(ctx, lg, cfg.Store)
	if err != nil {
		return errors.Wrap(err, "open key store")
	}
	defer store.close()

	healthSvc := health.New()
	healthSvc.Add(health.Liveness, health.Check{
		Name:    "goroutines",
		Timeout: time.Second,
		Func:    health.GoroutineCountCheck(10000),
	})
	if store.check != nil {
		healthSvc.Add(health.Readiness, health.Check{
			Name:    cfg.Store.Backend,
			Timeout: 5 * time.Second,
			Func:    store.check,
		})
	}
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	reg, err := newRegistry(cfg, store.repo, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "register schemes")
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(newRouter(cfg, reg, healthSvc),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("apikey-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.RequestID(),
			httpmiddleware.LogRequests(),
			httpmiddleware.Recovery(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
