// Command server runs the escrow ledger and project API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/workmesh/workledger/internal/app"
	"github.com/workmesh/workledger/internal/app/cache"
	"github.com/workmesh/workledger/internal/app/httpapi"
	"github.com/workmesh/workledger/internal/app/metrics"
	"github.com/workmesh/workledger/internal/app/services/escrow"
	"github.com/workmesh/workledger/internal/app/storage/postgres"
	"github.com/workmesh/workledger/internal/config"
	"github.com/workmesh/workledger/internal/middleware"
	"github.com/workmesh/workledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).WithField("module", "server")
	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	healthCache := cache.NewHealthCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log.WithField("module", "cache"))
	if healthCache != nil {
		if err := healthCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unreachable, health caching disabled")
			healthCache = nil
		}
		defer healthCache.Close()
	}

	application, err := app.New(stores, app.Options{
		Escrow: escrow.Config{
			PlatformFeeBps: cfg.Escrow.PlatformFeeBps,
			ProcessingFee:  cfg.Escrow.ProcessingFee,
			MaxAmount:      cfg.Escrow.MaxAmount,
		},
		HealthCache:       healthCache,
		ReconcileSchedule: cfg.Escrow.ReconcileSchedule,
		WatchSchedule:     cfg.Projects.WatchSchedule,
	}, log)
	if err != nil {
		return err
	}

	handler, err := httpapi.NewHandler(application, httpapi.Options{}, log.WithField("module", "httpapi"))
	if err != nil {
		return err
	}

	chain := middleware.NewTracingMiddleware(log).Handler(
		middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins).Handler(
			middleware.NewAuthMiddleware([]byte(cfg.Auth.Secret), log, []string{"/health", "/metrics"}).Handler(
				middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log).Handler(
					metrics.InstrumentHandler(handler)))))

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := application.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	return application.Stop(shutdownCtx)
}

// buildStores selects the persistence backend: postgres when a database URL
// is configured, the in-memory store otherwise.
func buildStores(ctx context.Context, cfg config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, using in-memory storage")
		return app.Stores{}, func() {}, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return app.Stores{}, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return app.Stores{}, nil, err
	}

	var opts []postgres.Option
	if cfg.Database.HistoryLimit > 0 {
		opts = append(opts, postgres.WithHistoryLimit(cfg.Database.HistoryLimit))
	}
	store := postgres.New(db, opts...)
	log.Info("connected to postgres")

	return app.Stores{
		Accounts:     store,
		Transactions: store,
		Escrow:       store,
		Projects:     store,
	}, func() { db.Close() }, nil
}
