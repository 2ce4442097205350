package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/GregHandsley/pokeflip-sub002/api/controllers"
	"github.com/GregHandsley/pokeflip-sub002/api/routes"
	"github.com/GregHandsley/pokeflip-sub002/internal/acquisitions"
	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/internal/bundles"
	"github.com/GregHandsley/pokeflip-sub002/internal/integrity"
	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/internal/lots"
	"github.com/GregHandsley/pokeflip-sub002/internal/sales"
	"github.com/GregHandsley/pokeflip-sub002/pkg/config"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db"
	"github.com/GregHandsley/pokeflip-sub002/pkg/instance"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/migrate"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/redis"
)

const (
	serviceName       = "api"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "reading .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "api.failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "api.db_close_failed", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	var (
		cache controllers.Pinger
		idem  redis.IdempotencyStore
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "api.redis_close_failed", err)
			}
		}()
		cache, idem = redisClient, redisClient
	} else {
		logg.Warn(logg.WithField(ctx, "idempotent_replay", false), "api.redis_disabled")
	}

	reg := metrics.NewRegistry()
	svcs, err := wireServices(dbClient, logg, metrics.NewLedgerMetrics(reg))
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, cache, idem,
			reg, metrics.NewHTTPMetrics(reg),
			svcs.ledger, svcs.acquisitions, svcs.lots, svcs.sales, svcs.bundles, svcs.integrity,
		),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"driver":   cfg.DB.Driver,
	})
	logg.Info(ctx, "api.listening")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type services struct {
	ledger       ledger.Service
	acquisitions acquisitions.Service
	lots         lots.Service
	sales        sales.Service
	bundles      bundles.Service
	integrity    *integrity.Service
}

// wireServices builds the domain services over one connection. They share
// the outbox emitter and audit recorder so every mutation lands both rows in
// the caller's transaction.
func wireServices(dbClient *db.Client, logg *logger.Logger, ledgerMetrics *metrics.LedgerMetrics) (*services, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	recorder := audit.NewService(conn, logg)
	store := ledger.NewGormStore(conn)

	var (
		s   services
		err error
	)
	if s.ledger, err = ledger.NewService(store, dbClient, emitter, recorder, ledgerMetrics, logg); err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	if s.acquisitions, err = acquisitions.NewService(acquisitions.NewRepository(conn), dbClient, emitter, recorder); err != nil {
		return nil, fmt.Errorf("acquisition service: %w", err)
	}
	if s.lots, err = lots.NewService(lots.NewRepository(conn), store, s.ledger, dbClient, emitter, recorder); err != nil {
		return nil, fmt.Errorf("lot service: %w", err)
	}
	salesRepo := sales.NewRepository(conn)
	if s.sales, err = sales.NewService(salesRepo, s.ledger, dbClient, emitter, recorder, ledgerMetrics, logg); err != nil {
		return nil, fmt.Errorf("sales service: %w", err)
	}
	if s.bundles, err = bundles.NewService(bundles.NewRepository(conn), salesRepo, s.sales, s.ledger, dbClient, emitter, recorder, ledgerMetrics, logg); err != nil {
		return nil, fmt.Errorf("bundle service: %w", err)
	}
	if s.integrity, err = integrity.NewService(conn, logg); err != nil {
		return nil, fmt.Errorf("integrity service: %w", err)
	}
	return &s, nil
}
