package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/GregHandsley/pokeflip-sub002/internal/cron"
	"github.com/GregHandsley/pokeflip-sub002/internal/integrity"
	"github.com/GregHandsley/pokeflip-sub002/pkg/config"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db"
	"github.com/GregHandsley/pokeflip-sub002/pkg/instance"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/migrate"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "reading .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "cron_worker.failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Service.Kind = serviceName
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	// unlike the api, the worker needs redis: the cycle lock lives there
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName+":"+envOrLocal(cfg.App.Env)), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return fmt.Errorf("cron jobs: %w", err)
	}
	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		return fmt.Errorf("cron registry: %w", err)
	}

	reg := metrics.NewRegistry()
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "jobs", len(jobs))
	if once {
		logg.Info(ctx, "cron_worker.single_cycle")
		return service.RunOnce(ctx)
	}

	logg.Info(ctx, "cron_worker.starting")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	if addr := cfg.Service.MetricsAddr; addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, addr, reg, logg) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron_worker.stopped")
	return nil
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	var jobs []cron.Job

	if cfg.Cron.IntegrityEnabled {
		checker, err := integrity.NewService(dbClient.DB(), logg)
		if err != nil {
			return nil, err
		}
		job, err := cron.NewIntegrityJob(logg, checker)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionDays,
		BatchSize:  cfg.Outbox.RetentionBatch,
	})
	if err != nil {
		return nil, err
	}
	return append(jobs, retention), nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closer func() error) {
	if err := closer(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "cron_worker.close_failed", err)
	}
}
