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

	"github.com/GregHandsley/pokeflip-sub002/pkg/config"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db"
	"github.com/GregHandsley/pokeflip-sub002/pkg/instance"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/migrate"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/registry"
	"github.com/GregHandsley/pokeflip-sub002/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	var opts dlqOptions
	flag.StringVar(&opts.cmd, "dlq", "", "dead-letter maintenance instead of publishing: list|requeue")
	flag.StringVar(&opts.eventID, "event", "", "event id for -dlq=requeue")
	flag.StringVar(&opts.reason, "reason", "", "filter -dlq=list by max_attempts|non_retryable")
	flag.IntVar(&opts.limit, "limit", 0, "rows for -dlq=list")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "reading .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "outbox_publisher.failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts dlqOptions) error {
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

	dlq := outbox.NewDLQRepository(dbClient.DB())
	if opts.cmd != "" {
		return runDLQ(ctx, dbClient, dlq, opts, os.Stdout)
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeQuietly(ctx, logg, "pubsub", pubsubClient.Close)

	reg := metrics.NewRegistry()
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlq,
		Metrics:       metrics.NewOutboxMetrics(reg),
	})
	if err != nil {
		return err
	}
	defer service.Close()

	logg.Info(logg.WithField(ctx, "topics", eventRegistry.Topics()), "outbox_publisher.starting")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	if addr := cfg.Service.MetricsAddr; addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, addr, reg, logg) })
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logg.Info(ctx, "outbox_publisher.stopped")
		return nil
	}
	return err
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closer func() error) {
	if err := closer(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "outbox_publisher.close_failed", err)
	}
}
