package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/GregHandsley/pokeflip-sub002/pkg/config"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: the set embedded in this binary; create writes to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": opts.cmd, "dir": opts.dir})

	if err := run(ctx, logg, opts); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, opts options) error {
	// file-only commands run without config or a database
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "path", path), "migrate.created")
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		logg.Info(ctx, "migrate.valid")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DB.IsSQLite() {
		return errors.New("goose migrations target postgres; sqlite schemas come from auto-migrate")
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	m, err := migrate.New(sqlDB, opts.dir)
	if err != nil {
		return err
	}

	var applied []migrate.Step
	switch opts.cmd {
	case "up":
		applied, err = m.Up(ctx)
	case "down":
		applied, err = m.Down(ctx)
	case "version":
		var target int64
		if target, err = migrate.ParseVersion(opts.version); err != nil {
			return err
		}
		applied, err = m.To(ctx, target)
	case "status":
		states, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range states {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"version": st.Version,
				"path":    st.Path,
				"applied": st.Applied,
			}), "migrate.status")
		}
		return nil
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}

	for _, step := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":   step.Version,
			"path":      step.Path,
			"direction": step.Direction,
			"seconds":   step.Seconds,
		}), "migrate.step")
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "steps", len(applied)), "migrate.done")
	return nil
}
