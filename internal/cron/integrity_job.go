package cron

import (
	"context"
	"fmt"

	"github.com/GregHandsley/pokeflip-sub002/internal/integrity"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

type integrityRunner interface {
	Run(ctx context.Context) (*integrity.Report, error)
}

// NewIntegrityJob runs the ledger integrity checks. An unhealthy report fails
// the job so it shows up in the failure metric; a degraded one only warns.
func NewIntegrityJob(logg *logger.Logger, runner integrityRunner) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if runner == nil {
		return nil, fmt.Errorf("integrity runner required")
	}
	return &integrityJob{logg: logg, runner: runner}, nil
}

type integrityJob struct {
	logg   *logger.Logger
	runner integrityRunner
}

func (j *integrityJob) Name() string { return "ledger-integrity" }

func (j *integrityJob) Run(ctx context.Context) error {
	report, err := j.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("integrity checks: %w", err)
	}

	failing := make([]string, 0)
	for _, check := range report.Checks {
		if check.Status == integrity.CheckPass {
			continue
		}
		failing = append(failing, check.Name)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"status":       report.Status,
		"total_issues": report.TotalIssues,
		"checks":       failing,
	})

	switch report.Status {
	case integrity.StatusUnhealthy:
		return fmt.Errorf("ledger unhealthy: %d issue(s) across %v", report.TotalIssues, failing)
	case integrity.StatusDegraded:
		j.logg.Warn(logCtx, "ledger integrity degraded")
	default:
		j.logg.Info(logCtx, "ledger integrity healthy")
	}
	return nil
}
