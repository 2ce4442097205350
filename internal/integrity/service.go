// Package integrity audits the ledger tables for orphaned rows and quantity drift.
package integrity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

const sampleSize = 10

type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckWarning CheckStatus = "warning"
	CheckFail    CheckStatus = "fail"
)

type ReportStatus string

const (
	StatusHealthy   ReportStatus = "healthy"
	StatusDegraded  ReportStatus = "degraded"
	StatusUnhealthy ReportStatus = "unhealthy"
)

type CheckResult struct {
	Name      string      `json:"name"`
	Group     string      `json:"group"`
	Entity    string      `json:"entity_type"`
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Count     int         `json:"count"`
	SampleIDs []string    `json:"sample_ids,omitempty"`
}

type Report struct {
	Status      ReportStatus  `json:"status"`
	CheckedAt   time.Time     `json:"checked_at"`
	TotalIssues int           `json:"total_issues"`
	DurationMS  int64         `json:"duration_ms"`
	Checks      []CheckResult `json:"checks"`
}

// Service runs every integrity check against one database.
type Service struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewService(db *gorm.DB, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Service{db: db, logg: logg}, nil
}

// Run executes all checks. A check whose query fails is reported as failed
// and its error is returned alongside the report.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{CheckedAt: start.UTC()}

	var errs error
	for _, group := range []struct {
		name   string
		checks []check
	}{
		{name: "orphaned_records", checks: orphanChecks},
		{name: "quantity_consistency", checks: quantityChecks},
	} {
		for _, c := range group.checks {
			result, err := s.run(ctx, c)
			result.Group = group.name
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
			report.TotalIssues += result.Count
			report.Checks = append(report.Checks, result)
		}
	}

	report.Status = Overall(report.Checks)
	report.DurationMS = time.Since(start).Milliseconds()
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"status":       report.Status,
			"total_issues": report.TotalIssues,
			"duration_ms":  report.DurationMS,
		})
		if report.Status == StatusHealthy {
			s.logg.Info(logCtx, "integrity check complete")
		} else {
			s.logg.Warn(logCtx, "integrity check found issues")
		}
	}
	return report, errs
}

func (s *Service) run(ctx context.Context, c check) (CheckResult, error) {
	result := CheckResult{Name: c.name, Entity: c.entity}
	var ids []string
	if err := s.db.WithContext(ctx).Raw(c.query).Scan(&ids).Error; err != nil {
		result.Status = CheckFail
		result.Message = "check could not run"
		return result, err
	}
	result.Count = len(ids)
	if result.Count == 0 {
		result.Status = CheckPass
		return result, nil
	}
	result.Message = c.message
	result.Status = CheckWarning
	if c.severity == SeverityError {
		result.Status = CheckFail
	}
	if len(ids) > sampleSize {
		ids = ids[:sampleSize]
	}
	result.SampleIDs = ids
	return result, nil
}

// Overall is unhealthy on any failed check, degraded on any warning.
func Overall(checks []CheckResult) ReportStatus {
	status := StatusHealthy
	for _, c := range checks {
		switch c.Status {
		case CheckFail:
			return StatusUnhealthy
		case CheckWarning:
			status = StatusDegraded
		}
	}
	return status
}
