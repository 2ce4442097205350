package controllers

import (
	"context"
	"net/http"

	"github.com/GregHandsley/pokeflip-sub002/api/responses"
	"github.com/GregHandsley/pokeflip-sub002/internal/integrity"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

// IntegrityRunner produces a ledger integrity report.
type IntegrityRunner interface {
	Run(ctx context.Context) (*integrity.Report, error)
}

// IntegrityReport runs every orphan and quantity check on demand.
func IntegrityReport(svc IntegrityRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integrity service unavailable"))
			return
		}

		report, err := svc.Run(r.Context())
		if report == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "run integrity checks"))
			return
		}
		// Checks that could not run are reported as failed.
		if err != nil && logg != nil {
			logg.Error(r.Context(), "integrity.partial", err)
		}
		responses.WriteSuccess(w, report)
	}
}
