package controllers

import (
	"net/http"

	"github.com/GregHandsley/pokeflip-sub002/api/responses"
	"github.com/GregHandsley/pokeflip-sub002/api/validators"
	"github.com/GregHandsley/pokeflip-sub002/internal/acquisitions"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

func CreateAcquisition(svc acquisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "acquisition service unavailable"))
			return
		}

		var input acquisitions.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.SourceName = validators.SanitizeString(input.SourceName, 200)

		acq, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, acq)
	}
}

func ListAcquisitions(svc acquisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "acquisition service unavailable"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func GetAcquisition(svc acquisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "acquisition service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "acquisitionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		acq, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, acq)
	}
}

// CommitAcquisition turns intake lines into draft lots.
func CommitAcquisition(svc acquisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "acquisition service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "acquisitionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input acquisitions.CommitInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Commit(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}
