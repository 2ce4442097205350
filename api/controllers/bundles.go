package controllers

import (
	"net/http"

	"github.com/GregHandsley/pokeflip-sub002/api/responses"
	"github.com/GregHandsley/pokeflip-sub002/api/validators"
	"github.com/GregHandsley/pokeflip-sub002/internal/bundles"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

func bundleServiceMissing() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "bundle service unavailable")
}

func CreateBundle(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		var input bundles.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Name = validators.SanitizeString(input.Name, 200)

		bundle, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, bundle)
	}
}

func ListBundles(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
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

func GetBundle(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		id, err := validators.ParseUUIDParam(r, "bundleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bundle, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bundle)
	}
}

func UpdateBundle(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		id, err := validators.ParseUUIDParam(r, "bundleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input bundles.UpdateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bundle, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bundle)
	}
}

func DeleteBundle(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		id, err := validators.ParseUUIDParam(r, "bundleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// ValidateBundle checks a proposed quantity and item set against current
// availability without writing. A rejection is returned as data, not as an
// error status.
func ValidateBundle(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		id, err := validators.ParseUUIDParam(r, "bundleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input bundles.ValidateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rej, err := svc.Validate(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{"ok": rej == nil}
		if rej != nil {
			payload["message"] = rej.Error()
			payload["rejection"] = rej
		}
		responses.WriteSuccess(w, payload)
	}
}

func AddBundleItem(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		id, err := validators.ParseUUIDParam(r, "bundleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input bundles.ItemInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bundle, err := svc.AddItem(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, bundle)
	}
}

func UpdateBundleItem(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		id, err := validators.ParseUUIDParam(r, "bundleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input bundles.UpdateItemInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bundle, err := svc.UpdateItem(r.Context(), id, itemID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bundle)
	}
}

func RemoveBundleItem(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		id, err := validators.ParseUUIDParam(r, "bundleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bundle, err := svc.RemoveItem(r.Context(), id, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bundle)
	}
}

func SellBundle(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, bundleServiceMissing())
			return
		}

		id, err := validators.ParseUUIDParam(r, "bundleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input bundles.SellInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Buyer.Handle = validators.SanitizeString(input.Buyer.Handle, 200)

		result, err := svc.Sell(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}
