package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GregHandsley/pokeflip-sub002/api/controllers"
	"github.com/GregHandsley/pokeflip-sub002/api/middleware"
	"github.com/GregHandsley/pokeflip-sub002/internal/acquisitions"
	"github.com/GregHandsley/pokeflip-sub002/internal/bundles"
	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/internal/lots"
	"github.com/GregHandsley/pokeflip-sub002/internal/sales"
	"github.com/GregHandsley/pokeflip-sub002/pkg/config"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/redis"
)

// NewRouter mounts the inventory API. idem and cache may be nil when redis
// is not configured; gatherer may be nil to skip /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	cache controllers.Pinger,
	idem redis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	ledgerService ledger.Service,
	acquisitionService acquisitions.Service,
	lotService lots.Service,
	saleService sales.Service,
	bundleService bundles.Service,
	integrityService controllers.IntegrityRunner,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.Logging(logg, httpMetrics),
		middleware.Actor(logg),
	)

	health := func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cache))
	}
	r.Route("/health", health)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idem, logg, cfg.FeatureFlags.RequireIdempotency))

		r.Route("/health", health)

		r.Route("/acquisitions", func(r chi.Router) {
			r.Get("/", controllers.ListAcquisitions(acquisitionService, logg))
			r.Post("/", controllers.CreateAcquisition(acquisitionService, logg))
			r.Get("/{acquisitionId}", controllers.GetAcquisition(acquisitionService, logg))
			r.Post("/{acquisitionId}/commit", controllers.CommitAcquisition(acquisitionService, logg))
		})

		r.Route("/lots", func(r chi.Router) {
			r.Get("/", controllers.ListLots(lotService, logg))
			r.Post("/merge", controllers.MergeLots(lotService, logg))
			r.Route("/{lotId}", func(r chi.Router) {
				r.Get("/", controllers.GetLot(lotService, logg))
				r.Delete("/", controllers.DeleteLot(lotService, logg))
				r.Get("/availability", controllers.GetLotAvailability(ledgerService, logg))
				r.Patch("/status", controllers.UpdateLotStatus(lotService, logg))
				r.Patch("/for-sale", controllers.UpdateLotForSale(lotService, logg))
				r.Post("/photos", controllers.AddLotPhoto(lotService, logg))
				r.Post("/split", controllers.SplitLot(lotService, logg))
			})
		})

		r.Route("/sales", func(r chi.Router) {
			r.Post("/", controllers.RecordSale(saleService, logg))
			r.Get("/{orderId}", controllers.GetSale(saleService, logg))
		})

		r.Route("/bundles", func(r chi.Router) {
			r.Get("/", controllers.ListBundles(bundleService, logg))
			r.Post("/", controllers.CreateBundle(bundleService, logg))
			r.Route("/{bundleId}", func(r chi.Router) {
				r.Get("/", controllers.GetBundle(bundleService, logg))
				r.Patch("/", controllers.UpdateBundle(bundleService, logg))
				r.Delete("/", controllers.DeleteBundle(bundleService, logg))
				r.Post("/validate", controllers.ValidateBundle(bundleService, logg))
				r.Post("/sell", controllers.SellBundle(bundleService, logg))
				r.Post("/items", controllers.AddBundleItem(bundleService, logg))
				r.Patch("/items/{itemId}", controllers.UpdateBundleItem(bundleService, logg))
				r.Delete("/items/{itemId}", controllers.RemoveBundleItem(bundleService, logg))
			})
		})

		r.Get("/integrity", controllers.IntegrityReport(integrityService, logg))
	})

	return r
}
