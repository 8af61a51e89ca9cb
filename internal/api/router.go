package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(l Ledger, adminToken string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(120))

	atoms := NewAtomsHandler(l)
	reputation := NewReputationHandler(l)
	rankings := NewRankingHandler(l)
	stakes := NewStakesHandler(l)
	admin := NewAdminHandler(l)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/atoms", atoms.Publish)
		r.Post("/atoms/batch", atoms.PublishBatch)
		r.Get("/atoms/{id}", atoms.Get)
		r.Get("/atoms/{id}/asset", atoms.Asset)

		r.Get("/reputation/{target}", reputation.Get)
		r.Post("/reputation/threshold", reputation.Threshold)

		r.Get("/ranking/top", rankings.Top)
		r.Get("/ranking/stats", rankings.Stats)

		r.Get("/stakes", stakes.Stats)
		r.Get("/stakes/{issuer}", stakes.Get)
		r.Get("/stakes/{issuer}/history", stakes.History)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(adminToken))
			r.Get("/stats", admin.Stats)
			r.Get("/stakers", stakes.List)
			r.Post("/stakes", stakes.Register)
			r.Post("/stakes/{issuer}/slash", stakes.Slash)
			r.Post("/stakes/{issuer}/dispute", stakes.Dispute)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
