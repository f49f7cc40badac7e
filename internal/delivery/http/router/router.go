package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/user/medcrawl/internal/delivery/http/handler"
	"github.com/user/medcrawl/internal/delivery/http/middleware"
	"go.uber.org/zap"
)

func New(h *handler.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)

	r.Get("/api/health", h.HandleHealthCheck)
	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Get("/{source}", h.HandleGetRun)
		r.Post("/{source}", h.HandleStartRun)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
