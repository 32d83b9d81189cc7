package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/eventbus"
	"github.com/hive-agi/hostfleet/internal/fleet"
	"github.com/hive-agi/hostfleet/internal/metrics"
)

// RouterConfig holds every dependency NewRouter needs, following the
// teacher's RouterConfig pattern of one struct populated in main.go after
// every component is initialized.
type RouterConfig struct {
	Fleet  *fleet.Fleet
	Hub    *eventbus.Hub
	Logger *zap.Logger
}

// NewRouter builds the admin HTTP router. Every route lives under /v1
// (spec §7 expansion); GET /metrics is mounted at the root for Prometheus
// scraping.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	fleetHandler := NewFleetHandler(cfg.Fleet, cfg.Logger)
	wsHandler := NewWSHandler(cfg.Hub, cfg.Logger)

	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", fleetHandler.GetStatus)

		r.Post("/hosts", fleetHandler.RegisterHost)
		r.Get("/hosts", fleetHandler.ListHosts)

		r.Post("/workers/{id}/bind", fleetHandler.BindWorker)

		r.Post("/heal", fleetHandler.Heal)
		r.Post("/redistribute", fleetHandler.Redistribute)

		r.Post("/circuit/reset", fleetHandler.ResetCircuit)
		r.Get("/circuit", fleetHandler.GetCircuit)

		r.Get("/events", wsHandler.ServeWS)
	})

	return r
}
