package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	mw "github.com/ppiankov/vigil/internal/api/middleware"
	"github.com/ppiankov/vigil/internal/model"
	"github.com/ppiankov/vigil/internal/store"
)

// NewRouter assembles the monitor's HTTP surface.
func NewRouter(claims *store.ClaimStore, conflicts *store.ConflictStore, monitor StatusReporter, cfg model.ServerConfig, logger *zap.Logger) *chi.Mux {
	h := NewHandler(claims, conflicts, monitor, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(mw.RequestID)
	r.Use(mw.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(mw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	r.Get("/health", h.Health)
	r.Route("/monitor", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/claims/{sessionID}", h.GetClaims)
		r.Get("/conflicts/{sessionID}", h.GetConflicts)
	})

	return r
}
