// Package api exposes the monitor's read surface: claims and conflicts by
// session, pipeline status, and a health probe.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/model"
	"github.com/ppiankov/vigil/internal/store"
)

// StatusReporter is the slice of the orchestrator the API needs.
type StatusReporter interface {
	Status() model.Status
}

// Handler serves the monitor's HTTP endpoints.
type Handler struct {
	claims    *store.ClaimStore
	conflicts *store.ConflictStore
	monitor   StatusReporter
	logger    *zap.Logger
}

// NewHandler wires the handler from the stores and the orchestrator.
func NewHandler(claims *store.ClaimStore, conflicts *store.ConflictStore, monitor StatusReporter, logger *zap.Logger) *Handler {
	return &Handler{claims: claims, conflicts: conflicts, monitor: monitor, logger: logger}
}

// GetClaims returns all claims for a session.
func (h *Handler) GetClaims(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	claims, err := h.claims.BySession(sessionID)
	if err != nil {
		h.logger.Error("get claims failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load claims")
		return
	}
	if claims == nil {
		claims = []model.Claim{}
	}
	writeJSON(w, http.StatusOK, claims)
}

// GetConflicts returns all conflicts for a session.
func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	conflicts, err := h.conflicts.BySession(sessionID)
	if err != nil {
		h.logger.Error("get conflicts failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conflicts")
		return
	}
	if conflicts == nil {
		conflicts = []model.Conflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

// GetStatus returns the pipeline status summary.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "vigil"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
