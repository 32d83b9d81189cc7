package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/fleet"
)

// FleetHandler exposes the manual entry points named in spec §7 over HTTP.
// Every handler returns the same result shape its underlying core function
// returns, fulfilling "manual entry points mirror the automatic ones."
type FleetHandler struct {
	fleet  *fleet.Fleet
	logger *zap.Logger
}

// NewFleetHandler constructs a FleetHandler.
func NewFleetHandler(f *fleet.Fleet, logger *zap.Logger) *FleetHandler {
	return &FleetHandler{fleet: f, logger: logger.Named("api")}
}

// GetStatus handles GET /v1/status.
func (h *FleetHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	Ok(w, h.fleet.Status())
}

type registerHostRequest struct {
	ID   string            `json:"id"`
	Opts map[string]string `json:"opts"`
}

// RegisterHost handles POST /v1/hosts.
func (h *FleetHandler) RegisterHost(w http.ResponseWriter, r *http.Request) {
	var req registerHostRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		ErrBadRequest(w, "id is required")
		return
	}
	Created(w, h.fleet.RegisterHost(req.ID, req.Opts))
}

// ListHosts handles GET /v1/hosts.
func (h *FleetHandler) ListHosts(w http.ResponseWriter, r *http.Request) {
	Ok(w, h.fleet.Registry.GetAll())
}

type bindWorkerRequest struct {
	ProjectID string `json:"project_id"`
}

// BindWorker handles POST /v1/workers/{id}/bind.
func (h *FleetHandler) BindWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")
	if workerID == "" {
		ErrBadRequest(w, "worker id is required")
		return
	}

	var req bindWorkerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	Ok(w, h.fleet.SelectAndBind(workerID, req.ProjectID))
}

// Heal handles POST /v1/heal.
func (h *FleetHandler) Heal(w http.ResponseWriter, r *http.Request) {
	Ok(w, h.fleet.Heal(r.Context()))
}

// Redistribute handles POST /v1/redistribute.
func (h *FleetHandler) Redistribute(w http.ResponseWriter, r *http.Request) {
	Ok(w, h.fleet.Redistribute(r.Context()))
}

// ResetCircuit handles POST /v1/circuit/reset.
func (h *FleetHandler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	h.fleet.ResetCircuit()
	Ok(w, h.fleet.CircuitSnapshot())
}

// GetCircuit handles GET /v1/circuit.
func (h *FleetHandler) GetCircuit(w http.ResponseWriter, r *http.Request) {
	Ok(w, h.fleet.CircuitSnapshot())
}
