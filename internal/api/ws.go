package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/eventbus"
)

// WSHandler handles the dashboard event stream upgrade endpoint GET
// /v1/events, grounded on the teacher's api.WSHandler (simplified: no JWT
// query-param auth, since this domain has no multi-user web GUI — see
// DESIGN.md).
type WSHandler struct {
	hub    *eventbus.Hub
	logger *zap.Logger
}

// NewWSHandler constructs a WSHandler.
func NewWSHandler(hub *eventbus.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger.Named("ws_handler")}
}

// ServeWS handles GET /v1/events. Blocks until the connection closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	client, err := eventbus.NewClient(h.hub, w, r, h.logger)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", zap.Error(err))
		return
	}

	h.logger.Info("ws: dashboard client connected", zap.String("remote_addr", r.RemoteAddr))
	client.Run()
	h.logger.Info("ws: dashboard client disconnected", zap.String("remote_addr", r.RemoteAddr))
}
