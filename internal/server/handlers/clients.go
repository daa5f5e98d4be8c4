package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/stocklinehq/stockline/pkg/api"
)

// SyncIntrospector is the view of the sync service this handler needs.
type SyncIntrospector interface {
	Count() int
	Clients() []api.ClientSummary
}

// ClientsHandler exposes connected-client introspection for operations.
type ClientsHandler struct {
	logger *slog.Logger
	sync   SyncIntrospector
}

// NewClientsHandler creates the introspection handler.
func NewClientsHandler(logger *slog.Logger, sync SyncIntrospector) *ClientsHandler {
	return &ClientsHandler{logger: logger, sync: sync}
}

// Clients handles GET /api/v1/sync/clients.
func (h *ClientsHandler) Clients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := api.ClientsResponse{
		Count:   h.sync.Count(),
		Clients: h.sync.Clients(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode clients response", slog.Any("error", err))
	}
}
