package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/schoolbus/go-reservation-service/internal/poller"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

// StatsProvider reports the reservation poller's runtime state.
type StatsProvider interface {
	GetStats() poller.Stats
}

type StatusAPI struct {
	Status store.StatusStore
	Poller StatsProvider
	Logger *slog.Logger
}

func NewStatusAPI(status store.StatusStore, statsProvider StatsProvider, logger *slog.Logger) *StatusAPI {
	return &StatusAPI{Status: status, Poller: statsProvider, Logger: logger}
}

type UpdateStatusRequest struct {
	IsOpen *bool `json:"is_open"`
}

func (api *StatusAPI) Get(w http.ResponseWriter, r *http.Request) {
	status, err := api.Status.GetStatus(r.Context())
	if err != nil {
		api.Logger.Error("failed to read reservation status", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (api *StatusAPI) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.IsOpen == nil {
		response.WriteJSONError(w, http.StatusBadRequest, "missing is_open")
		return
	}

	status, err := api.Status.SetStatus(r.Context(), *req.IsOpen)
	if err != nil {
		api.Logger.Error("failed to update reservation status", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("reservation status updated", "is_open", status.IsOpen)

	writeJSON(w, http.StatusOK, status)
}

func (api *StatusAPI) PollerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Poller.GetStats())
}
