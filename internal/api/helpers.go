// Package api implements the HTTP API of the announcement daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micro-nova/lms-announce/internal/config"
	"github.com/micro-nova/lms-announce/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	coord  Coordinator
	submit Submitter
	events EventBus
	zones  []config.ZoneConfig
	online func() bool
}

// Coordinator exposes the announcement core's status.
type Coordinator interface {
	Status() models.CoordinatorStatus
}

// Submitter validates and enqueues announce requests.
type Submitter interface {
	Submit(ctx context.Context, req models.AnnounceRequest) (models.AnnounceResponse, *models.AppError)
}

// EventBus is the interface for subscribing to status events.
type EventBus interface {
	Subscribe(id string) <-chan models.StatusEvent
	Unsubscribe(id string)
}

// zoneView is the GET /api/zones representation of a zone.
type zoneView struct {
	ID      string              `json:"id"`
	Device  string              `json:"device"`
	Speech  models.SpeechKind   `json:"speech"`
	Status  models.WorkerStatus `json:"status"`
	Pending int                 `json:"pending"`
	Active  bool                `json:"active"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.Status)
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(models.ErrInternal(err.Error()))
}
