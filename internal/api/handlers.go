package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/lms-announce/internal/auth"
	"github.com/micro-nova/lms-announce/internal/models"
)

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]string{"status": "ok"}
	if h.online != nil {
		body["lms"] = "unreachable"
		if h.online() {
			body["lms"] = "reachable"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// announce handles POST /api/announce. The request is queued and the
// handler returns without waiting for playback.
func (h *Handlers) announce(w http.ResponseWriter, r *http.Request) {
	var req models.AnnounceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.ErrBadRequest("invalid JSON: "+err.Error()))
		return
	}

	resp, appErr := h.submit.Submit(r.Context(), req)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	if len(resp.Accepted) == 0 {
		writeError(w, models.ErrNotFound("no configured zone in entity_id"))
		return
	}
	slog.Info("api: announcement queued", "zones", len(resp.Accepted), "client", auth.Client(r.Context()))
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handlers) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Status())
}

func (h *Handlers) zoneViews() []zoneView {
	byZone := make(map[string]models.ZoneStatus)
	for _, zs := range h.coord.Status().Zones {
		byZone[zs.Zone] = zs
	}
	out := make([]zoneView, 0, len(h.zones))
	for _, zc := range h.zones {
		zs := byZone[zc.ID]
		out = append(out, zoneView{
			ID:      zc.ID,
			Device:  zc.Device,
			Speech:  zc.Speech.Kind,
			Status:  zs.Status,
			Pending: zs.Pending,
			Active:  zs.Active,
		})
	}
	return out
}

func (h *Handlers) getZones(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.zoneViews())
}

func (h *Handlers) getZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "zid")
	for _, z := range h.zoneViews() {
		if z.ID == id {
			writeJSON(w, http.StatusOK, z)
			return
		}
	}
	writeError(w, models.ErrNotFound("zone "+id+" not found"))
}
