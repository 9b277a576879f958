// Package transport turns inbound announce payloads into per-zone requests
// for the coordinator. It is shared by the HTTP API and the MQTT listener.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/micro-nova/lms-announce/internal/models"
)

// Sink accepts single-zone requests. The coordinator implements it.
type Sink interface {
	Enqueue(ctx context.Context, req *models.AnnouncementRequest) error
	HasZone(zone string) bool
}

// Dispatcher validates announce payloads and fans them out per zone.
type Dispatcher struct {
	sink Sink
}

// NewDispatcher creates a dispatcher feeding sink.
func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink}
}

// Submit validates req and enqueues one request per known zone. Unknown
// zones are logged and reported in Dropped.
func (d *Dispatcher) Submit(ctx context.Context, req models.AnnounceRequest) (models.AnnounceResponse, *models.AppError) {
	if appErr := validate(req); appErr != nil {
		return models.AnnounceResponse{}, appErr
	}

	resp := models.AnnounceResponse{Accepted: []models.AcceptedRequest{}}
	now := time.Now()
	var seen []string
	for _, zone := range req.Zones {
		if slices.Contains(seen, zone) {
			continue
		}
		seen = append(seen, zone)

		if !d.sink.HasZone(zone) {
			slog.Warn("transport: dropping announcement for unknown zone", "zone", zone)
			resp.Dropped = append(resp.Dropped, zone)
			continue
		}

		ar := build(req, zone, now)
		if err := d.sink.Enqueue(ctx, ar); err != nil {
			slog.Warn("transport: enqueue failed", "zone", zone, "err", err)
			if len(resp.Accepted) == 0 {
				return models.AnnounceResponse{}, enqueueError(err)
			}
			resp.Dropped = append(resp.Dropped, zone)
			continue
		}
		slog.Debug("transport: accepted", "zone", zone, "request", ar.ID)
		resp.Accepted = append(resp.Accepted, models.AcceptedRequest{Zone: zone, ID: ar.ID})
	}
	return resp, nil
}

func enqueueError(err error) *models.AppError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.ErrUnavailable("request cancelled")
	}
	return models.ErrUnavailable(fmt.Sprintf("announcements unavailable: %v", err))
}

func validate(req models.AnnounceRequest) *models.AppError {
	if len(req.Zones) == 0 {
		return models.ErrInvalidField("entity_id", "at least one zone is required")
	}
	for _, z := range req.Zones {
		if z == "" {
			return models.ErrInvalidField("entity_id", "zone ids must not be empty")
		}
	}
	if req.Repeat != nil && *req.Repeat < 0 {
		return models.ErrInvalidField("repeat", "repeat must not be negative")
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 1) {
		return models.ErrInvalidField("volume", "volume must be between 0.0 and 1.0")
	}
	if req.Pause != nil && *req.Pause < 0 {
		return models.ErrInvalidField("pause", "pause must not be negative")
	}
	if req.PlaybackTimeout != nil && *req.PlaybackTimeout < 0 {
		return models.ErrInvalidField("playback_timeout", "playback_timeout must not be negative")
	}
	if c := req.Chime; c != nil {
		if (c.OffsetMS != nil && *c.OffsetMS < 0) || (c.FinalDelayMS != nil && *c.FinalDelayMS < 0) {
			return models.ErrInvalidField("chime", "chime delays must not be negative")
		}
		if (c.Rate != nil && *c.Rate <= 0) || (c.Pitch != nil && *c.Pitch <= 0) {
			return models.ErrInvalidField("chime", "tts_speed and tts_pitch must be positive")
		}
	}
	return nil
}

func build(req models.AnnounceRequest, zone string, now time.Time) *models.AnnouncementRequest {
	ar := &models.AnnouncementRequest{
		ID:                uuid.NewString(),
		Zone:              zone,
		Message:           req.Message,
		Repeat:            req.Repeat,
		AlertSound:        req.AlertSound,
		Volume:            req.Volume,
		ForcePlay:         req.ForcePlay,
		PresenceIndicator: req.PresenceIndicator,
		Chime:             req.Chime,
		ReceivedAt:        now,
	}
	if req.Pause != nil {
		d := seconds(*req.Pause)
		ar.Pause = &d
	}
	if req.PlaybackTimeout != nil {
		d := seconds(*req.PlaybackTimeout)
		ar.PlaybackTimeout = &d
	}
	return ar
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
