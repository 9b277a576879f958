// Package provider defines the playback provider abstraction used by the
// announcement coordinator and zone workers, together with the Logitech
// Media Server driver and an in-memory mock.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/micro-nova/lms-announce/internal/models"
)

var (
	// ErrUnavailable means the zone exists but cannot be reached right now.
	ErrUnavailable = errors.New("provider: zone unavailable")
	// ErrNotFound means the provider does not know the zone.
	ErrNotFound = errors.New("provider: zone not found")
)

// Provider is the capability surface the announcement core needs from a
// playback system. Zones are addressed by the provider's device id.
//
// Every method except State is a fire-and-forget command: the caller logs
// errors and carries on. State returning ErrUnavailable or ErrNotFound is an
// expected transient condition.
type Provider interface {
	// Refresh asks the provider to re-read the zone before the next State.
	Refresh(ctx context.Context, zone string) error

	// State returns the current observed state of the zone. A zone the
	// provider knows but reports as offline yields StateUnavailable with a
	// nil error; ErrUnavailable means the state could not be read at all.
	State(ctx context.Context, zone string) (models.ZoneState, error)

	// Pause pauses playback.
	Pause(ctx context.Context, zone string) error

	// SetVolume sets the volume, level in [0.0, 1.0].
	SetVolume(ctx context.Context, zone string, level float64) error

	// PlayTone starts playback of an alert tone.
	PlayTone(ctx context.Context, zone, tone string) error

	// Speak renders a message with the given call shape.
	Speak(ctx context.Context, zone string, call models.SpeechCall) error

	// Join links other into zone's group; zone leads.
	Join(ctx context.Context, zone, other string) error

	// Unjoin detaches the zone from any group.
	Unjoin(ctx context.Context, zone string) error

	SetShuffle(ctx context.Context, zone string, on bool) error
	SetRepeat(ctx context.Context, zone string, mode models.RepeatMode) error
	TurnOff(ctx context.Context, zone string) error

	// Seek moves playback of the current track to pos.
	Seek(ctx context.Context, zone string, pos time.Duration) error

	// SavePlaylist stores the current playlist and position under name.
	SavePlaylist(ctx context.Context, zone, name string) error

	// ResumePlaylist reloads a playlist stored with SavePlaylist.
	ResumePlaylist(ctx context.Context, zone, name string) error

	// Preference reads an opaque provider setting; ok is false when unset.
	Preference(ctx context.Context, zone, key string) (value string, ok bool, err error)

	// SetPreference writes an opaque provider setting.
	SetPreference(ctx context.Context, zone, key, value string) error
}

// IsTransient reports whether err is an expected state-read failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound)
}
