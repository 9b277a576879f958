package models

import (
	"encoding/json"
	"fmt"
)

// ZoneList is one zone id or a list of zone ids on the wire.
type ZoneList []string

// UnmarshalJSON accepts either "zone" or ["zone", ...].
func (l *ZoneList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*l = nil
			return nil
		}
		*l = ZoneList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("entity_id must be a string or a list of strings")
	}
	*l = many
	return nil
}

// AnnounceRequest is the POST /api/announce body and the MQTT announce
// payload. Durations are in seconds.
type AnnounceRequest struct {
	Zones             ZoneList      `json:"entity_id"`
	Message           string        `json:"message"`
	Repeat            *int          `json:"repeat,omitempty"`
	AlertSound        *string       `json:"alert_sound,omitempty"`
	Volume            *float64      `json:"volume,omitempty"`
	ForcePlay         bool          `json:"force_play,omitempty"`
	PresenceIndicator *string       `json:"presence_indicator,omitempty"`
	Pause             *float64      `json:"pause,omitempty"`
	PlaybackTimeout   *float64      `json:"playback_timeout,omitempty"`
	Chime             *ChimeOptions `json:"chime,omitempty"`
}

// AnnounceResponse lists the per-zone requests that were accepted.
type AnnounceResponse struct {
	Accepted []AcceptedRequest `json:"accepted"`
	Dropped  []string          `json:"dropped,omitempty"`
}

// AcceptedRequest pairs a zone with the id of the request queued for it.
type AcceptedRequest struct {
	Zone string `json:"zone"`
	ID   string `json:"id"`
}
