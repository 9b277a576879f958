package models

import (
	"strings"
	"time"
)

// AnnouncementRequest is a single-zone announcement as seen by the
// coordinator and the zone workers. It is never mutated after it has been
// enqueued. Nil optional fields fall back to the zone defaults.
type AnnouncementRequest struct {
	ID                string
	Zone              string
	Message           string
	Repeat            *int
	AlertSound        *string
	Volume            *float64
	ForcePlay         bool
	PresenceIndicator *string
	Pause             *time.Duration
	PlaybackTimeout   *time.Duration
	Chime             *ChimeOptions
	ReceivedAt        time.Time
}

// CleanMessage returns the message with HTML line breaks removed.
func CleanMessage(msg string) string {
	return strings.TrimSpace(strings.ReplaceAll(msg, "<br>", ""))
}

// ChimeOptions are the decorative options of a chime-style speech renderer.
// Only the options that are set are passed on to the provider.
type ChimeOptions struct {
	LeadIn        *string  `json:"chime_path,omitempty" yaml:"chime_path,omitempty"`
	Trailing      *string  `json:"end_chime_path,omitempty" yaml:"end_chime_path,omitempty"`
	OffsetMS      *int     `json:"offset,omitempty" yaml:"offset,omitempty"`
	FinalDelayMS  *int     `json:"final_delay,omitempty" yaml:"final_delay,omitempty"`
	Rate          *float64 `json:"tts_speed,omitempty" yaml:"tts_speed,omitempty"`
	Pitch         *float64 `json:"tts_pitch,omitempty" yaml:"tts_pitch,omitempty"`
}

// Params returns the set options keyed by their wire name.
func (o *ChimeOptions) Params() map[string]any {
	p := make(map[string]any)
	if o == nil {
		return p
	}
	if o.LeadIn != nil {
		p["chime_path"] = *o.LeadIn
	}
	if o.Trailing != nil {
		p["end_chime_path"] = *o.Trailing
	}
	if o.OffsetMS != nil {
		p["offset"] = *o.OffsetMS
	}
	if o.FinalDelayMS != nil {
		p["final_delay"] = *o.FinalDelayMS
	}
	if o.Rate != nil {
		p["tts_speed"] = *o.Rate
	}
	if o.Pitch != nil {
		p["tts_pitch"] = *o.Pitch
	}
	return p
}

// Merge returns a copy of o where every unset option is taken from def.
func (o *ChimeOptions) Merge(def *ChimeOptions) *ChimeOptions {
	if o == nil && def == nil {
		return nil
	}
	var out ChimeOptions
	if def != nil {
		out = *def
	}
	if o == nil {
		return &out
	}
	if o.LeadIn != nil {
		out.LeadIn = o.LeadIn
	}
	if o.Trailing != nil {
		out.Trailing = o.Trailing
	}
	if o.OffsetMS != nil {
		out.OffsetMS = o.OffsetMS
	}
	if o.FinalDelayMS != nil {
		out.FinalDelayMS = o.FinalDelayMS
	}
	if o.Rate != nil {
		out.Rate = o.Rate
	}
	if o.Pitch != nil {
		out.Pitch = o.Pitch
	}
	return &out
}

// SpeechKind selects the call shape used to render a message.
type SpeechKind string

const (
	SpeechDirect SpeechKind = "direct" // speak straight to the zone's entity
	SpeechChime  SpeechKind = "chime"  // chime-style renderer with decorative options
	SpeechNotify SpeechKind = "notify" // generic notify service
)

// Valid reports whether k is a known speech kind.
func (k SpeechKind) Valid() bool {
	switch k {
	case SpeechDirect, SpeechChime, SpeechNotify:
		return true
	}
	return false
}

// SpeechCall is one rendering of a message. Options is only populated for
// SpeechChime and holds the non-nil decorative options.
type SpeechCall struct {
	Kind    SpeechKind
	Service string
	Text    string
	Options map[string]any
}

// NewSpeechCall builds the call shape for kind once per request.
func NewSpeechCall(kind SpeechKind, service, text string, chime *ChimeOptions) SpeechCall {
	call := SpeechCall{Kind: kind, Service: service, Text: text}
	switch kind {
	case SpeechChime:
		call.Options = chime.Params()
	case SpeechNotify, SpeechDirect:
	default:
		call.Kind = SpeechDirect
	}
	return call
}
