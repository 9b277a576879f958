// Package models defines the data structures shared by the announcement
// coordinator, the zone workers, the playback providers and the transport.
package models

import (
	"slices"
	"strings"
	"time"
)

// PlayState is the observed playback state of a zone.
type PlayState string

const (
	StateOff         PlayState = "off"
	StateIdle        PlayState = "idle"
	StatePaused      PlayState = "paused"
	StatePlaying     PlayState = "playing"
	StateUnavailable PlayState = "unavailable"
)

// Quiescent reports whether the zone is not producing audio.
func (s PlayState) Quiescent() bool {
	switch s {
	case StateIdle, StatePaused, StateOff, StateUnavailable:
		return true
	}
	return false
}

// Finished reports whether the zone has fully gone quiet after an
// announcement. Paused does not count.
func (s PlayState) Finished() bool {
	switch s {
	case StateIdle, StateOff, StateUnavailable:
		return true
	}
	return false
}

// RepeatMode is the playlist repeat setting of a zone.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// ZoneState is what a provider reports for one zone.
type ZoneState struct {
	State        PlayState     `json:"state"`
	Volume       *float64      `json:"volume,omitempty"` // [0.0, 1.0]
	Position     time.Duration `json:"position"`
	Shuffle      bool          `json:"shuffle"`
	Repeat       RepeatMode    `json:"repeat"`
	GroupMembers []string      `json:"group_members,omitempty"`
}

// Snapshot is the state of one zone captured before a batch interrupts it.
type Snapshot struct {
	Zone       string    `json:"zone"`
	ZoneState
	Preference *string   `json:"preference,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Available reports whether anything was captured for the zone.
func (s Snapshot) Available() bool {
	return s.State != StateUnavailable && s.State != ""
}

// Group is an ordered list of linked zones. Order is the order in which
// the members were reported at capture time.
type Group []string

// Key is the order-independent identity of the group.
func (g Group) Key() string {
	sorted := slices.Clone(g)
	slices.Sort(sorted)
	return strings.Join(sorted, "\x00")
}

// Contains reports whether zone is a member of g.
func (g Group) Contains(zone string) bool {
	return slices.Contains(g, zone)
}

// GroupTopology is the set of zone groups captured at the start of a batch.
// Groups are compared by membership only, so the same group reported by
// several of its members is stored once.
type GroupTopology struct {
	groups []Group
	keys   map[string]struct{}
}

// NewGroupTopology returns an empty topology.
func NewGroupTopology() *GroupTopology {
	return &GroupTopology{keys: make(map[string]struct{})}
}

// Add folds members into the topology. Empty groups and groups already
// present (in any order) are ignored. It reports whether g was new.
func (t *GroupTopology) Add(g Group) bool {
	if len(g) == 0 {
		return false
	}
	key := g.Key()
	if _, ok := t.keys[key]; ok {
		return false
	}
	t.keys[key] = struct{}{}
	t.groups = append(t.groups, slices.Clone(g))
	return true
}

// Groups returns the captured groups in capture order.
func (t *GroupTopology) Groups() []Group {
	if t == nil {
		return nil
	}
	return t.groups
}

// Len returns the number of distinct groups.
func (t *GroupTopology) Len() int {
	if t == nil {
		return 0
	}
	return len(t.groups)
}

// Grouped reports whether zone belongs to any captured group.
func (t *GroupTopology) Grouped(zone string) bool {
	for _, g := range t.Groups() {
		if g.Contains(zone) {
			return true
		}
	}
	return false
}
