package models

import (
	"fmt"
	"sync/atomic"
	"time"
)

// WorkerStatus is the zone-local status of a zone worker.
type WorkerStatus int32

const (
	StatusIdle WorkerStatus = iota
	StatusPlaying
	StatusWaiting
	StatusDone
)

func (s WorkerStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusWaiting:
		return "waiting"
	case StatusDone:
		return "done"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s WorkerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *WorkerStatus) UnmarshalText(b []byte) error {
	for _, v := range []WorkerStatus{StatusIdle, StatusPlaying, StatusWaiting, StatusDone} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown worker status %q", b)
}

// Settled reports whether the barrier may treat the zone as finished.
func (s WorkerStatus) Settled() bool {
	return s == StatusDone || s == StatusWaiting
}

// StatusCell holds a WorkerStatus shared between a worker and the
// coordinator. The worker stores idle/playing/done; the coordinator only
// moves done to waiting.
type StatusCell struct {
	v atomic.Int32
}

// Load returns the current status.
func (c *StatusCell) Load() WorkerStatus {
	return WorkerStatus(c.v.Load())
}

// Store sets the status.
func (c *StatusCell) Store(s WorkerStatus) {
	c.v.Store(int32(s))
}

// MarkWaiting moves done to waiting and reports whether it did.
func (c *StatusCell) MarkWaiting() bool {
	return c.v.CompareAndSwap(int32(StatusDone), int32(StatusWaiting))
}

// Phase is the coordinator loop phase.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDispatching Phase = "dispatching"
	PhaseWaiting     Phase = "waiting"
	PhaseRestoring   Phase = "restoring"
)

// ZoneStatus is the externally visible status of one zone worker.
type ZoneStatus struct {
	Zone    string       `json:"zone"`
	Status  WorkerStatus `json:"status"`
	Pending int          `json:"pending"`
	Active  bool         `json:"active"`
}

// CoordinatorStatus is a point-in-time view of the coordinator.
type CoordinatorStatus struct {
	Phase    Phase        `json:"phase"`
	Active   []string     `json:"active"`
	Groups   []Group      `json:"groups"`
	Zones    []ZoneStatus `json:"zones"`
	Captures int          `json:"captures"`
	Restores int          `json:"restores"`
	Inbound  int          `json:"inbound"`
}

// StatusEvent is published whenever a worker status or the coordinator
// phase changes.
type StatusEvent struct {
	Zone   string       `json:"zone,omitempty"`
	Status WorkerStatus `json:"status"`
	Phase  Phase        `json:"phase,omitempty"`
	Time   time.Time    `json:"time"`
}
