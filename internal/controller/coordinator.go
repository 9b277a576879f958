// Package controller overlays announcements onto playing zones. A
// Coordinator captures zone state once per batch, fans requests out to one
// Worker per zone and, once every zone in the batch has gone quiet,
// restores volume, playback and the captured group topology.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micro-nova/lms-announce/internal/config"
	"github.com/micro-nova/lms-announce/internal/events"
	"github.com/micro-nova/lms-announce/internal/models"
	"github.com/micro-nova/lms-announce/internal/presence"
	"github.com/micro-nova/lms-announce/internal/provider"
)

// savedPlaylistPrefix names the playlist saved for each zone in a batch.
const savedPlaylistPrefix = "Save-"

var (
	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("coordinator stopped")
	// ErrUnknownZone is returned by Enqueue for a zone without a worker.
	ErrUnknownZone = errors.New("unknown zone")
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPresence sets the presence source checked before each announcement.
func WithPresence(src presence.Source) Option {
	return func(c *Coordinator) { c.presence = src }
}

// WithEvents publishes worker status and phase changes to pub.
func WithEvents(pub events.Publisher) Option {
	return func(c *Coordinator) { c.bus = pub }
}

// WithMirror mirrors every played announcement to m.
func WithMirror(m Mirror) Option {
	return func(c *Coordinator) { c.mirror = m }
}

// Coordinator sequences announcement batches across zones.
//
// Everything below the batch comment is owned by the loop goroutine. Other
// goroutines only touch the inbound channel, the worker status cells and
// the published view.
type Coordinator struct {
	cfg      *config.Config
	provider provider.Provider
	presence presence.Source
	bus      events.Publisher
	mirror   Mirror

	workers map[string]*Worker
	order   []string          // configured zone order
	zoneOf  map[string]string // provider device id -> zone id

	inbound  chan *models.AnnouncementRequest
	done     chan struct{} // closed by Stop
	exited   chan struct{} // closed when the loop returns
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  atomic.Bool

	captures atomic.Int64
	restores atomic.Int64

	viewMu sync.Mutex
	view   models.CoordinatorStatus

	// batch
	active    []string
	inBatch   map[string]bool
	snapshots map[string]models.Snapshot
	topology  *models.GroupTopology
}

// New creates a coordinator with one worker per configured zone.
func New(cfg *config.Config, p provider.Provider, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		provider: p,
		workers:  make(map[string]*Worker, len(cfg.Zones)),
		zoneOf:   make(map[string]string, len(cfg.Zones)),
		inbound:  make(chan *models.AnnouncementRequest, max(cfg.Timing.QueueSize, 1)),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		inBatch:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, zc := range cfg.Zones {
		w := newWorker(zc, cfg.Timing, p)
		w.presence = c.presence
		w.present = cfg.Presence.PresentValue
		w.bus = c.bus
		w.mirror = c.mirror
		c.workers[zc.ID] = w
		c.order = append(c.order, zc.ID)
		c.zoneOf[zc.Device] = zc.ID
	}
	c.view = models.CoordinatorStatus{Phase: models.PhaseIdle}
	return c
}

// Start spawns every worker and the coordinator loop.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	for _, id := range c.order {
		c.wg.Add(1)
		go c.workers[id].run(ctx, &c.wg)
	}
	c.wg.Add(1)
	go c.loop(ctx)
	slog.Info("coordinator: started", "zones", len(c.order))
}

// Stop ends the coordinator loop, then pushes the stop sentinel to every
// worker and waits for all of them to exit. Requests already queued to a
// worker are played first.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if !c.started.Load() {
			return
		}
		select {
		case c.inbound <- nil:
		case <-c.exited:
		}
		c.wg.Wait()
		slog.Info("coordinator: stopped")
	})
}

// Enqueue submits a single-zone request.
func (c *Coordinator) Enqueue(ctx context.Context, req *models.AnnouncementRequest) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}
	if _, ok := c.workers[req.Zone]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownZone, req.Zone)
	}
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.inbound <- req:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HasZone reports whether zone has a worker.
func (c *Coordinator) HasZone(zone string) bool {
	_, ok := c.workers[zone]
	return ok
}

// Zones returns the configured zone ids in order.
func (c *Coordinator) Zones() []string {
	return slices.Clone(c.order)
}

// Status returns a point-in-time view of the coordinator and its workers.
func (c *Coordinator) Status() models.CoordinatorStatus {
	c.viewMu.Lock()
	st := c.view
	st.Active = slices.Clone(c.view.Active)
	st.Groups = slices.Clone(c.view.Groups)
	c.viewMu.Unlock()

	active := make(map[string]bool, len(st.Active))
	for _, z := range st.Active {
		active[z] = true
	}
	st.Zones = make([]models.ZoneStatus, 0, len(c.order))
	for _, id := range c.order {
		w := c.workers[id]
		st.Zones = append(st.Zones, models.ZoneStatus{
			Zone:    id,
			Status:  w.Status(),
			Pending: w.Pending(),
			Active:  active[id],
		})
	}
	st.Captures = int(c.captures.Load())
	st.Restores = int(c.restores.Load())
	st.Inbound = len(c.inbound)
	return st
}

func (c *Coordinator) setPhase(p models.Phase) {
	c.viewMu.Lock()
	changed := c.view.Phase != p
	c.view.Phase = p
	c.view.Active = slices.Clone(c.active)
	c.view.Groups = c.topology.Groups()
	c.viewMu.Unlock()
	if changed && c.bus != nil {
		c.bus.Publish(models.StatusEvent{Phase: p, Time: time.Now()})
	}
}

// loop pops inbound requests and dispatches them. While a batch is open and
// nothing is queued it checks the completion barrier once per interval.
func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.exited)
	defer c.stopWorkers()

	interval := c.cfg.Timing.CoordinatorInterval.Std()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if len(c.active) == 0 {
			// quiescent: block until work arrives
			select {
			case req := <-c.inbound:
				if req == nil {
					return
				}
				c.dispatch(ctx, req)
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case req := <-c.inbound:
			if req == nil {
				return
			}
			c.dispatch(ctx, req)
			continue
		default:
		}

		c.setPhase(models.PhaseWaiting)
		timer.Reset(interval)
		select {
		case req := <-c.inbound:
			timer.Stop()
			if req == nil {
				return
			}
			c.dispatch(ctx, req)
			continue
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if c.checkDone(ctx) {
			c.endBatch()
		}
	}
}

func (c *Coordinator) stopWorkers() {
	for _, id := range c.order {
		c.workers[id].stop()
	}
}

// dispatch routes one request to its zone worker, capturing state first if
// it opens a new batch.
func (c *Coordinator) dispatch(ctx context.Context, req *models.AnnouncementRequest) {
	w, ok := c.workers[req.Zone]
	if !ok {
		slog.Warn("coordinator: dropping request for unknown zone", "zone", req.Zone, "request", req.ID)
		return
	}

	if len(c.active) == 0 {
		c.saveState(ctx)
	}

	dev := w.zone.Device
	if !c.inBatch[req.Zone] {
		c.inBatch[req.Zone] = true
		c.active = append(c.active, req.Zone)
		if err := c.provider.SavePlaylist(ctx, dev, savedPlaylistPrefix+req.Zone); err != nil {
			slog.Warn("coordinator: save playlist failed", "zone", req.Zone, "err", err)
		}
	}

	// normalize so the overlay behaves the same whatever the zone was doing
	if err := c.provider.Unjoin(ctx, dev); err != nil {
		slog.Warn("coordinator: unjoin failed", "zone", req.Zone, "err", err)
	}
	if err := c.provider.SetShuffle(ctx, dev, false); err != nil {
		slog.Warn("coordinator: shuffle off failed", "zone", req.Zone, "err", err)
	}
	if err := c.provider.SetRepeat(ctx, dev, models.RepeatOff); err != nil {
		slog.Warn("coordinator: repeat off failed", "zone", req.Zone, "err", err)
	}

	slog.Debug("coordinator: dispatching", "zone", req.Zone, "request", req.ID)
	w.enqueue(req)
	c.setPhase(models.PhaseDispatching)
}

// checkDone is the completion barrier. Zones reporting done are restored
// eagerly and moved to waiting; once every active zone is done or waiting
// with nothing pending, playback and groups are restored and it returns
// true.
func (c *Coordinator) checkDone(ctx context.Context) bool {
	if len(c.active) == 0 {
		return false
	}
	complete := true
	for _, zone := range c.active {
		w := c.workers[zone]
		if w.Pending() > 0 {
			complete = false
			continue
		}
		switch w.Status() {
		case models.StatusDone:
			c.restoreState(ctx, zone)
			w.markWaiting()
		case models.StatusWaiting:
		default:
			complete = false
		}
	}
	if !complete {
		return false
	}

	c.setPhase(models.PhaseRestoring)
	c.restorePlayback(ctx)
	c.restores.Add(1)
	return true
}

// endBatch returns the coordinator to quiescence.
func (c *Coordinator) endBatch() {
	slog.Info("coordinator: batch restored", "zones", c.active)
	c.active = nil
	c.inBatch = make(map[string]bool)
	c.snapshots = nil
	c.topology = nil
	c.setPhase(models.PhaseIdle)
}

// device maps a zone id to its provider device id. Ids of zones without a
// worker are already device ids.
func (c *Coordinator) device(zone string) string {
	if w, ok := c.workers[zone]; ok {
		return w.zone.Device
	}
	return zone
}

// zone maps a provider device id back to a zone id.
func (c *Coordinator) zone(device string) string {
	if id, ok := c.zoneOf[device]; ok {
		return id
	}
	return device
}
