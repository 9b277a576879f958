package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micro-nova/lms-announce/internal/config"
	"github.com/micro-nova/lms-announce/internal/events"
	"github.com/micro-nova/lms-announce/internal/models"
	"github.com/micro-nova/lms-announce/internal/presence"
	"github.com/micro-nova/lms-announce/internal/provider"
)

// Mirror receives a copy of every announcement a worker plays.
type Mirror interface {
	Mirror(ctx context.Context, zone, message string) error
}

// Worker executes announcements for one zone, strictly in arrival order.
// Its status is written by the worker itself (idle, playing, done) and by
// the coordinator (done to waiting) through an atomic cell.
type Worker struct {
	zone   config.ZoneConfig
	timing config.TimingConfig

	provider provider.Provider
	presence presence.Source
	present  string
	bus      events.Publisher
	mirror   Mirror
	log      *slog.Logger

	queue   chan *models.AnnouncementRequest
	status  models.StatusCell
	pending atomic.Int32
	played  atomic.Int64
	skipped atomic.Int64
}

// plan is a request with every unset field resolved from the zone defaults.
type plan struct {
	message   string
	repeat    int
	tone      string
	volume    *float64
	pause     time.Duration
	timeout   time.Duration
	indicator *string
	force     bool
	call      models.SpeechCall
}

func newWorker(zc config.ZoneConfig, timing config.TimingConfig, p provider.Provider) *Worker {
	w := &Worker{
		zone:     zc,
		timing:   timing,
		provider: p,
		log:      slog.With("zone", zc.ID),
		queue:    make(chan *models.AnnouncementRequest, max(timing.QueueSize, 1)),
	}
	w.status.Store(models.StatusIdle)
	return w
}

// ID returns the zone id.
func (w *Worker) ID() string { return w.zone.ID }

// Status returns the current worker status.
func (w *Worker) Status() models.WorkerStatus { return w.status.Load() }

// Pending returns the number of requests enqueued but not yet executed.
func (w *Worker) Pending() int { return int(w.pending.Load()) }

// enqueue adds req to the worker's queue. The pending count is raised
// before the send so the coordinator never sees an empty worker that is
// about to receive work.
func (w *Worker) enqueue(req *models.AnnouncementRequest) {
	w.pending.Add(1)
	w.queue <- req
}

// stop pushes the sentinel that ends run once the queue is drained.
func (w *Worker) stop() {
	w.queue <- nil
}

func (w *Worker) setStatus(s models.WorkerStatus) {
	w.status.Store(s)
	w.publish(s)
}

func (w *Worker) publish(s models.WorkerStatus) {
	if w.bus != nil {
		w.bus.Publish(models.StatusEvent{Zone: w.zone.ID, Status: s, Time: time.Now()})
	}
}

// markWaiting is called by the coordinator after it consumed a done report.
func (w *Worker) markWaiting() bool {
	if w.status.MarkWaiting() {
		w.publish(models.StatusWaiting)
		return true
	}
	return false
}

func (w *Worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	w.log.Debug("worker: started")
	for req := range w.queue {
		if req == nil {
			w.log.Debug("worker: stopped")
			return
		}
		p := w.resolve(req)
		if presence.Allowed(w.presence, p.indicator, w.present, p.force) {
			w.setStatus(models.StatusPlaying)
			w.audioAlert(ctx, req.ID, p)
			w.played.Add(1)
		} else {
			w.log.Info("worker: presence indicator not present, skipping",
				"request", req.ID, "indicator", *p.indicator)
			w.skipped.Add(1)
		}

		if w.pending.Add(-1) == 0 {
			if w.status.Load() == models.StatusPlaying {
				w.waitOnFinished(ctx)
			}
			w.setStatus(models.StatusDone)
		}
	}
}

func (w *Worker) resolve(req *models.AnnouncementRequest) plan {
	p := plan{
		message: models.CleanMessage(req.Message),
		repeat:  w.zone.Repeat,
		tone:    w.zone.AlertSound,
		volume:  w.zone.Volume,
		pause:   w.timing.SettlePause.Std(),
		timeout: w.timing.PlaybackTimeout.Std(),
		force:   req.ForcePlay,
	}
	if req.Repeat != nil {
		p.repeat = *req.Repeat
	}
	if req.AlertSound != nil {
		p.tone = *req.AlertSound
	}
	if req.Volume != nil {
		p.volume = req.Volume
	}
	if w.zone.Pause != nil {
		p.pause = w.zone.Pause.Std()
	}
	if req.Pause != nil {
		p.pause = *req.Pause
	}
	if w.zone.PlaybackTimeout != nil {
		p.timeout = w.zone.PlaybackTimeout.Std()
	}
	if req.PlaybackTimeout != nil {
		p.timeout = *req.PlaybackTimeout
	}
	if w.zone.PresenceIndicator != "" {
		ind := w.zone.PresenceIndicator
		p.indicator = &ind
	}
	if req.PresenceIndicator != nil {
		p.indicator = req.PresenceIndicator
	}
	chime := req.Chime.Merge(w.zone.Chime)
	p.call = models.NewSpeechCall(w.zone.Speech.Kind, w.zone.Speech.Service, p.message, chime)
	return p
}

// audioAlert plays one request: pause, optional volume override, then
// repeat cycles of tone and speech, each followed by a wait for quiet.
func (w *Worker) audioAlert(ctx context.Context, id string, p plan) {
	dev := w.zone.Device
	w.log.Debug("worker: playing", "request", id, "message", p.message, "repeat", p.repeat)

	if err := w.provider.Pause(ctx, dev); err != nil {
		w.log.Warn("worker: pause failed", "err", err)
	}
	sleep(ctx, p.pause)

	if p.volume != nil {
		if err := w.provider.SetVolume(ctx, dev, *p.volume); err != nil {
			w.log.Warn("worker: set volume failed", "err", err)
		}
	}

	if w.mirror != nil && p.message != "" {
		if err := w.mirror.Mirror(ctx, w.zone.ID, p.message); err != nil {
			w.log.Debug("worker: mirror failed", "err", err)
		}
	}

	for i := 0; i < p.repeat; i++ {
		if ctx.Err() != nil {
			return
		}
		if p.tone != "" {
			if err := w.provider.PlayTone(ctx, dev, p.tone); err != nil {
				w.log.Warn("worker: alert tone failed", "tone", p.tone, "err", err)
			}
			sleep(ctx, p.pause)
			w.waitOnIdle(ctx, p.timeout)
		}
		if p.message != "" {
			if err := w.provider.Speak(ctx, dev, p.call); err != nil {
				w.log.Warn("worker: speech failed", "kind", p.call.Kind, "err", err)
			}
			sleep(ctx, p.pause)
			w.waitOnIdle(ctx, p.timeout)
		}
	}
}

// waitOnIdle polls until the zone is idle, paused, off or unavailable, or
// timeout elapses.
func (w *Worker) waitOnIdle(ctx context.Context, timeout time.Duration) bool {
	return w.poll(ctx, timeout, models.PlayState.Quiescent)
}

// waitOnFinished polls until the zone is idle, off or unavailable, bounded
// by the short finished timeout.
func (w *Worker) waitOnFinished(ctx context.Context) bool {
	return w.poll(ctx, w.timing.FinishedTimeout.Std(), models.PlayState.Finished)
}

// poll reads the zone state every poll interval until cond holds or the
// deadline passes. It reports whether cond was observed; a timeout is not
// an error. A state that cannot be read counts as not yet satisfied.
func (w *Worker) poll(ctx context.Context, timeout time.Duration, cond func(models.PlayState) bool) bool {
	interval := w.timing.PollInterval.Std()
	deadline := time.Now().Add(timeout)
	for {
		if err := w.provider.Refresh(ctx, w.zone.Device); err != nil {
			w.log.Debug("worker: refresh failed", "err", err)
		}
		st, err := w.provider.State(ctx, w.zone.Device)
		switch {
		case err == nil && cond(st.State):
			return true
		case err != nil && !provider.IsTransient(err):
			w.log.Debug("worker: state read failed", "err", err)
		}
		if !time.Now().Add(interval).Before(deadline) {
			w.log.Debug("worker: wait timed out", "timeout", timeout)
			return false
		}
		if !sleep(ctx, interval) {
			return false
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether it slept fully.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
