package controller

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/micro-nova/lms-announce/internal/models"
)

// saveState captures every configured zone and folds reported group
// memberships into the batch topology. Called once per batch, before the
// first zone is normalized.
func (c *Coordinator) saveState(ctx context.Context) {
	c.snapshots = make(map[string]models.Snapshot, len(c.order))
	c.topology = models.NewGroupTopology()
	key := c.cfg.LMS.PreferenceKey

	for _, id := range c.order {
		dev := c.device(id)
		if err := c.provider.Refresh(ctx, dev); err != nil {
			slog.Debug("coordinator: refresh failed", "zone", id, "err", err)
		}

		snap := models.Snapshot{Zone: id, CapturedAt: time.Now()}
		st, err := c.provider.State(ctx, dev)
		if err != nil || st.State == models.StateUnavailable {
			if err != nil {
				slog.Debug("coordinator: zone state unreadable", "zone", id, "err", err)
			}
			snap.State = models.StateUnavailable
			c.snapshots[id] = snap
			continue
		}

		snap.ZoneState = st
		snap.GroupMembers = c.members(id, st.GroupMembers)
		if len(snap.GroupMembers) > 1 {
			c.topology.Add(models.Group(snap.GroupMembers))
		} else {
			snap.GroupMembers = nil
		}

		if key != "" {
			v, ok, err := c.provider.Preference(ctx, dev, key)
			switch {
			case err != nil:
				slog.Debug("coordinator: preference read failed", "zone", id, "err", err)
			case ok:
				snap.Preference = &v
			}
		}
		c.snapshots[id] = snap
	}

	c.captures.Add(1)
	slog.Debug("coordinator: state captured", "zones", len(c.snapshots), "groups", c.topology.Len())
}

// members converts reported device ids to zone ids and makes sure the zone
// itself is part of its own membership.
func (c *Coordinator) members(id string, reported []string) []string {
	if len(reported) == 0 {
		return nil
	}
	out := make([]string, 0, len(reported)+1)
	for _, dev := range reported {
		z := c.zone(dev)
		if !slices.Contains(out, z) {
			out = append(out, z)
		}
	}
	if !slices.Contains(out, id) {
		out = append([]string{id}, out...)
	}
	return out
}

// restoreState reapplies the per-zone settings captured for zone. It is
// idempotent and runs as soon as the zone reports done.
func (c *Coordinator) restoreState(ctx context.Context, zone string) {
	snap, ok := c.snapshots[zone]
	if !ok || !snap.Available() {
		slog.Debug("coordinator: no saved state", "zone", zone)
		return
	}
	dev := c.device(zone)
	log := slog.With("zone", zone)

	if snap.Volume != nil {
		if err := c.provider.SetVolume(ctx, dev, *snap.Volume); err != nil {
			log.Warn("coordinator: restore volume failed", "err", err)
		}
	}
	if err := c.provider.SetShuffle(ctx, dev, snap.Shuffle); err != nil {
		log.Warn("coordinator: restore shuffle failed", "err", err)
	}
	repeat := snap.Repeat
	if repeat == "" {
		repeat = models.RepeatOff
	}
	if err := c.provider.SetRepeat(ctx, dev, repeat); err != nil {
		log.Warn("coordinator: restore repeat failed", "err", err)
	}
	if snap.Preference != nil {
		if err := c.provider.SetPreference(ctx, dev, c.cfg.LMS.PreferenceKey, *snap.Preference); err != nil {
			log.Warn("coordinator: restore preference failed", "err", err)
		}
	}
	if snap.State == models.StateOff {
		if err := c.provider.TurnOff(ctx, dev); err != nil {
			log.Warn("coordinator: turn off failed", "err", err)
		}
	}
	log.Debug("coordinator: state restored", "state", snap.State)
}

// restorePlaylist resumes the playlist saved when zone entered the batch and
// seeks back to the captured position.
func (c *Coordinator) restorePlaylist(ctx context.Context, zone string) {
	snap := c.snapshots[zone]
	dev := c.device(zone)
	if err := c.provider.ResumePlaylist(ctx, dev, savedPlaylistPrefix+zone); err != nil {
		slog.Warn("coordinator: resume playlist failed", "zone", zone, "err", err)
	}
	if snap.Position > 0 {
		if err := c.provider.Seek(ctx, dev, snap.Position); err != nil {
			slog.Warn("coordinator: seek failed", "zone", zone, "err", err)
		}
	}
}
