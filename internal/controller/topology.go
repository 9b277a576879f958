package controller

import (
	"context"
	"log/slog"
	"slices"

	"github.com/micro-nova/lms-announce/internal/models"
)

// restorePlayback runs once the barrier is reached. Ungrouped zones that
// were playing get their playlist back; every captured group is rejoined
// around an anchor and only the anchor's playlist is resumed.
func (c *Coordinator) restorePlayback(ctx context.Context) {
	for _, zone := range c.active {
		if c.topology.Grouped(zone) {
			continue
		}
		if c.snapshots[zone].State == models.StatePlaying {
			c.restorePlaylist(ctx, zone)
		}
	}

	for _, g := range c.topology.Groups() {
		anchor, playing := c.anchor(g)
		if anchor == "" {
			continue
		}
		c.restoreSync(ctx, g, anchor)
		if playing {
			c.restorePlaylist(ctx, anchor)
		}
	}
}

// anchor picks the member of g that drives its reconnection: the first
// active member, in captured order, that was playing, else the first active
// member. playing reports which case applied. An untouched group has no
// anchor.
func (c *Coordinator) anchor(g models.Group) (zone string, playing bool) {
	for _, m := range g {
		if c.inBatch[m] && c.snapshots[m].State == models.StatePlaying {
			return m, true
		}
	}
	for _, m := range g {
		if c.inBatch[m] {
			return m, false
		}
	}
	return "", false
}

// restoreSync relinks the members of g that the batch detached.
//
// A two member group joins the other member to the anchor. Larger groups
// re-centre on the first member the batch never touched, so an untouched
// listening group keeps its leader; when every member was touched the
// anchor leads and the remaining active members join it.
func (c *Coordinator) restoreSync(ctx context.Context, g models.Group, anchor string) {
	if len(g) < 2 {
		return
	}
	if len(g) == 2 {
		if !c.inBatch[g[0]] && !c.inBatch[g[1]] {
			return
		}
		other := g[0]
		if other == anchor {
			other = g[1]
		}
		c.join(ctx, anchor, other)
		return
	}

	var rejoin []string
	master := ""
	for _, m := range g {
		if c.inBatch[m] {
			rejoin = append(rejoin, m)
		} else if master == "" {
			master = m
		}
	}
	if master == "" {
		master = anchor
		rejoin = slices.DeleteFunc(rejoin, func(m string) bool { return m == anchor })
	}
	for _, m := range rejoin {
		c.join(ctx, master, m)
	}
}

func (c *Coordinator) join(ctx context.Context, master, member string) {
	slog.Debug("coordinator: rejoining", "master", master, "member", member)
	if err := c.provider.Join(ctx, c.device(master), c.device(member)); err != nil {
		slog.Warn("coordinator: join failed", "master", master, "member", member, "err", err)
	}
}
