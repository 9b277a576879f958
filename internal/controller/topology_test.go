package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/lms-announce/internal/config"
	"github.com/micro-nova/lms-announce/internal/models"
	"github.com/micro-nova/lms-announce/internal/provider"
)

func newTestCoordinator(m *provider.Mock, ids ...string) *Coordinator {
	cfg := config.DefaultConfig()
	cfg.LMS.PreferenceKey = "transitionType"
	cfg.Timing = fastTiming()
	for _, id := range ids {
		cfg.Zones = append(cfg.Zones, config.ZoneConfig{ID: id})
	}
	cfg.ApplyDefaults()
	return New(cfg, m)
}

// openBatch marks zones active and records their captured states.
func openBatch(c *Coordinator, states map[string]models.PlayState, active ...string) {
	c.snapshots = make(map[string]models.Snapshot)
	for zone, st := range states {
		c.snapshots[zone] = models.Snapshot{Zone: zone, ZoneState: models.ZoneState{State: st}}
	}
	c.topology = models.NewGroupTopology()
	for _, zone := range active {
		c.active = append(c.active, zone)
		c.inBatch[zone] = true
	}
}

func joins(m *provider.Mock) []string {
	var out []string
	for _, call := range m.Calls() {
		if call.Op == "join" {
			out = append(out, call.Zone+"<-"+call.Args[0].(string))
		}
	}
	return out
}

func TestRestoreSyncTwoMembers(t *testing.T) {
	m := provider.NewMock("A", "B")
	c := newTestCoordinator(m, "A", "B")
	openBatch(c, map[string]models.PlayState{"A": models.StatePlaying, "B": models.StatePlaying}, "A")

	c.restoreSync(context.Background(), models.Group{"A", "B"}, "A")
	assert.Equal(t, []string{"A<-B"}, joins(m))
	assert.Empty(t, m.Calls("B"), "B is not used as a fallback master")
}

func TestRestoreSyncTwoMembersUntouched(t *testing.T) {
	m := provider.NewMock("A", "B")
	c := newTestCoordinator(m, "A", "B")
	openBatch(c, nil)

	c.restoreSync(context.Background(), models.Group{"A", "B"}, "A")
	assert.Empty(t, joins(m))
}

func TestRestoreSyncUntouchedMemberBecomesMaster(t *testing.T) {
	m := provider.NewMock("A", "B", "C")
	c := newTestCoordinator(m, "A", "B", "C")
	openBatch(c, nil, "A", "B")

	c.restoreSync(context.Background(), models.Group{"A", "B", "C"}, "A")
	assert.Equal(t, []string{"C<-A", "C<-B"}, joins(m))
}

func TestRestoreSyncFirstUntouchedInCapturedOrder(t *testing.T) {
	m := provider.NewMock("A", "B", "C", "D")
	c := newTestCoordinator(m, "A", "B", "C", "D")
	openBatch(c, nil, "B")

	c.restoreSync(context.Background(), models.Group{"D", "B", "C", "A"}, "B")
	assert.Equal(t, []string{"D<-B"}, joins(m))
}

func TestRestoreSyncAllActiveAnchorLeads(t *testing.T) {
	m := provider.NewMock("A", "B", "C")
	c := newTestCoordinator(m, "A", "B", "C")
	openBatch(c, nil, "C", "A", "B")

	c.restoreSync(context.Background(), models.Group{"A", "B", "C"}, "B")
	assert.Equal(t, []string{"B<-A", "B<-C"}, joins(m))
}

func TestRestoreSyncUnconfiguredMember(t *testing.T) {
	m := provider.NewMock("A", "B", "ext")
	c := newTestCoordinator(m, "A", "B")
	openBatch(c, nil, "A", "B")

	c.restoreSync(context.Background(), models.Group{"A", "ext", "B"}, "A")
	assert.Equal(t, []string{"ext<-A", "ext<-B"}, joins(m))
}

func TestAnchorSelection(t *testing.T) {
	m := provider.NewMock("A", "B", "C")
	c := newTestCoordinator(m, "A", "B", "C")
	g := models.Group{"A", "B", "C"}

	openBatch(c, map[string]models.PlayState{
		"A": models.StatePaused, "B": models.StatePlaying, "C": models.StatePlaying,
	}, "A", "B")
	anchor, playing := c.anchor(g)
	assert.Equal(t, "B", anchor)
	assert.True(t, playing)

	c.active, c.inBatch = nil, map[string]bool{}
	openBatch(c, map[string]models.PlayState{"A": models.StateIdle, "B": models.StatePaused}, "B", "A")
	anchor, playing = c.anchor(g)
	assert.Equal(t, "A", anchor, "captured order, not arrival order")
	assert.False(t, playing)

	c.active, c.inBatch = nil, map[string]bool{}
	openBatch(c, nil)
	anchor, _ = c.anchor(g)
	assert.Empty(t, anchor)
}

func TestCheckDoneBarrier(t *testing.T) {
	m := provider.NewMock("a", "b")
	c := newTestCoordinator(m, "a", "b")
	openBatch(c, map[string]models.PlayState{"a": models.StateIdle, "b": models.StateIdle}, "a", "b")
	ctx := context.Background()
	wa, wb := c.workers["a"], c.workers["b"]

	wa.status.Store(models.StatusDone)
	wb.status.Store(models.StatusPlaying)
	assert.False(t, c.checkDone(ctx))
	assert.Equal(t, models.StatusWaiting, wa.Status(), "done zones are restored eagerly")
	assert.Equal(t, 1, m.Count("a", "shuffle_set"))
	assert.Zero(t, m.Count("b", "shuffle_set"))

	// a second pass does not restore a again
	assert.False(t, c.checkDone(ctx))
	assert.Equal(t, 1, m.Count("a", "shuffle_set"))

	wb.status.Store(models.StatusDone)
	wb.pending.Add(1)
	assert.False(t, c.checkDone(ctx), "pending work keeps the barrier closed")
	assert.Equal(t, models.StatusDone, wb.Status())

	wb.pending.Add(-1)
	assert.True(t, c.checkDone(ctx))
	assert.Equal(t, models.StatusWaiting, wb.Status())
	assert.Equal(t, 1, c.Status().Restores)
}

func TestCheckDoneNeverPassesWhilePlaying(t *testing.T) {
	m := provider.NewMock("a", "b", "c")
	c := newTestCoordinator(m, "a", "b", "c")
	ctx := context.Background()

	statuses := []models.WorkerStatus{models.StatusIdle, models.StatusPlaying, models.StatusWaiting, models.StatusDone}
	for _, sa := range statuses {
		for _, sb := range statuses {
			c.active, c.inBatch = nil, map[string]bool{}
			openBatch(c, nil, "a", "b")
			c.workers["a"].status.Store(sa)
			c.workers["b"].status.Store(sb)
			got := c.checkDone(ctx)
			if sa == models.StatusPlaying || sb == models.StatusPlaying {
				assert.False(t, got, "a=%s b=%s", sa, sb)
			}
		}
	}
	c.active = nil
	assert.False(t, c.checkDone(ctx), "empty batch")
}

func TestSaveStateFoldsGroups(t *testing.T) {
	m := provider.NewMock("a", "b", "c", "d")
	m.SetZoneState("a", models.ZoneState{State: models.StatePlaying, GroupMembers: []string{"a", "b"}})
	m.SetZoneState("b", models.ZoneState{State: models.StatePlaying})
	m.SetUnavailable("d", true)
	m.SetPreferenceValue("a", "transitionType", "2")
	c := newTestCoordinator(m, "a", "b", "c", "d")

	c.saveState(context.Background())

	require.Equal(t, 1, c.topology.Len())
	assert.Equal(t, models.Group{"a", "b"}, c.topology.Groups()[0])
	assert.Equal(t, []string{"a", "b"}, c.snapshots["b"].GroupMembers)
	assert.Nil(t, c.snapshots["c"].GroupMembers)
	assert.Equal(t, models.StateUnavailable, c.snapshots["d"].State)
	require.NotNil(t, c.snapshots["a"].Preference)
	assert.Equal(t, "2", *c.snapshots["a"].Preference)
	assert.Nil(t, c.snapshots["c"].Preference)
	assert.Equal(t, 1, c.Status().Captures)
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 1, m.Count(id, "refresh"), id)
	}
}

func TestMembersIncludesSelf(t *testing.T) {
	c := newTestCoordinator(provider.NewMock("a", "b", "c"), "a", "b", "c")
	assert.Equal(t, []string{"c", "a", "b"}, c.members("c", []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, c.members("b", []string{"a", "b", "a"}))
	assert.Nil(t, c.members("a", nil))
}

func TestRestoreState(t *testing.T) {
	m := provider.NewMock("on", "off")
	c := newTestCoordinator(m, "on", "off")
	vol, pref := 0.25, "1"
	c.snapshots = map[string]models.Snapshot{
		"on": {Zone: "on", ZoneState: models.ZoneState{
			State: models.StatePaused, Volume: &vol, Shuffle: true, Repeat: models.RepeatOne,
		}, Preference: &pref},
		"off": {Zone: "off", ZoneState: models.ZoneState{State: models.StateOff}},
	}
	ctx := context.Background()

	c.restoreState(ctx, "on")
	c.restoreState(ctx, "off")
	c.restoreState(ctx, "missing")

	assert.Equal(t, []string{"volume_set", "shuffle_set", "repeat_set", "preference_set"}, m.Ops("on"))
	assert.Equal(t, []string{"shuffle_set", "repeat_set", "turn_off"}, m.Ops("off"))

	st, err := m.State(ctx, "on")
	require.NoError(t, err)
	assert.True(t, st.Shuffle)
	assert.Equal(t, models.RepeatOne, st.Repeat)
}

func TestRestorePlaylistSkipsZeroPosition(t *testing.T) {
	m := provider.NewMock("a")
	c := newTestCoordinator(m, "a")
	c.snapshots = map[string]models.Snapshot{"a": {Zone: "a", ZoneState: models.ZoneState{State: models.StatePlaying}}}

	c.restorePlaylist(context.Background(), "a")
	assert.Equal(t, []string{"playlist_resume"}, m.Ops("a"))
	assert.Equal(t, []any{"Save-a"}, m.Calls("a")[0].Args)
}
