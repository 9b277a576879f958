package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/micro-nova/lms-announce/internal/models"
)

// Call is one command recorded by the Mock.
type Call struct {
	Op   string
	Zone string
	Args []any
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return fmt.Sprintf("%s(%s)", c.Op, c.Zone)
	}
	return fmt.Sprintf("%s(%s, %v)", c.Op, c.Zone, c.Args)
}

type mockPlaylist struct {
	position time.Duration
}

type mockZone struct {
	state       models.ZoneState
	busyUntil   time.Time // end of a simulated tone or speech
	playlists   map[string]mockPlaylist
	prefs       map[string]string
	unavailable bool
	missing     bool
	stuck       bool
}

// Mock is a thread-safe in-memory provider for tests and development.
// Tones and speech "play" for a fixed duration and then leave the zone idle.
type Mock struct {
	mu        sync.Mutex
	zones     map[string]*mockZone
	groups    [][]string
	calls     []Call
	polls     map[string]int
	playFor   time.Duration
	failWrite bool
}

// NewMock creates a mock with the given zones, all idle at half volume.
func NewMock(zones ...string) *Mock {
	m := &Mock{
		zones:   make(map[string]*mockZone),
		polls:   make(map[string]int),
		playFor: 50 * time.Millisecond,
	}
	for _, z := range zones {
		m.addZone(z)
	}
	return m
}

func (m *Mock) addZone(zone string) *mockZone {
	vol := 0.5
	z := &mockZone{
		state: models.ZoneState{
			State:  models.StateIdle,
			Volume: &vol,
			Repeat: models.RepeatOff,
		},
		playlists: make(map[string]mockPlaylist),
		prefs:     make(map[string]string),
	}
	m.zones[zone] = z
	return z
}

// SetPlayDuration sets how long a simulated tone or speech lasts.
func (m *Mock) SetPlayDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playFor = d
}

// SetZoneState replaces the state of a zone. GroupMembers, when set,
// links the listed zones into one group.
func (m *Mock) SetZoneState(zone string, st models.ZoneState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[zone]
	if !ok {
		z = m.addZone(zone)
	}
	members := st.GroupMembers
	st.GroupMembers = nil
	z.state = st
	if len(members) > 1 {
		for _, member := range members {
			m.leave(member)
		}
		m.groups = append(m.groups, slices.Clone(members))
	}
}

// SetPreferenceValue presets an opaque preference.
func (m *Mock) SetPreferenceValue(zone, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[zone]; ok {
		z.prefs[key] = value
	}
}

// SetUnavailable makes State report the zone as unreachable.
func (m *Mock) SetUnavailable(zone string, unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[zone]; ok {
		z.unavailable = unavailable
	}
}

// SetMissing makes State report the zone as unknown.
func (m *Mock) SetMissing(zone string, missing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[zone]; ok {
		z.missing = missing
	}
}

// SetStuck makes State report the zone as playing forever.
func (m *Mock) SetStuck(zone string, stuck bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[zone]; ok {
		z.stuck = stuck
	}
}

// SetFailWrite configures the mock to fail all commands.
func (m *Mock) SetFailWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = fail
}

// Calls returns a copy of all recorded commands. With a zone argument only
// that zone's commands are returned.
func (m *Mock) Calls(zone ...string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if len(zone) == 0 || slices.Contains(zone, c.Zone) {
			out = append(out, c)
		}
	}
	return out
}

// Ops returns the recorded command names for zone in order.
func (m *Mock) Ops(zone string) []string {
	var ops []string
	for _, c := range m.Calls(zone) {
		ops = append(ops, c.Op)
	}
	return ops
}

// Count returns how many times op was recorded for zone.
func (m *Mock) Count(zone, op string) int {
	n := 0
	for _, c := range m.Calls(zone) {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Polls returns how many times State was called for zone.
func (m *Mock) Polls(zone string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[zone]
}

// Members returns the current group of zone, nil when ungrouped.
func (m *Mock) Members(zone string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.groupOf(zone))
}

// ResetCalls clears the recorded commands and poll counters.
func (m *Mock) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.polls = make(map[string]int)
}

func (m *Mock) groupOf(zone string) []string {
	for _, g := range m.groups {
		if slices.Contains(g, zone) {
			return g
		}
	}
	return nil
}

// leave removes zone from its group; groups left with one member dissolve.
func (m *Mock) leave(zone string) {
	var kept [][]string
	for _, g := range m.groups {
		g = slices.DeleteFunc(slices.Clone(g), func(s string) bool { return s == zone })
		if len(g) > 1 {
			kept = append(kept, g)
		}
	}
	m.groups = kept
}

// command records a call and returns the zone to mutate. Caller holds mu.
func (m *Mock) command(op, zone string, args ...any) (*mockZone, error) {
	if m.failWrite {
		return nil, fmt.Errorf("mock: %s failure configured", op)
	}
	m.calls = append(m.calls, Call{Op: op, Zone: zone, Args: args})
	z, ok := m.zones[zone]
	if !ok {
		return nil, ErrNotFound
	}
	return z, nil
}

func (m *Mock) Refresh(_ context.Context, zone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.command("refresh", zone)
	return err
}

func (m *Mock) State(_ context.Context, zone string) (models.ZoneState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls[zone]++
	z, ok := m.zones[zone]
	if !ok || z.missing {
		return models.ZoneState{}, ErrNotFound
	}
	if z.unavailable {
		return models.ZoneState{State: models.StateUnavailable}, ErrUnavailable
	}
	if !z.busyUntil.IsZero() && !time.Now().Before(z.busyUntil) {
		z.busyUntil = time.Time{}
		if z.state.State == models.StatePlaying {
			z.state.State = models.StateIdle
		}
	}
	st := z.state
	if st.Volume != nil {
		v := *st.Volume
		st.Volume = &v
	}
	if z.stuck {
		st.State = models.StatePlaying
	}
	st.GroupMembers = slices.Clone(m.groupOf(zone))
	return st, nil
}

func (m *Mock) Pause(_ context.Context, zone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("pause", zone)
	if err != nil {
		return err
	}
	if z.state.State == models.StatePlaying {
		z.state.State = models.StatePaused
	}
	z.busyUntil = time.Time{}
	return nil
}

func (m *Mock) SetVolume(_ context.Context, zone string, level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("volume_set", zone, level)
	if err != nil {
		return err
	}
	z.state.Volume = &level
	return nil
}

func (m *Mock) play(z *mockZone) {
	z.state.State = models.StatePlaying
	z.busyUntil = time.Now().Add(m.playFor)
}

func (m *Mock) PlayTone(_ context.Context, zone, tone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("play_tone", zone, tone)
	if err != nil {
		return err
	}
	m.play(z)
	return nil
}

func (m *Mock) Speak(_ context.Context, zone string, call models.SpeechCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("speak", zone, call)
	if err != nil {
		return err
	}
	m.play(z)
	return nil
}

func (m *Mock) Join(_ context.Context, zone, other string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.command("join", zone, other); err != nil {
		return err
	}
	m.leave(other)
	for i, g := range m.groups {
		if slices.Contains(g, zone) {
			m.groups[i] = append(g, other)
			return nil
		}
	}
	m.groups = append(m.groups, []string{zone, other})
	return nil
}

func (m *Mock) Unjoin(_ context.Context, zone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.command("unjoin", zone); err != nil {
		return err
	}
	m.leave(zone)
	return nil
}

func (m *Mock) SetShuffle(_ context.Context, zone string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("shuffle_set", zone, on)
	if err != nil {
		return err
	}
	z.state.Shuffle = on
	return nil
}

func (m *Mock) SetRepeat(_ context.Context, zone string, mode models.RepeatMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("repeat_set", zone, mode)
	if err != nil {
		return err
	}
	z.state.Repeat = mode
	return nil
}

func (m *Mock) TurnOff(_ context.Context, zone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("turn_off", zone)
	if err != nil {
		return err
	}
	z.state.State = models.StateOff
	z.busyUntil = time.Time{}
	return nil
}

func (m *Mock) Seek(_ context.Context, zone string, pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("seek", zone, pos)
	if err != nil {
		return err
	}
	z.state.Position = pos
	return nil
}

func (m *Mock) SavePlaylist(_ context.Context, zone, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("playlist_save", zone, name)
	if err != nil {
		return err
	}
	z.playlists[name] = mockPlaylist{position: z.state.Position}
	return nil
}

func (m *Mock) ResumePlaylist(_ context.Context, zone, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("playlist_resume", zone, name)
	if err != nil {
		return err
	}
	pl, ok := z.playlists[name]
	if !ok {
		return nil
	}
	delete(z.playlists, name)
	z.state.State = models.StatePlaying
	z.state.Position = pl.position
	z.busyUntil = time.Time{}
	return nil
}

func (m *Mock) Preference(_ context.Context, zone, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[zone]
	if !ok {
		return "", false, ErrNotFound
	}
	v, ok := z.prefs[key]
	return v, ok, nil
}

func (m *Mock) SetPreference(_ context.Context, zone, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.command("preference_set", zone, key, value)
	if err != nil {
		return err
	}
	z.prefs[key] = value
	return nil
}

// Ensure Mock implements Provider
var _ Provider = (*Mock)(nil)
