package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/lms-announce/internal/models"
)

func TestMockPlaybackEnds(t *testing.T) {
	ctx := context.Background()
	m := NewMock("kitchen")
	m.SetPlayDuration(20 * time.Millisecond)

	require.NoError(t, m.PlayTone(ctx, "kitchen", "ding"))
	st, err := m.State(ctx, "kitchen")
	require.NoError(t, err)
	assert.Equal(t, models.StatePlaying, st.State)

	assert.Eventually(t, func() bool {
		st, _ := m.State(ctx, "kitchen")
		return st.State == models.StateIdle
	}, time.Second, 5*time.Millisecond)
}

func TestMockGroups(t *testing.T) {
	ctx := context.Background()
	m := NewMock("a", "b", "c")

	require.NoError(t, m.Join(ctx, "a", "b"))
	require.NoError(t, m.Join(ctx, "a", "c"))
	assert.Equal(t, []string{"a", "b", "c"}, m.Members("b"))

	require.NoError(t, m.Unjoin(ctx, "b"))
	assert.Equal(t, []string{"a", "c"}, m.Members("a"))
	assert.Nil(t, m.Members("b"))

	require.NoError(t, m.Unjoin(ctx, "c"))
	assert.Nil(t, m.Members("a"))
}

func TestMockPlaylistRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMock("a")
	m.SetZoneState("a", models.ZoneState{State: models.StatePlaying, Position: 30 * time.Second})

	require.NoError(t, m.SavePlaylist(ctx, "a", "Save-a"))
	require.NoError(t, m.TurnOff(ctx, "a"))
	require.NoError(t, m.ResumePlaylist(ctx, "a", "Save-a"))

	st, err := m.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatePlaying, st.State)
	assert.Equal(t, 30*time.Second, st.Position)
	assert.Equal(t, []string{"playlist_save", "turn_off", "playlist_resume"}, m.Ops("a"))
}

func TestMockFailureInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMock("a")

	m.SetUnavailable("a", true)
	st, err := m.State(ctx, "a")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, models.StateUnavailable, st.State)

	m.SetUnavailable("a", false)
	m.SetMissing("a", true)
	_, err = m.State(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	m.SetFailWrite(true)
	assert.Error(t, m.Pause(ctx, "a"))
	assert.Empty(t, m.Calls())

	_, err = m.State(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, m.Polls("a"))
}
