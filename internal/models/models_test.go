package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneListUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    ZoneList
		wantErr bool
	}{
		{`"kitchen"`, ZoneList{"kitchen"}, false},
		{`["kitchen","office"]`, ZoneList{"kitchen", "office"}, false},
		{`""`, nil, false},
		{`42`, nil, true},
	}
	for _, tt := range tests {
		var l ZoneList
		err := json.Unmarshal([]byte(tt.in), &l)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, l, tt.in)
	}
}

func TestChimeMerge(t *testing.T) {
	lead, trail := "ding.mp3", "dong.mp3"
	rate := 1.2
	def := &ChimeOptions{LeadIn: &lead, Trailing: &trail}
	req := &ChimeOptions{Rate: &rate}

	merged := req.Merge(def)
	assert.Equal(t, map[string]any{"chime_path": lead, "end_chime_path": trail, "tts_speed": rate}, merged.Params())
	assert.Nil(t, def.Rate, "defaults are not modified")

	var none *ChimeOptions
	assert.Nil(t, none.Merge(nil))
	assert.Empty(t, none.Params())
	assert.Equal(t, def.Params(), none.Merge(def).Params())
}

func TestNewSpeechCall(t *testing.T) {
	lead := "ding.mp3"
	chime := &ChimeOptions{LeadIn: &lead}

	call := NewSpeechCall(SpeechChime, "tts.chime", "hi", chime)
	assert.Equal(t, map[string]any{"chime_path": lead}, call.Options)

	call = NewSpeechCall(SpeechDirect, "", "hi", chime)
	assert.Nil(t, call.Options)

	call = NewSpeechCall("bogus", "", "hi", nil)
	assert.Equal(t, SpeechDirect, call.Kind)
}

func TestCleanMessage(t *testing.T) {
	assert.Equal(t, "line oneline two", CleanMessage(" line one<br>line two "))
}

func TestPlayStatePredicates(t *testing.T) {
	assert.True(t, StatePaused.Quiescent())
	assert.False(t, StatePaused.Finished())
	assert.True(t, StateUnavailable.Finished())
	assert.False(t, StatePlaying.Quiescent())
}

func TestGroupTopologyDedupes(t *testing.T) {
	topo := NewGroupTopology()
	assert.True(t, topo.Add(Group{"a", "b"}))
	assert.False(t, topo.Add(Group{"b", "a"}))
	assert.False(t, topo.Add(nil))
	assert.True(t, topo.Add(Group{"c", "d", "e"}))

	assert.Equal(t, 2, topo.Len())
	assert.True(t, topo.Grouped("e"))
	assert.False(t, topo.Grouped("z"))

	var empty *GroupTopology
	assert.Equal(t, 0, empty.Len())
	assert.False(t, empty.Grouped("a"))
}

func TestWorkerStatusText(t *testing.T) {
	data, err := json.Marshal(ZoneStatus{Zone: "a", Status: StatusWaiting})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"waiting"`)

	var zs ZoneStatus
	require.NoError(t, json.Unmarshal(data, &zs))
	assert.Equal(t, StatusWaiting, zs.Status)

	var s WorkerStatus
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestStatusCellMarkWaiting(t *testing.T) {
	var c StatusCell
	c.Store(StatusPlaying)
	assert.False(t, c.MarkWaiting())
	c.Store(StatusDone)
	assert.True(t, c.MarkWaiting())
	assert.Equal(t, StatusWaiting, c.Load())
	assert.True(t, c.Load().Settled())
}
