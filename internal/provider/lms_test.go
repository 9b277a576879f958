package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/lms-announce/internal/config"
	"github.com/micro-nova/lms-announce/internal/models"
)

// fakeLMS records slim.request commands and answers from a result table.
type fakeLMS struct {
	mu       sync.Mutex
	commands [][]string
	players  []string
	results  map[string]map[string]any // keyed by command name
	status   int
}

func (f *fakeLMS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	var req struct {
		ID     int64             `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "slim.request" || len(req.Params) != 2 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var player string
	var cmd []string
	_ = json.Unmarshal(req.Params[0], &player)
	_ = json.Unmarshal(req.Params[1], &cmd)

	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.players = append(f.players, player)
	result := f.results[cmd[0]]
	f.mu.Unlock()
	if result == nil {
		result = map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"id": req.ID, "result": result})
}

func (f *fakeLMS) last() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return nil
	}
	return f.commands[len(f.commands)-1]
}

func (f *fakeLMS) all() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.commands...)
}

func newTestLMS(t *testing.T, f *fakeLMS, tts string) *LMS {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewLMS(config.LMSConfig{TTSURL: tts}).WithEndpoint(srv.URL + "/jsonrpc.js")
}

func TestLMSStateParsesStatus(t *testing.T) {
	f := &fakeLMS{results: map[string]map[string]any{
		"status": {
			"mode":             "play",
			"power":            1,
			"mixer volume":     "35",
			"time":             42.5,
			"playlist shuffle": 1,
			"playlist repeat":  2,
			"player_connected": 1,
			"sync_master":      "aa:aa",
			"sync_slaves":      "bb:bb,cc:cc",
		},
	}}
	l := newTestLMS(t, f, "")

	st, err := l.State(context.Background(), "bb:bb")
	require.NoError(t, err)
	assert.Equal(t, models.StatePlaying, st.State)
	require.NotNil(t, st.Volume)
	assert.InDelta(t, 0.35, *st.Volume, 1e-9)
	assert.Equal(t, 42500*time.Millisecond, st.Position)
	assert.True(t, st.Shuffle)
	assert.Equal(t, models.RepeatAll, st.Repeat)
	assert.Equal(t, []string{"aa:aa", "bb:bb", "cc:cc"}, st.GroupMembers)
	assert.Equal(t, []string{"status", "-", "1", "tags:"}, f.last())
}

func TestLMSStatePowerOff(t *testing.T) {
	f := &fakeLMS{results: map[string]map[string]any{
		"status": {"mode": "stop", "power": 0, "player_connected": 1},
	}}
	l := newTestLMS(t, f, "")

	st, err := l.State(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StateOff, st.State)
	assert.Empty(t, st.GroupMembers)
}

func TestLMSStateUnknownPlayer(t *testing.T) {
	l := newTestLMS(t, &fakeLMS{}, "")
	_, err := l.State(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsTransient(err))
}

func TestLMSStateDisconnected(t *testing.T) {
	f := &fakeLMS{results: map[string]map[string]any{
		"status": {"mode": "stop", "player_connected": 0},
	}}
	l := newTestLMS(t, f, "")
	st, err := l.State(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StateUnavailable, st.State)
}

func TestLMSServerErrorIsUnavailable(t *testing.T) {
	l := newTestLMS(t, &fakeLMS{status: http.StatusInternalServerError}, "")
	_, err := l.State(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Error(t, l.Pause(context.Background(), "p1"))
}

func TestLMSCommands(t *testing.T) {
	ctx := context.Background()
	f := &fakeLMS{}
	l := newTestLMS(t, f, "")

	cases := []struct {
		name string
		run  func() error
		want []string
	}{
		{"pause", func() error { return l.Pause(ctx, "p") }, []string{"pause", "1"}},
		{"volume", func() error { return l.SetVolume(ctx, "p", 0.456) }, []string{"mixer", "volume", "46"}},
		{"volume clamp", func() error { return l.SetVolume(ctx, "p", 1.7) }, []string{"mixer", "volume", "100"}},
		{"tone url", func() error { return l.PlayTone(ctx, "p", "http://host/ding.mp3") }, []string{"playlist", "play", "http://host/ding.mp3"}},
		{"tone playlist", func() error { return l.PlayTone(ctx, "p", "doorbell") }, []string{"playlist", "resume", "doorbell"}},
		{"join", func() error { return l.Join(ctx, "p", "q") }, []string{"sync", "q"}},
		{"unjoin", func() error { return l.Unjoin(ctx, "p") }, []string{"sync", "-"}},
		{"shuffle", func() error { return l.SetShuffle(ctx, "p", true) }, []string{"playlist", "shuffle", "1"}},
		{"repeat one", func() error { return l.SetRepeat(ctx, "p", models.RepeatOne) }, []string{"playlist", "repeat", "1"}},
		{"repeat off", func() error { return l.SetRepeat(ctx, "p", models.RepeatOff) }, []string{"playlist", "repeat", "0"}},
		{"off", func() error { return l.TurnOff(ctx, "p") }, []string{"power", "0"}},
		{"seek", func() error { return l.Seek(ctx, "p", 90500*time.Millisecond) }, []string{"time", "90.5"}},
		{"save", func() error { return l.SavePlaylist(ctx, "p", "Save-kitchen") }, []string{"playlist", "save", "Save-kitchen", "silent:1"}},
		{"resume", func() error { return l.ResumePlaylist(ctx, "p", "Save-kitchen") }, []string{"playlist", "resume", "Save-kitchen", "wipePlaylist:1"}},
		{"pref set", func() error { return l.SetPreference(ctx, "p", "transitionType", "2") }, []string{"playerpref", "transitionType", "2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.run())
			assert.Equal(t, tc.want, f.last())
		})
	}
}

func TestLMSPreference(t *testing.T) {
	f := &fakeLMS{results: map[string]map[string]any{
		"playerpref": {"_p2": "3"},
	}}
	l := newTestLMS(t, f, "")

	v, ok, err := l.Preference(context.Background(), "p", "transitionType")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	assert.Equal(t, []string{"playerpref", "transitionType", "?"}, f.last())
}

func TestLMSPreferenceUnset(t *testing.T) {
	l := newTestLMS(t, &fakeLMS{}, "")
	_, ok, err := l.Preference(context.Background(), "p", "transitionType")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLMSSpeakDirect(t *testing.T) {
	f := &fakeLMS{}
	l := newTestLMS(t, f, "http://tts.local/say")

	call := models.NewSpeechCall(models.SpeechDirect, "piper", "Dinner is ready", nil)
	require.NoError(t, l.Speak(context.Background(), "p", call))

	cmd := f.last()
	require.Len(t, cmd, 3)
	assert.Equal(t, []string{"playlist", "play"}, cmd[:2])
	u, err := url.Parse(cmd[2])
	require.NoError(t, err)
	assert.Equal(t, "tts.local", u.Host)
	assert.Equal(t, "Dinner is ready", u.Query().Get("text"))
	assert.Equal(t, "piper", u.Query().Get("engine"))
}

func TestLMSSpeakChime(t *testing.T) {
	f := &fakeLMS{}
	l := newTestLMS(t, f, "http://tts.local/say")

	lead, tail, rate := "http://host/in.mp3", "http://host/out.mp3", 1.2
	call := models.NewSpeechCall(models.SpeechChime, "", "Hello", &models.ChimeOptions{
		LeadIn: &lead, Trailing: &tail, Rate: &rate,
	})
	require.NoError(t, l.Speak(context.Background(), "p", call))

	cmds := f.all()
	require.Len(t, cmds, 3)
	assert.Equal(t, []string{"playlist", "play", lead}, cmds[0])
	assert.Equal(t, "add", cmds[1][1])
	u, err := url.Parse(cmds[1][2])
	require.NoError(t, err)
	assert.Equal(t, "Hello", u.Query().Get("text"))
	assert.Equal(t, "1.2", u.Query().Get("tts_speed"))
	assert.Empty(t, u.Query().Get("chime_path"))
	assert.Equal(t, []string{"playlist", "add", tail}, cmds[2])
}

func TestLMSSpeakNotify(t *testing.T) {
	f := &fakeLMS{}
	l := newTestLMS(t, f, "http://tts.local/say")

	call := models.NewSpeechCall(models.SpeechNotify, "", "Door open", nil)
	require.NoError(t, l.Speak(context.Background(), "p", call))

	cmds := f.all()
	require.Len(t, cmds, 2)
	assert.Equal(t, []string{"display", "Door open", "", "10"}, cmds[0])
	assert.Equal(t, "play", cmds[1][1])
}

func TestLMSSpeakWithoutTTS(t *testing.T) {
	f := &fakeLMS{}
	l := newTestLMS(t, f, "")
	err := l.Speak(context.Background(), "p", models.NewSpeechCall(models.SpeechDirect, "", "x", nil))
	assert.Error(t, err)
	assert.Empty(t, f.all())
}

func TestLMSBasicAuth(t *testing.T) {
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		_, _ = w.Write([]byte(`{"id":1,"result":{}}`))
	}))
	defer srv.Close()

	l := NewLMS(config.LMSConfig{Username: "admin", Password: "secret"}).WithEndpoint(srv.URL)
	require.NoError(t, l.Pause(context.Background(), "p"))
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
}
