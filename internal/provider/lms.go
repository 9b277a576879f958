package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/micro-nova/lms-announce/internal/config"
	"github.com/micro-nova/lms-announce/internal/models"
)

// LMS drives Squeezebox players through the Logitech Media Server JSON-RPC
// endpoint. Zones are addressed by player id (usually the MAC address).
type LMS struct {
	endpoint string
	username string
	password string
	ttsURL   string

	client  *http.Client
	limiter *rate.Limiter
	nextID  atomic.Int64
}

// NewLMS creates a driver for the server described by cfg.
func NewLMS(cfg config.LMSConfig) *LMS {
	port := cfg.Port
	if port == 0 {
		port = 9000
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(math.Ceil(cfg.RateLimit/4)))
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LMS{
		endpoint: fmt.Sprintf("http://%s:%d/jsonrpc.js", cfg.Host, port),
		username: cfg.Username,
		password: cfg.Password,
		ttsURL:   cfg.TTSURL,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// WithEndpoint overrides the JSON-RPC URL. Used by tests.
func (l *LMS) WithEndpoint(endpoint string) *LMS {
	l.endpoint = endpoint
	return l
}

type rpcRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcResponse struct {
	ID     int64          `json:"id"`
	Result map[string]any `json:"result"`
	Error  any            `json:"error,omitempty"`
}

// request sends one slim.request command for player.
func (l *LMS) request(ctx context.Context, player string, cmd ...string) (map[string]any, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("lms: rate limit: %w", err)
	}

	body, err := json.Marshal(rpcRequest{
		ID:     l.nextID.Add(1),
		Method: "slim.request",
		Params: []any{player, cmd},
	})
	if err != nil {
		return nil, fmt.Errorf("lms: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("lms: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.username != "" {
		req.SetBasicAuth(l.username, l.password)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lms %s: %w", cmd[0], err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("lms %s: read: %w", cmd[0], err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lms %s: http %d", cmd[0], resp.StatusCode)
	}

	var out rpcResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("lms %s: decode: %w", cmd[0], err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("lms %s: %v", cmd[0], out.Error)
	}
	slog.Debug("lms: request", "player", player, "cmd", cmd)
	return out.Result, nil
}

func (l *LMS) command(ctx context.Context, player string, cmd ...string) error {
	_, err := l.request(ctx, player, cmd...)
	return err
}

// Refresh is a no-op: the server answers status from live player state.
func (l *LMS) Refresh(context.Context, string) error { return nil }

func (l *LMS) State(ctx context.Context, zone string) (models.ZoneState, error) {
	res, err := l.request(ctx, zone, "status", "-", "1", "tags:")
	if err != nil {
		return models.ZoneState{State: models.StateUnavailable}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, ok := res["mode"]; !ok {
		return models.ZoneState{}, ErrNotFound
	}
	if v, ok := res["player_connected"]; ok && number(v) == 0 {
		return models.ZoneState{State: models.StateUnavailable}, nil
	}
	return parseStatus(res), nil
}

func parseStatus(res map[string]any) models.ZoneState {
	var st models.ZoneState

	switch mode, _ := res["mode"].(string); {
	case number(res["power"]) == 0 && res["power"] != nil:
		st.State = models.StateOff
	case mode == "play":
		st.State = models.StatePlaying
	case mode == "pause":
		st.State = models.StatePaused
	default:
		st.State = models.StateIdle
	}

	if v, ok := res["mixer volume"]; ok {
		// negative volume means muted at that level
		vol := math.Abs(number(v)) / 100
		st.Volume = &vol
	}
	st.Position = time.Duration(number(res["time"]) * float64(time.Second))
	st.Shuffle = number(res["playlist shuffle"]) != 0
	switch number(res["playlist repeat"]) {
	case 1:
		st.Repeat = models.RepeatOne
	case 2:
		st.Repeat = models.RepeatAll
	default:
		st.Repeat = models.RepeatOff
	}

	if master, _ := res["sync_master"].(string); master != "" {
		st.GroupMembers = append(st.GroupMembers, master)
		if slaves, _ := res["sync_slaves"].(string); slaves != "" {
			for _, s := range strings.Split(slaves, ",") {
				if s = strings.TrimSpace(s); s != "" && s != master {
					st.GroupMembers = append(st.GroupMembers, s)
				}
			}
		}
	}
	return st
}

// number reads a JSON value that LMS may send as a number or a string.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

func (l *LMS) Pause(ctx context.Context, zone string) error {
	return l.command(ctx, zone, "pause", "1")
}

func (l *LMS) SetVolume(ctx context.Context, zone string, level float64) error {
	pct := int(math.Round(min(max(level, 0), 1) * 100))
	return l.command(ctx, zone, "mixer", "volume", strconv.Itoa(pct))
}

// PlayTone plays a URL or path directly; anything else is treated as the
// name of a saved playlist.
func (l *LMS) PlayTone(ctx context.Context, zone, tone string) error {
	if strings.Contains(tone, "/") || strings.Contains(tone, ":") {
		return l.command(ctx, zone, "playlist", "play", tone)
	}
	return l.command(ctx, zone, "playlist", "resume", tone)
}

func (l *LMS) Speak(ctx context.Context, zone string, call models.SpeechCall) error {
	speech, err := l.speechURL(call)
	if err != nil {
		return err
	}

	switch call.Kind {
	case models.SpeechChime:
		first := speech
		if lead, ok := call.Options["chime_path"].(string); ok && lead != "" {
			first = lead
		}
		if err := l.command(ctx, zone, "playlist", "play", first); err != nil {
			return err
		}
		if first != speech {
			if err := l.command(ctx, zone, "playlist", "add", speech); err != nil {
				return err
			}
		}
		if tail, ok := call.Options["end_chime_path"].(string); ok && tail != "" {
			return l.command(ctx, zone, "playlist", "add", tail)
		}
		return nil
	case models.SpeechNotify:
		if err := l.command(ctx, zone, "display", call.Text, "", "10"); err != nil {
			slog.Warn("lms: display failed", "player", zone, "err", err)
		}
		return l.command(ctx, zone, "playlist", "play", speech)
	default:
		return l.command(ctx, zone, "playlist", "play", speech)
	}
}

// speechURL builds the TTS URL for call. Chime paths are played as separate
// playlist items; the remaining options are passed to the TTS endpoint.
func (l *LMS) speechURL(call models.SpeechCall) (string, error) {
	if l.ttsURL == "" {
		return "", fmt.Errorf("lms: tts_url not configured")
	}
	u, err := url.Parse(l.ttsURL)
	if err != nil {
		return "", fmt.Errorf("lms: tts_url: %w", err)
	}
	q := u.Query()
	q.Set("text", call.Text)
	if call.Service != "" {
		q.Set("engine", call.Service)
	}
	for k, v := range call.Options {
		if k == "chime_path" || k == "end_chime_path" {
			continue
		}
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (l *LMS) Join(ctx context.Context, zone, other string) error {
	return l.command(ctx, zone, "sync", other)
}

func (l *LMS) Unjoin(ctx context.Context, zone string) error {
	return l.command(ctx, zone, "sync", "-")
}

func (l *LMS) SetShuffle(ctx context.Context, zone string, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return l.command(ctx, zone, "playlist", "shuffle", v)
}

func (l *LMS) SetRepeat(ctx context.Context, zone string, mode models.RepeatMode) error {
	v := "0"
	switch mode {
	case models.RepeatOne:
		v = "1"
	case models.RepeatAll:
		v = "2"
	}
	return l.command(ctx, zone, "playlist", "repeat", v)
}

func (l *LMS) TurnOff(ctx context.Context, zone string) error {
	return l.command(ctx, zone, "power", "0")
}

func (l *LMS) Seek(ctx context.Context, zone string, pos time.Duration) error {
	return l.command(ctx, zone, "time", strconv.FormatFloat(pos.Seconds(), 'f', 1, 64))
}

func (l *LMS) SavePlaylist(ctx context.Context, zone, name string) error {
	return l.command(ctx, zone, "playlist", "save", name, "silent:1")
}

func (l *LMS) ResumePlaylist(ctx context.Context, zone, name string) error {
	return l.command(ctx, zone, "playlist", "resume", name, "wipePlaylist:1")
}

func (l *LMS) Preference(ctx context.Context, zone, key string) (string, bool, error) {
	res, err := l.request(ctx, zone, "playerpref", key, "?")
	if err != nil {
		return "", false, err
	}
	v, ok := res["_p2"]
	if !ok || v == nil {
		return "", false, nil
	}
	return fmt.Sprint(v), true, nil
}

func (l *LMS) SetPreference(ctx context.Context, zone, key, value string) error {
	return l.command(ctx, zone, "playerpref", key, value)
}

var _ Provider = (*LMS)(nil)
