// Package config loads the daemon configuration: LMS connection, transport
// settings, polling timings and the per-zone announcement defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/micro-nova/lms-announce/internal/models"
)

// Config is the complete daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LMS      LMSConfig      `yaml:"lms"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Presence PresenceConfig `yaml:"presence"`
	Timing   TimingConfig   `yaml:"timing"`
	Notify   NotifyConfig   `yaml:"notify"`
	Zones    []ZoneConfig   `yaml:"zones"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address  string `yaml:"address"`
	Name     string `yaml:"name"`      // mDNS instance name, defaults to hostname
	Zeroconf bool   `yaml:"zeroconf"`  // advertise the API over mDNS
	KeysFile string `yaml:"keys_file"` // API keys; empty leaves the API open
}

// LMSConfig holds the Logitech Media Server connection.
type LMSConfig struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	TTSURL        string   `yaml:"tts_url"` // text is appended as the "text" query parameter
	RateLimit     float64  `yaml:"rate_limit"`
	Timeout       Duration `yaml:"timeout"`
	PreferenceKey string   `yaml:"preference_key"` // player pref captured and restored verbatim
}

// MQTTConfig holds the MQTT transport settings. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// PresenceConfig configures the presence indicator source.
type PresenceConfig struct {
	File         string `yaml:"file"`
	PresentValue string `yaml:"present_value"`
}

// TimingConfig holds polling intervals and timeouts.
type TimingConfig struct {
	PollInterval        Duration `yaml:"poll_interval"`
	CoordinatorInterval Duration `yaml:"coordinator_interval"`
	SettlePause         Duration `yaml:"settle_pause"`
	PlaybackTimeout     Duration `yaml:"playback_timeout"`
	FinishedTimeout     Duration `yaml:"finished_timeout"`
	QueueSize           int      `yaml:"queue_size"`
}

// NotifyConfig configures the desktop notification mirror.
type NotifyConfig struct {
	DBus    bool   `yaml:"dbus"`
	AppName string `yaml:"app_name"`
}

// SpeechConfig selects the speech call shape for a zone.
type SpeechConfig struct {
	Kind    models.SpeechKind `yaml:"kind"`
	Service string            `yaml:"service"`
}

// ZoneConfig holds one zone and its announcement defaults.
type ZoneConfig struct {
	ID                string               `yaml:"id"`
	Device            string               `yaml:"device"` // provider player id, e.g. an LMS MAC address
	Speech            SpeechConfig         `yaml:"speech"`
	Repeat            int                  `yaml:"repeat"` // 0 means 1
	Volume            *float64             `yaml:"volume"`
	AlertSound        string               `yaml:"alert_sound"`
	Pause             *Duration            `yaml:"pause"`
	PlaybackTimeout   *Duration            `yaml:"playback_timeout"`
	PresenceIndicator string               `yaml:"presence_indicator"`
	Chime             *models.ChimeOptions `yaml:"chime"`
}

// DefaultConfig returns the default configuration without zones.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:  ":8095",
			Zeroconf: true,
		},
		LMS: LMSConfig{
			Host:          "localhost",
			Port:          9000,
			RateLimit:     20,
			Timeout:       Duration(5 * time.Second),
			PreferenceKey: "transitionType",
		},
		MQTT: MQTTConfig{
			ClientID: "lms-announce",
			Prefix:   "lms_announce",
		},
		Presence: PresenceConfig{
			PresentValue: "home",
		},
		Timing: TimingConfig{
			PollInterval:        Duration(500 * time.Millisecond),
			CoordinatorInterval: Duration(1 * time.Second),
			SettlePause:         Duration(500 * time.Millisecond),
			PlaybackTimeout:     Duration(60 * time.Second),
			FinishedTimeout:     Duration(5 * time.Second),
			QueueSize:           32,
		},
		Notify: NotifyConfig{
			AppName: "lms-announce",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from a .env file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("config: no env file", "path", path)
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides connection settings from ANNOUNCE_* variables.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("ANNOUNCE_LMS_HOST"); ok {
		c.LMS.Host = v
	}
	if v, ok := os.LookupEnv("ANNOUNCE_LMS_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.LMS.Port = port
		} else {
			slog.Warn("config: ignoring invalid ANNOUNCE_LMS_PORT", "value", v)
		}
	}
	if v, ok := os.LookupEnv("ANNOUNCE_LMS_USERNAME"); ok {
		c.LMS.Username = v
	}
	if v, ok := os.LookupEnv("ANNOUNCE_LMS_PASSWORD"); ok {
		c.LMS.Password = v
	}
	if v, ok := os.LookupEnv("ANNOUNCE_MQTT_BROKER"); ok {
		c.MQTT.Broker = v
	}
	if v, ok := os.LookupEnv("ANNOUNCE_MQTT_USERNAME"); ok {
		c.MQTT.Username = v
	}
	if v, ok := os.LookupEnv("ANNOUNCE_MQTT_PASSWORD"); ok {
		c.MQTT.Password = v
	}
}

// ApplyDefaults fills unset per-zone fields: the device defaults to the zone
// id, the speech kind to direct and a zero repeat to one.
func (c *Config) ApplyDefaults() {
	for i := range c.Zones {
		z := &c.Zones[i]
		if z.Device == "" {
			z.Device = z.ID
		}
		if z.Speech.Kind == "" {
			z.Speech.Kind = models.SpeechDirect
		}
		if z.Repeat == 0 {
			z.Repeat = 1
		}
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if len(c.Zones) == 0 {
		return errors.New("config: at least one zone is required")
	}
	seen := make(map[string]bool, len(c.Zones))
	for _, z := range c.Zones {
		if z.ID == "" {
			return errors.New("config: zone id is required")
		}
		if seen[z.ID] {
			return fmt.Errorf("config: duplicate zone %q", z.ID)
		}
		seen[z.ID] = true
		if !z.Speech.Kind.Valid() {
			return fmt.Errorf("config: zone %q: unknown speech kind %q", z.ID, z.Speech.Kind)
		}
		if z.Repeat < 0 {
			return fmt.Errorf("config: zone %q: repeat must not be negative", z.ID)
		}
		if z.Volume != nil && (*z.Volume < 0 || *z.Volume > 1) {
			return fmt.Errorf("config: zone %q: volume must be between 0.0 and 1.0", z.ID)
		}
	}

	t := c.Timing
	if t.PollInterval <= 0 || t.CoordinatorInterval <= 0 {
		return errors.New("config: poll intervals must be positive")
	}
	if t.PlaybackTimeout <= 0 || t.FinishedTimeout <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	if t.SettlePause < 0 {
		return errors.New("config: settle_pause must not be negative")
	}
	if t.QueueSize <= 0 {
		return errors.New("config: queue_size must be positive")
	}
	return nil
}

// Zone returns the zone with the given id.
func (c *Config) Zone(id string) (ZoneConfig, bool) {
	for _, z := range c.Zones {
		if z.ID == id {
			return z, true
		}
	}
	return ZoneConfig{}, false
}
