package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

const (
	configFile          = "config.toml"
	defaultMaxMessages  = 1000
	defaultSplitRatio   = 0.5
	defaultPollInterval = time.Second
	defaultTick         = 500 * time.Millisecond
	defaultGrace        = 100 * time.Millisecond
	defaultHost         = "localhost"
	defaultPort         = 5672
)

// FileConfig is the TOML file structure.
type FileConfig struct {
	PollInterval string             `toml:"poll_interval"`
	Tick         string             `toml:"tick"`
	Grace        string             `toml:"grace"`
	MaxMessages  int                `toml:"max_messages"`
	Proto        string             `toml:"proto"`
	DBPath       string             `toml:"db"`
	MetricsAddr  string             `toml:"metrics_addr"`
	UI           UIConfig           `toml:"ui"`
	Profiles     map[string]Profile `toml:"profiles"`
}

// UIConfig holds UI-related settings.
type UIConfig struct {
	SplitRatio  float64 `toml:"split_ratio"`
	CompactMode bool    `toml:"compact_mode"`
}

// Profile is a named connection profile. URL, when set, supplies every
// connection field the profile leaves empty.
type Profile struct {
	URL           string `toml:"url"`
	Protocol      string `toml:"protocol"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	VHost         string `toml:"vhost"`
	ManagementURL string `toml:"management_url"`
	Proto         string `toml:"proto"`
}

// Config is the resolved runtime config after profile selection.
type Config struct {
	Broker      rabbitmq.Params
	ProtoPath   string
	DBPath      string
	MetricsAddr string
	MaxMessages int

	PollInterval time.Duration
	Tick         time.Duration
	Grace        time.Duration

	// UI
	DefaultSplitRatio float64
	CompactMode       bool

	// For saving settings back
	ConfigDir string
}

// LoadFileConfig loads config.toml from configDir.
// Returns a zero-value FileConfig (no error) if the file doesn't exist.
func LoadFileConfig(configDir string) (*FileConfig, error) {
	path := filepath.Join(configDir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, err
	}

	var cfg FileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Resolve merges a profile (by name) with global config and env vars into
// a runtime Config. If profileName is empty or not found, only global and
// env settings are used.
func (fc FileConfig) Resolve(profileName string, configDir string) (Config, error) {
	cfg := Config{
		ProtoPath:         fc.Proto,
		DBPath:            fc.DBPath,
		MetricsAddr:       fc.MetricsAddr,
		MaxMessages:       fc.MaxMessages,
		DefaultSplitRatio: fc.UI.SplitRatio,
		CompactMode:       fc.UI.CompactMode,
		ConfigDir:         configDir,
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = defaultMaxMessages
	}
	if cfg.DefaultSplitRatio == 0 {
		cfg.DefaultSplitRatio = defaultSplitRatio
	}

	var err error
	if cfg.PollInterval, err = duration("poll_interval", fc.PollInterval, defaultPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.Tick, err = duration("tick", fc.Tick, defaultTick); err != nil {
		return Config{}, err
	}
	if cfg.Grace, err = duration("grace", fc.Grace, defaultGrace); err != nil {
		return Config{}, err
	}

	p, ok := fc.Profiles[profileName]
	if profileName != "" && !ok {
		return Config{}, fmt.Errorf("unknown profile %q", profileName)
	}
	if p.Proto != "" {
		cfg.ProtoPath = p.Proto
	}

	// Fall back to env vars for anything the profile does not set.
	if p.URL == "" {
		p.URL = firstEnv("RABBITWATCH_URL", "AMQP_URL", "RABBITMQ_URL")
	}
	if p.Host == "" {
		p.Host = os.Getenv("RABBITWATCH_HOST")
	}
	if p.Port == 0 {
		if v := os.Getenv("RABBITWATCH_PORT"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid RABBITWATCH_PORT %q: %w", v, err)
			}
			p.Port = port
		}
	}
	if p.Username == "" {
		p.Username = os.Getenv("RABBITWATCH_USER")
	}
	if p.Password == "" {
		p.Password = os.Getenv("RABBITWATCH_PASSWORD")
	}

	cfg.Broker, err = p.params()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// params builds connection params, filling empty fields from URL and then
// from defaults.
func (p Profile) params() (rabbitmq.Params, error) {
	out := rabbitmq.Params{
		Protocol:      p.Protocol,
		Host:          p.Host,
		Port:          p.Port,
		Username:      p.Username,
		Password:      p.Password,
		VHost:         p.VHost,
		ManagementURL: p.ManagementURL,
	}

	if p.URL != "" {
		uri, err := amqp.ParseURI(p.URL)
		if err != nil {
			return rabbitmq.Params{}, fmt.Errorf("invalid broker URL: %w", err)
		}
		if out.Protocol == "" {
			out.Protocol = rabbitmq.ProtocolTCP
			if uri.Scheme == "amqps" {
				out.Protocol = rabbitmq.ProtocolSSL
			}
		}
		if out.Host == "" {
			out.Host = uri.Host
		}
		if out.Port == 0 {
			out.Port = uri.Port
		}
		if out.Username == "" {
			out.Username, out.Password = uri.Username, uri.Password
		}
		if out.VHost == "" {
			out.VHost = uri.Vhost
		}
	}

	if out.Protocol == "" {
		out.Protocol = rabbitmq.ProtocolTCP
	}
	if out.Host == "" {
		out.Host = defaultHost
	}
	if out.Port == 0 {
		out.Port = defaultPort
	}
	return out, nil
}

func duration(key, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, value)
	}
	return d, nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Overrides are settings given on the command line. Non-empty fields win
// over the profile, the file and the environment.
type Overrides struct {
	URL           string
	Protocol      string
	Host          string
	Port          int
	Username      string
	Password      string
	VHost         string
	ManagementURL string

	Proto       string
	DBPath      string
	MetricsAddr string
}

// WithOverrides returns a copy of fc in which profileName carries o. A URL
// override replaces the connection fields of the profile entirely.
func (fc FileConfig) WithOverrides(profileName string, o Overrides) FileConfig {
	profiles := maps.Clone(fc.Profiles)
	if profiles == nil {
		profiles = make(map[string]Profile)
	}
	p := profiles[profileName]
	if o.URL != "" {
		p = Profile{URL: o.URL, ManagementURL: p.ManagementURL, Proto: p.Proto}
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.Protocol, o.Protocol)
	set(&p.Host, o.Host)
	set(&p.Username, o.Username)
	set(&p.Password, o.Password)
	set(&p.VHost, o.VHost)
	set(&p.ManagementURL, o.ManagementURL)
	set(&p.Proto, o.Proto)
	if o.Port != 0 {
		p.Port = o.Port
	}
	profiles[profileName] = p
	fc.Profiles = profiles

	set(&fc.DBPath, o.DBPath)
	set(&fc.MetricsAddr, o.MetricsAddr)
	return fc
}

// SaveSplitRatio reads the existing TOML (if any), updates split_ratio, and writes back.
func SaveSplitRatio(configDir string, ratio float64) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	path := filepath.Join(configDir, configFile)

	// Load existing config to preserve other fields
	cfg, err := LoadFileConfig(configDir)
	if err != nil {
		cfg = &FileConfig{}
	}
	cfg.UI.SplitRatio = ratio

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0600)
}

// ProfileNames returns a sorted list of profile names.
func (fc FileConfig) ProfileNames() []string {
	names := make([]string, 0, len(fc.Profiles))
	for name := range fc.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
