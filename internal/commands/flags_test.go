package commands

import (
	"strings"
	"testing"

	"github.com/epalmerini/rabbitwatch/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"RABBITWATCH_URL", "AMQP_URL", "RABBITMQ_URL",
		"RABBITWATCH_HOST", "RABBITWATCH_PORT", "RABBITWATCH_USER", "RABBITWATCH_PASSWORD",
	} {
		t.Setenv(name, "")
	}
}

func TestFlagsResolve(t *testing.T) {
	clearEnv(t)
	file := &config.FileConfig{Profiles: map[string]config.Profile{
		"staging": {Host: "staging", Port: 5673},
	}}

	tests := []struct {
		name     string
		flags    Flags
		profile  string
		wantHost string
		wantPort int
		wantErr  string
	}{
		{"profile", Flags{File: file}, "staging", "staging", 5673, ""},
		{"host flag wins", Flags{File: file, Host: "override"}, "staging", "override", 5673, ""},
		{"url flag wins", Flags{File: file, URL: "amqp://mq:5999/"}, "staging", "mq", 5999, ""},
		{"no file", Flags{}, "", "localhost", 5672, ""},
		{"unknown profile", Flags{File: file}, "typo", "", 0, "unknown profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.flags.ConfigDir = t.TempDir()
			cfg, err := tt.flags.Resolve(tt.profile)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if cfg.Broker.Host != tt.wantHost || cfg.Broker.Port != tt.wantPort {
				t.Errorf("broker = %s:%d, want %s:%d", cfg.Broker.Host, cfg.Broker.Port, tt.wantHost, tt.wantPort)
			}
		})
	}

	if file.Profiles["staging"].Host != "staging" {
		t.Error("Resolve modified the loaded file config")
	}
}

func TestConnectionOverridden(t *testing.T) {
	if (&Flags{}).connectionOverridden() {
		t.Error("empty flags reported as overridden")
	}
	if !(&Flags{URL: "amqp://x/"}).connectionOverridden() {
		t.Error("url flag not detected")
	}
	if !(&Flags{Host: "x"}).connectionOverridden() {
		t.Error("host flag not detected")
	}
}
