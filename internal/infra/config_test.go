package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

const validYAML = `
app:
  name: test
api:
  betfair:
    app_key: "k"
    stream_addr: "stream.example.com:443"
    rpc_url: "https://api.example.com/json-rpc/v1"
trading:
  mode: PAPER
  default_size: "2"
  default_up_threshold: 5
  default_down_threshold: 5
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Trading.PersistenceType != "LAPSE" {
		t.Errorf("persistence = %q, want LAPSE", cfg.Trading.PersistenceType)
	}
	if cfg.Trading.HandshakeTimeoutSec != 30 {
		t.Errorf("handshake timeout = %d, want 30", cfg.Trading.HandshakeTimeoutSec)
	}
	if cfg.API.Betfair.KeepAliveMin != 15 {
		t.Errorf("keep-alive = %d, want 15", cfg.API.Betfair.KeepAliveMin)
	}
	if !cfg.Trading.DefaultSize.Equal(decimal.NewFromInt(2)) {
		t.Errorf("default size = %s, want 2", cfg.Trading.DefaultSize)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("BETFAIR_APP_KEY", "from-env")
	t.Setenv("BETFAIR_SESSION_TOKEN", "tok-env")

	cfg, err := LoadConfig(writeConfigFile(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Betfair.AppKey != "from-env" {
		t.Errorf("app key = %q, want env override", cfg.API.Betfair.AppKey)
	}
	if cfg.API.Betfair.SessionToken != "tok-env" {
		t.Errorf("session token = %q, want env override", cfg.API.Betfair.SessionToken)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing stream port", func(c *Config) { c.API.Betfair.StreamAddr = "stream.example.com" }, true},
		{"bad rpc scheme", func(c *Config) { c.API.Betfair.RPCURL = "ftp://x" }, true},
		{"plain http login", func(c *Config) { c.API.Betfair.LoginURL = "http://x" }, true},
		{"unknown mode", func(c *Config) { c.Trading.Mode = "DRY" }, true},
		{"live without app key", func(c *Config) { c.Trading.Mode = ModeLive; c.API.Betfair.AppKey = "" }, true},
		{"negative size", func(c *Config) { c.Trading.DefaultSize = decimal.NewFromInt(-1) }, true},
		{"negative threshold", func(c *Config) { c.Trading.DefaultUpThreshold = -1 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfigFile(t, validYAML))
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
