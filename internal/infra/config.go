package infra

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Trading modes.
const (
	ModeLive  = "LIVE"
	ModePaper = "PAPER"
)

// Config holds every application setting. Sensitive values can be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Betfair struct {
			AppKey       string `yaml:"app_key"`
			SessionToken string `yaml:"session_token"`
			Username     string `yaml:"username"`
			Password     string `yaml:"password"`
			StreamAddr   string `yaml:"stream_addr"`
			RPCURL       string `yaml:"rpc_url"`
			LoginURL     string `yaml:"login_url"`
			KeepAliveURL string `yaml:"keep_alive_url"`
			// KeepAliveMin is the session keep-alive interval in minutes.
			KeepAliveMin int `yaml:"keep_alive_min"`
		} `yaml:"betfair"`
	} `yaml:"api"`

	Trading struct {
		Mode                 string          `yaml:"mode"` // LIVE or PAPER
		DefaultSize          decimal.Decimal `yaml:"default_size"`
		DefaultUpThreshold   float64         `yaml:"default_up_threshold"`
		DefaultDownThreshold float64         `yaml:"default_down_threshold"`
		PersistenceType      string          `yaml:"persistence_type"`
		HandshakeTimeoutSec  int             `yaml:"handshake_timeout_sec"`
	} `yaml:"trading"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Audit struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"audit"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides for secrets, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = ModePaper
	}
	if cfg.Trading.PersistenceType == "" {
		cfg.Trading.PersistenceType = "LAPSE"
	}
	if cfg.Trading.HandshakeTimeoutSec <= 0 {
		cfg.Trading.HandshakeTimeoutSec = 30
	}
	if cfg.API.Betfair.KeepAliveMin <= 0 {
		cfg.API.Betfair.KeepAliveMin = 15
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "data/audit.db"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	bf := c.API.Betfair
	if bf.StreamAddr == "" || !strings.Contains(bf.StreamAddr, ":") {
		return fmt.Errorf("invalid stream address: %q (want host:port)", bf.StreamAddr)
	}
	if !strings.HasPrefix(bf.RPCURL, "http://") && !strings.HasPrefix(bf.RPCURL, "https://") {
		return fmt.Errorf("invalid RPC URL: %q", bf.RPCURL)
	}
	if bf.LoginURL != "" && !strings.HasPrefix(bf.LoginURL, "https://") {
		return fmt.Errorf("login URL must use https: %q", bf.LoginURL)
	}
	if c.Trading.Mode != ModeLive && c.Trading.Mode != ModePaper {
		return fmt.Errorf("trading mode must be %s or %s, got %q", ModeLive, ModePaper, c.Trading.Mode)
	}
	if c.Trading.Mode == ModeLive && bf.AppKey == "" {
		return fmt.Errorf("app key is required in %s mode", ModeLive)
	}
	if c.Trading.DefaultSize.IsNegative() {
		return fmt.Errorf("default order size must not be negative")
	}
	if c.Trading.DefaultUpThreshold < 0 || c.Trading.DefaultDownThreshold < 0 {
		return fmt.Errorf("movement thresholds must not be negative")
	}
	return nil
}

// overrideWithEnv replaces secret values when environment variables exist.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("BETFAIR_APP_KEY"); key != "" {
		cfg.API.Betfair.AppKey = key
	}
	if tok := os.Getenv("BETFAIR_SESSION_TOKEN"); tok != "" {
		cfg.API.Betfair.SessionToken = tok
	}
	if user := os.Getenv("BETFAIR_USERNAME"); user != "" {
		cfg.API.Betfair.Username = user
	}
	if pass := os.Getenv("BETFAIR_PASSWORD"); pass != "" {
		cfg.API.Betfair.Password = pass
	}
}
