package dap

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the TOML configuration document, covering every option in
// spec §6's "Configuration (recognized options)" table. Loaded the way
// the teacher's cmd/routedns/config.go loads its own TOML document, via
// github.com/BurntSushi/toml.
type Config struct {
	ListenAddresses []string `toml:"listen_addresses"`
	MaxConnections  int64    `toml:"max_connections"`
	TimeoutSec      int      `toml:"timeout_sec"`

	MaxCacheSize int `toml:"max_cache_size"`
	MinTTL       int `toml:"min_ttl"`

	DoHTargetURLs       []string `toml:"doh_target_urls"`
	TargetRandomization bool     `toml:"target_randomization"`
	DoHMethod           string   `toml:"doh_method"` // "GET" or "POST"

	ODoHRelayURLs          []string `toml:"odoh_relay_urls"`
	ODoHRelayRandomization bool     `toml:"odoh_relay_randomization"`
	MidRelayURLs           []string `toml:"mid_relay_urls"`
	MaxMidRelays           int      `toml:"max_mid_relays"`

	BootstrapDNS          string `toml:"bootstrap_dns"`
	RebootstrapPeriodSec  int    `toml:"rebootstrap_period_sec"`

	CredentialFile string `toml:"credential_file"`
	TokenAPI       string `toml:"token_api"`
}

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if len(c.ListenAddresses) == 0 {
		return fmt.Errorf("listen_addresses must not be empty")
	}
	if len(c.DoHTargetURLs) == 0 {
		return fmt.Errorf("doh_target_urls must not be empty")
	}
	if c.BootstrapDNS == "" {
		return fmt.Errorf("bootstrap_dns must be set")
	}
	if c.DoHMethod != "" && c.DoHMethod != "GET" && c.DoHMethod != "POST" {
		return fmt.Errorf("doh_method must be GET or POST, got %q", c.DoHMethod)
	}
	if len(c.MidRelayURLs) > 0 && len(c.ODoHRelayURLs) == 0 {
		return fmt.Errorf("mid_relay_urls requires at least one odoh_relay_urls entry")
	}
	return nil
}

// QueryTimeout returns the configured transport timeout, defaulting to 5s.
func (c *Config) QueryTimeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// RebootstrapPeriod returns the configured background ODoH config refresh
// interval, defaulting to one hour. Pinned endpoint IPs are resolved once
// at startup and are not refreshed on this period.
func (c *Config) RebootstrapPeriod() time.Duration {
	if c.RebootstrapPeriodSec <= 0 {
		return time.Hour
	}
	return time.Duration(c.RebootstrapPeriodSec) * time.Second
}
