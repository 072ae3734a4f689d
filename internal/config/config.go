// Package config loads runtime settings for the admin CLI: defaults
// first, then an optional JSON file, then command-line flags, with later
// sources taking precedence.
package config

import "time"

// Config holds runtime settings for the admin CLI.
//
// Fields:
//   - DatabaseDSN: sqlite DSN of the local per-device database.
//   - Relays: initial relay set used before the device configures its own.
//   - JoinBaseURL: base URL embedded into staff invite links.
//   - LogLevel: debug | info | warn | error.
//   - SyncInterval: how often the background full sync runs.
type Config struct {
	DatabaseDSN  string
	Relays       []string
	JoinBaseURL  string
	LogLevel     string
	SyncInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "companysync.db"
	c.Relays = []string{
		"wss://relay.damus.io",
		"wss://nos.lol",
		"wss://relay.nostr.band",
	}
	c.JoinBaseURL = "https://join.openpos.example"
	c.LogLevel = "info"
	c.SyncInterval = 60 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
