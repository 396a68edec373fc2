// Package config holds runtime settings for the scanner engine.
package config

import "time"

// Config holds runtime settings for the guard terminal engine.
//
// Fields:
//   - APIBaseURL: base URL of the contractor validation backend.
//   - RequestTimeout: per-request timeout for backend calls.
//   - DataDir: directory for encrypted blobs, the nonce ledger, and
//     file-backed secrets.
//   - HistoryDBPath: SQLite file for scan history.
//   - OnlineCheckInterval: how often the terminal probes backend reachability.
type Config struct {
	APIBaseURL          string
	RequestTimeout      time.Duration
	DataDir             string
	HistoryDBPath       string
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "https://contractor-api.nubewired.com"
	c.RequestTimeout = 10 * time.Second
	c.DataDir = "scangate-data"
	c.HistoryDBPath = "scan_history.db"
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
