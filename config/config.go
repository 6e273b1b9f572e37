// Package config loads per-venue broker configuration. It is the collaborator
// the connectors consume for base URLs, timeouts and rate limits; credentials
// are supplied separately and never live in config files.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const defaultTimeout = 10 * time.Second

// Known venue base URLs, used when a config file omits api_url.
var defaultAPIURLs = map[string]string{
	"kraken":  "https://api.kraken.com",
	"ibkr":    "https://localhost:5000/v1/api",
	"binance": "https://api.binance.com",
	"bybit":   "https://api.bybit.com",
}

// Venue holds the connection parameters for one venue.
type Venue struct {
	Name    string        `yaml:"-"`
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	// ReportCurrency is the quote side used when deriving canonical symbols
	// from bare asset balances (Kraken spot has no native position records).
	ReportCurrency string `yaml:"report_currency"`
	// NonceDir enables the persistent nonce store for HMAC venues so nonce
	// monotonicity survives restarts. Empty selects the wall-clock source.
	NonceDir string `yaml:"nonce_dir"`
}

// Config is the set of configured venues.
type Config struct {
	Venues map[string]Venue `yaml:"venues"`
}

// Get reads a yaml config file. A missing file yields a config with defaults
// only, so the layer works out of the box against production endpoints.
func Get(path string) (*Config, error) {
	cfg := &Config{Venues: map[string]Venue{}}
	if path == "" {
		return cfg, nil
	}

	f, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(f, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	if cfg.Venues == nil {
		cfg.Venues = map[string]Venue{}
	}
	return cfg, nil
}

// Venue returns the configuration for the named venue, filling defaults for
// anything the file left out.
func (c *Config) Venue(name string) (Venue, error) {
	v := c.Venues[name]
	v.Name = name

	if v.APIURL == "" {
		url, ok := defaultAPIURLs[name]
		if !ok {
			return Venue{}, errors.Errorf("unknown venue %q and no api_url configured", name)
		}
		v.APIURL = url
	}
	if v.Timeout <= 0 {
		v.Timeout = defaultTimeout
	}
	if v.ReportCurrency == "" {
		v.ReportCurrency = "USD"
	}
	return v, nil
}
