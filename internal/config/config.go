// Package config loads cmd/byztimed's configuration from, in
// increasing precedence: built-in defaults, an optional JSONC config
// file, environment variable overrides, and CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/tailscale/hujson"
)

// Config holds byztimed's tunable parameters.
type Config struct {
	Path         string `json:"path"`
	DriftPPB     int64  `json:"drift_ppb"`     //nolint:tagliatelle
	PollInterval string `json:"poll_interval"` //nolint:tagliatelle
	Bootstrap    string `json:"bootstrap,omitempty"`
}

// Default returns byztimed's built-in defaults.
func Default() Config {
	return Config{
		Path:         "/run/byztime/byztime.dat",
		DriftPPB:     250_000,
		PollInterval: "1s",
	}
}

// LoadFile reads and parses a JSONC config file, merging its
// explicitly-set fields over base. A missing path is not an error; it
// simply returns base unchanged.
func LoadFile(base Config, path string) (Config, error) {
	if path == "" {
		return base, nil
	}

	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}

		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s is not valid JSONC: %w", path, err)
	}

	var fileCfg Config

	if err := json.Unmarshal(standardized, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("config: %s is not valid JSON: %w", path, err)
	}

	return merge(base, fileCfg), nil
}

// ApplyEnv layers BYZTIMED_* environment variable overrides over cfg.
func ApplyEnv(cfg Config) Config {
	cfg.Path = envStr("BYZTIMED_PATH", cfg.Path)
	cfg.DriftPPB = envInt64("BYZTIMED_DRIFT_PPB", cfg.DriftPPB)
	cfg.PollInterval = envStr("BYZTIMED_POLL_INTERVAL", cfg.PollInterval)
	cfg.Bootstrap = envStr("BYZTIMED_BOOTSTRAP", cfg.Bootstrap)

	return cfg
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}

	return parsed
}

func merge(base, overlay Config) Config {
	if overlay.Path != "" {
		base.Path = overlay.Path
	}

	if overlay.DriftPPB != 0 {
		base.DriftPPB = overlay.DriftPPB
	}

	if overlay.PollInterval != "" {
		base.PollInterval = overlay.PollInterval
	}

	if overlay.Bootstrap != "" {
		base.Bootstrap = overlay.Bootstrap
	}

	return base
}

// String renders cfg for a --print-config style diagnostic.
func (c Config) String() string {
	return fmt.Sprintf(
		"path=%s drift_ppb=%s poll_interval=%s bootstrap=%s",
		c.Path, strconv.FormatInt(c.DriftPPB, 10), c.PollInterval, c.Bootstrap,
	)
}
