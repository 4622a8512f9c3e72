// Package config loads the YAML configuration file, layering .env
// overrides on top of the process environment and applying defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kissplugins/ksbi-state/internal/retry"
)

// Config is the top-level configuration.
type Config struct {
	// Store is the path of the SQLite database backing the TTL store and
	// the durable option store.
	Store string `yaml:"store"`

	// Repositories are the tracked candidate identifiers, e.g.
	// "acme/example-gallery". The daemon batch-refreshes this list.
	Repositories []string `yaml:"repositories"`

	Plugins   PluginsConfig   `yaml:"plugins"`
	Detection DetectionConfig `yaml:"detection"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	NATS      NATSConfig      `yaml:"nats"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Retry     RetryConfig     `yaml:"retry"`
}

// PluginsConfig locates the installed-plugins tree.
type PluginsConfig struct {
	// Dir is the installed-plugins root, scanned for plugin file headers.
	Dir string `yaml:"dir"`
	// ActiveList is the JSON file listing activated plugin files.
	ActiveList string `yaml:"active_list"`
	// SelfDir is this system's own install directory, used by
	// self-protection path matching. Defaults to Dir joined with the
	// system's own slug when empty.
	SelfDir string `yaml:"self_dir"`
}

// DetectionConfig selects and parameterizes the detection service.
type DetectionConfig struct {
	// Mode is "header_scan" (local candidates directory) or "git_probe"
	// (shallow clone of remote candidates).
	Mode string `yaml:"mode"`
	// CandidatesDir is the local checkout root for header_scan mode.
	CandidatesDir string `yaml:"candidates_dir"`
	// GitBaseURL is the clone URL prefix for git_probe mode, e.g.
	// "https://github.com".
	GitBaseURL string `yaml:"git_base_url"`
}

// DaemonConfig controls long-running mode. Intervals use Go duration
// syntax, e.g. "5m" or "1h30m".
type DaemonConfig struct {
	// RefreshInterval is the period between batch refreshes.
	RefreshInterval string `yaml:"refresh_interval"`
	// SweepInterval is the period between expired-row sweeps of the
	// SQLite store.
	SweepInterval string `yaml:"sweep_interval"`
}

// RefreshEvery returns the parsed refresh interval.
func (d DaemonConfig) RefreshEvery() time.Duration {
	return parseDuration(d.RefreshInterval, 5*time.Minute)
}

// SweepEvery returns the parsed sweep interval.
func (d DaemonConfig) SweepEvery() time.Duration {
	return parseDuration(d.SweepInterval, time.Hour)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	dur, err := time.ParseDuration(raw)
	if err != nil || dur <= 0 {
		return fallback
	}
	return dur
}

// NATSConfig enables broadcast fan-out when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig controls the Prometheus endpoint; empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// RetryConfig feeds the backoff policy for bulk-operation callers.
// Delays use Go duration syntax.
type RetryConfig struct {
	Mode       string `yaml:"mode"`
	Initial    string `yaml:"initial"`
	Max        string `yaml:"max"`
	MaxRetries int    `yaml:"max_retries"`
}

// Policy converts the raw retry fields into a validated policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.NewPolicy(
		retry.BackoffMode(r.Mode),
		parseDuration(r.Initial, 0),
		parseDuration(r.Max, 0),
		r.MaxRetries,
	)
}

// Load reads the configuration file. Environment variables referenced in
// the YAML via ${VAR} are expanded after .env files are layered in; a
// missing .env file is not an error.
func Load(path string) (*Config, error) {
	// Values already present in the environment win over .env entries.
	_ = godotenv.Load(".env", ".env.local")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Store == "" {
		c.Store = "ksbi-state.db"
	}
	if c.Detection.Mode == "" {
		c.Detection.Mode = "header_scan"
	}
	if c.Detection.GitBaseURL == "" {
		c.Detection.GitBaseURL = "https://github.com"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "ksbi.state.changed"
	}
}

// Validate rejects configurations the runtime cannot act on.
func (c *Config) Validate() error {
	switch c.Detection.Mode {
	case "header_scan", "git_probe":
	default:
		return fmt.Errorf("unknown detection mode %q", c.Detection.Mode)
	}
	if c.Plugins.ActiveList != "" && c.Plugins.Dir == "" {
		return fmt.Errorf("plugins.active_list requires plugins.dir")
	}
	for _, raw := range []string{c.Daemon.RefreshInterval, c.Daemon.SweepInterval, c.Retry.Initial, c.Retry.Max} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
	}
	return nil
}
