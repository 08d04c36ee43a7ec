package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/monitoring"
	"github.com/kilianp07/fleetsim/infra/mqtt"
)

// EnvPrefix prefixes environment overrides, e.g. FLEETSIM_MQTT__HOST.
const EnvPrefix = "FLEETSIM_"

type Config struct {
	MQTT       mqtt.Config       `json:"mqtt"`
	Simulation SimulationConfig  `json:"simulation"`
	Metrics    metrics.Config    `json:"metrics"`
	Logging    LoggingConfig     `json:"logging"`
	Sentry     monitoring.Config `json:"sentry"`
}

// Default returns the configuration used when no file or override is given.
func Default() *Config {
	cfg := &Config{Simulation: SimulationConfig{Count: 5}}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Simulation.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return c.Sentry.Validate()
}

// Load reads the optional file at path, applies FLEETSIM_ environment
// overrides and returns the validated configuration. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	if err := normalizeInterval(k); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeInterval gives simulation.interval the same meaning from every
// source: a Go duration or a bare number of seconds.
func normalizeInterval(k *koanf.Koanf) error {
	const key = "simulation.interval"
	if !k.Exists(key) {
		return nil
	}
	d, err := ParseInterval(fmt.Sprint(k.Get(key)))
	if err != nil {
		return fmt.Errorf("simulation.interval: %w", err)
	}
	return k.Set(key, d)
}
