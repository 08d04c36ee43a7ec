package metrics

import "fmt"

// Config defines settings for metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9100"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.PrometheusEnabled && c.PrometheusAddr == "" {
		return fmt.Errorf("prometheus_addr is required when prometheus is enabled")
	}
	return nil
}
