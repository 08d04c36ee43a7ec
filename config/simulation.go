package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/fleetsim/simulator"
)

// SimulationConfig holds the fleet and vehicle parameters.
type SimulationConfig struct {
	FleetID        string        `json:"fleet_id"`
	VehicleID      string        `json:"vehicle_id"`
	Count          int           `json:"count"`
	Interval       time.Duration `json:"interval"`
	Stagger        time.Duration `json:"stagger"`
	JoinTimeout    time.Duration `json:"join_timeout"`
	TelemetryEvery int           `json:"telemetry_every"`
	// Seed makes runs reproducible when non-zero.
	Seed uint64 `json:"seed"`
}

// SetDefaults applies sane defaults. Count is left alone since zero vehicles
// is a valid fleet.
func (c *SimulationConfig) SetDefaults() {
	if c.FleetID == "" {
		c.FleetID = "fleet-001"
	}
	if c.VehicleID == "" {
		c.VehicleID = "vehicle-001"
	}
	if c.Interval == 0 {
		c.Interval = time.Second
	}
	if c.Stagger == 0 {
		c.Stagger = 100 * time.Millisecond
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = 2 * time.Second
	}
	if c.TelemetryEvery == 0 {
		c.TelemetryEvery = simulator.DefaultTelemetryEvery
	}
}

// Validate checks mandatory fields.
func (c SimulationConfig) Validate() error {
	if err := validTopicSegment("fleet_id", c.FleetID); err != nil {
		return err
	}
	if err := validTopicSegment("vehicle_id", c.VehicleID); err != nil {
		return err
	}
	if c.Count < 0 {
		return fmt.Errorf("count must be >= 0, got %d", c.Count)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.Stagger < 0 {
		return fmt.Errorf("stagger must be >= 0, got %s", c.Stagger)
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("join_timeout must be positive, got %s", c.JoinTimeout)
	}
	if c.TelemetryEvery < 1 {
		return fmt.Errorf("telemetry_every must be >= 1, got %d", c.TelemetryEvery)
	}
	return nil
}

// Fleet converts the section into the orchestrator configuration.
func (c SimulationConfig) Fleet() simulator.FleetConfig {
	return simulator.FleetConfig{
		FleetID:        c.FleetID,
		Count:          c.Count,
		Stagger:        c.Stagger,
		JoinTimeout:    c.JoinTimeout,
		TelemetryEvery: c.TelemetryEvery,
		Seed:           c.Seed,
	}
}

// ParseInterval accepts a Go duration ("500ms", "2s") or a bare number of
// seconds ("0.5").
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid interval %q: want a duration like 500ms or seconds like 0.5", s)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %q", s)
	}
	return d, nil
}

// Topic segments must not contain MQTT separators or wildcards.
func validTopicSegment(name, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", name)
	}
	if strings.ContainsAny(v, "/+#") {
		return fmt.Errorf("%s %q must not contain '/', '+' or '#'", name, v)
	}
	return nil
}
