// Package simulator drives simulated vehicles that publish telemetry over MQTT.
package simulator

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Physical limits of the simulated vehicle.
const (
	MinSpeed, MaxSpeed           = 0.0, 80.0
	MinFuel, MaxFuel             = 0.0, 100.0
	MinEngineTemp, MaxEngineTemp = 170.0, 230.0
	MinBattery, MaxBattery       = 11.5, 14.8
)

// Alert thresholds.
const (
	LowFuelThreshold    = 15.0
	HighTempThreshold   = 220.0
	LowBatteryThreshold = 11.8
)

const (
	baseLatitude          = 37.7749
	baseLongitude         = -122.4194
	initialPositionSpread = 0.1
)

// State is the drifting physical state of one vehicle. It is owned by a
// single goroutine and is not safe for concurrent use.
type State struct {
	fleetID   string
	vehicleID string

	Latitude       float64
	Longitude      float64
	Speed          float64 // mph
	Heading        float64 // degrees, [0, 360)
	FuelLevel      float64 // percent
	EngineTemp     float64 // Fahrenheit
	BatteryVoltage float64
	Odometer       float64 // miles

	src rand.Source
}

// NewState returns a vehicle parked near San Francisco with randomized
// mechanical readings. A nil src uses a randomly seeded PCG source.
func NewState(fleetID, vehicleID string, src rand.Source) *State {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	s := &State{fleetID: fleetID, vehicleID: vehicleID, src: src}
	s.Latitude = baseLatitude + s.uniform(-initialPositionSpread, initialPositionSpread)
	s.Longitude = baseLongitude + s.uniform(-initialPositionSpread, initialPositionSpread)
	s.Speed = 0
	s.Heading = s.uniform(0, 360)
	s.FuelLevel = s.uniform(50, 100)
	s.EngineTemp = s.uniform(180, 210)
	s.BatteryVoltage = s.uniform(12.0, 14.5)
	s.Odometer = s.uniform(10000, 100000)
	return s
}

// FleetID returns the owning fleet identifier.
func (s *State) FleetID() string { return s.fleetID }

// VehicleID returns the vehicle identifier.
func (s *State) VehicleID() string { return s.vehicleID }

// Tick advances the random walk by one step.
func (s *State) Tick() {
	s.Latitude += s.uniform(-0.001, 0.001)
	s.Longitude += s.uniform(-0.001, 0.001)
	s.Speed = clamp(s.Speed+s.uniform(-5, 5), MinSpeed, MaxSpeed)
	s.Heading = wrapHeading(s.Heading + s.uniform(-10, 10))

	if s.Speed > 0 {
		s.FuelLevel = clamp(s.FuelLevel-s.uniform(0.01, 0.05), MinFuel, MaxFuel)
	}
	s.EngineTemp = clamp(s.EngineTemp+s.uniform(-2, 2), MinEngineTemp, MaxEngineTemp)
	s.BatteryVoltage = clamp(s.BatteryVoltage+s.uniform(-0.1, 0.1), MinBattery, MaxBattery)
	s.Odometer += s.Speed / 3600
}

func (s *State) uniform(min, max float64) float64 {
	return distuv.Uniform{Min: min, Max: max, Src: s.src}.Rand()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrapHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	// -1e-15 + 360 rounds to 360.
	if h >= 360 {
		h = 0
	}
	return h
}
