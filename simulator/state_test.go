package simulator

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStateInitialRanges(t *testing.T) {
	for seed := uint64(1); seed <= 50; seed++ {
		s := NewState("fleet-001", "vehicle-001", rand.NewPCG(seed, seed))
		assert.InDelta(t, 37.7749, s.Latitude, 0.1)
		assert.InDelta(t, -122.4194, s.Longitude, 0.1)
		assert.Zero(t, s.Speed)
		assert.GreaterOrEqual(t, s.Heading, 0.0)
		assert.Less(t, s.Heading, 360.0)
		assert.GreaterOrEqual(t, s.FuelLevel, 50.0)
		assert.LessOrEqual(t, s.FuelLevel, 100.0)
		assert.GreaterOrEqual(t, s.EngineTemp, 180.0)
		assert.LessOrEqual(t, s.EngineTemp, 210.0)
		assert.GreaterOrEqual(t, s.BatteryVoltage, 12.0)
		assert.LessOrEqual(t, s.BatteryVoltage, 14.5)
		assert.GreaterOrEqual(t, s.Odometer, 10000.0)
		assert.LessOrEqual(t, s.Odometer, 100000.0)
	}
}

func TestStateIdentity(t *testing.T) {
	s := NewState("fleet-007", "vehicle-042", nil)
	s.Tick()
	assert.Equal(t, "fleet-007", s.FleetID())
	assert.Equal(t, "vehicle-042", s.VehicleID())
}

func TestTickKeepsBounds(t *testing.T) {
	s := NewState("f", "v", rand.NewPCG(7, 11))
	for i := 0; i < 20000; i++ {
		prevOdo, prevFuel := s.Odometer, s.FuelLevel
		s.Tick()

		require.GreaterOrEqual(t, s.Speed, MinSpeed, "tick %d", i)
		require.LessOrEqual(t, s.Speed, MaxSpeed, "tick %d", i)
		require.GreaterOrEqual(t, s.Heading, 0.0, "tick %d", i)
		require.Less(t, s.Heading, 360.0, "tick %d", i)
		require.GreaterOrEqual(t, s.FuelLevel, MinFuel, "tick %d", i)
		require.LessOrEqual(t, s.FuelLevel, MaxFuel, "tick %d", i)
		require.GreaterOrEqual(t, s.EngineTemp, MinEngineTemp, "tick %d", i)
		require.LessOrEqual(t, s.EngineTemp, MaxEngineTemp, "tick %d", i)
		require.GreaterOrEqual(t, s.BatteryVoltage, MinBattery, "tick %d", i)
		require.LessOrEqual(t, s.BatteryVoltage, MaxBattery, "tick %d", i)
		require.GreaterOrEqual(t, s.Odometer, prevOdo, "tick %d", i)
		require.LessOrEqual(t, s.FuelLevel, prevFuel, "tick %d", i)
	}
}

func TestTickFuelOnlyBurnsWhileMoving(t *testing.T) {
	s := NewState("f", "v", rand.NewPCG(3, 3))
	for i := 0; i < 5000; i++ {
		prevFuel := s.FuelLevel
		s.Tick()
		if s.Speed == 0 {
			require.Equal(t, prevFuel, s.FuelLevel, "tick %d", i)
		} else if prevFuel > MinFuel {
			require.Less(t, s.FuelLevel, prevFuel, "tick %d", i)
		}
	}
}

func TestTickOdometerFollowsSpeed(t *testing.T) {
	s := NewState("f", "v", rand.NewPCG(5, 9))
	for i := 0; i < 100; i++ {
		before := s.Odometer
		s.Tick()
		assert.InDelta(t, before+s.Speed/3600, s.Odometer, 1e-9)
	}
}

func TestTickDeterministicWithSeed(t *testing.T) {
	a := NewState("f", "v", rand.NewPCG(42, 1))
	b := NewState("f", "v", rand.NewPCG(42, 1))
	for i := 0; i < 100; i++ {
		a.Tick()
		b.Tick()
	}
	assert.Equal(t, a.Latitude, b.Latitude)
	assert.Equal(t, a.Odometer, b.Odometer)
	assert.Equal(t, a.BatteryVoltage, b.BatteryVoltage)
}

func TestWrapHeading(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{359.5, 359.5},
		{360, 0},
		{365, 5},
		{-5, 355},
		{-1e-15, 0},
		{725, 5},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, wrapHeading(c.in), 1e-9, "wrapHeading(%v)", c.in)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-3, 0, 80))
	assert.Equal(t, 80.0, clamp(81, 0, 80))
	assert.Equal(t, 12.5, clamp(12.5, 11.5, 14.8))
}
