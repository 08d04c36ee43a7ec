package model

import (
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

// Kind is the last segment of a vehicle topic.
type Kind string

const (
	KindLocation  Kind = "location"
	KindTelemetry Kind = "telemetry"
	KindStatus    Kind = "status"
	KindAlert     Kind = "alert"
)

// Status is the lifecycle state announced on the status topic.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusOffline Status = "OFFLINE"
)

// AlertType identifies the threshold rule that produced an alert.
type AlertType string

const (
	AlertLowFuel    AlertType = "LOW_FUEL"
	AlertHighTemp   AlertType = "HIGH_TEMP"
	AlertLowBattery AlertType = "LOW_BATTERY"
)

// TimestampLayout is ISO-8601 with microseconds and an explicit UTC offset,
// e.g. 2024-05-01T12:00:00.000000+00:00.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// Topic returns fleet/<fleetID>/vehicle/<vehicleID>/<kind>.
func Topic(fleetID, vehicleID string, kind Kind) string {
	return "fleet/" + fleetID + "/vehicle/" + vehicleID + "/" + string(kind)
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a payload timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Location is published on the location topic every tick.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

// NewLocation rounds coordinates to 6 decimals and speed/heading to 1.
func NewLocation(lat, lon, speed, heading float64, at time.Time) Location {
	return Location{
		Latitude:  scalar.RoundEven(lat, 6),
		Longitude: scalar.RoundEven(lon, 6),
		Speed:     scalar.RoundEven(speed, 1),
		Heading:   scalar.RoundEven(heading, 1),
		Timestamp: FormatTimestamp(at),
	}
}

// Telemetry carries the mechanical readings of a vehicle.
type Telemetry struct {
	FuelLevel      float64 `json:"fuel_level"`
	EngineTemp     float64 `json:"engine_temp"`
	BatteryVoltage float64 `json:"battery_voltage"`
	Odometer       float64 `json:"odometer"`
	Timestamp      string  `json:"timestamp"`
}

// NewTelemetry rounds battery voltage to 2 decimals and the rest to 1.
func NewTelemetry(fuel, engineTemp, battery, odometer float64, at time.Time) Telemetry {
	return Telemetry{
		FuelLevel:      scalar.RoundEven(fuel, 1),
		EngineTemp:     scalar.RoundEven(engineTemp, 1),
		BatteryVoltage: scalar.RoundEven(battery, 2),
		Odometer:       scalar.RoundEven(odometer, 1),
		Timestamp:      FormatTimestamp(at),
	}
}

// StatusMessage is published on the status topic.
type StatusMessage struct {
	Status    Status `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewStatusMessage builds a status payload.
func NewStatusMessage(s Status, at time.Time) StatusMessage {
	return StatusMessage{Status: s, Timestamp: FormatTimestamp(at)}
}

// Alert is published on the alert topic when a threshold rule fires.
type Alert struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
}

// NewAlert builds an alert payload.
func NewAlert(t AlertType, msg string, at time.Time) Alert {
	return Alert{Type: t, Message: msg, Timestamp: FormatTimestamp(at)}
}
