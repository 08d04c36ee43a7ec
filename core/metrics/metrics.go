package metrics

import (
	"time"

	"github.com/kilianp07/fleetsim/core/model"
)

// PublishEvent describes one publish attempt by a vehicle.
type PublishEvent struct {
	FleetID   string
	VehicleID string
	Kind      model.Kind
	Bytes     int
	Err       error
	Time      time.Time
}

// Sink records publish attempts for observability purposes.
type Sink interface {
	RecordPublish(ev PublishEvent) error
}

// AlertEvent captures a threshold alert raised by a vehicle.
type AlertEvent struct {
	FleetID   string
	VehicleID string
	Type      model.AlertType
	Time      time.Time
}

// AlertRecorder records alerts.
type AlertRecorder interface {
	RecordAlert(ev AlertEvent) error
}

// StatusEvent captures an ACTIVE or OFFLINE announcement.
type StatusEvent struct {
	FleetID   string
	VehicleID string
	Status    model.Status
	Time      time.Time
}

// StatusRecorder records lifecycle announcements.
type StatusRecorder interface {
	RecordStatus(ev StatusEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordPublish(PublishEvent) error { return nil }
func (NopSink) RecordAlert(AlertEvent) error     { return nil }
func (NopSink) RecordStatus(StatusEvent) error   { return nil }
