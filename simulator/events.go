package simulator

import "time"

// EventType names a vehicle lifecycle transition.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventConnectFailed EventType = "connect_failed"
	EventActive        EventType = "active"
	EventOffline       EventType = "offline"
	EventFault         EventType = "fault"
	// EventAbandoned is emitted by Fleet.Stop for a vehicle that missed the join timeout.
	EventAbandoned EventType = "abandoned"
)

// Event reports a lifecycle transition of one vehicle.
type Event struct {
	Type      EventType
	FleetID   string
	VehicleID string
	Err       error
	Time      time.Time
}
