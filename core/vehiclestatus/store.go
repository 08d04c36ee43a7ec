// Package vehiclestatus keeps the last known lifecycle state of each simulated vehicle.
package vehiclestatus

import (
	"sort"
	"sync"
	"time"
)

// Status captures the current known state of a vehicle.
type Status struct {
	VehicleID     string    `json:"vehicle_id"`
	FleetID       string    `json:"fleet_id,omitempty"`
	CurrentStatus string    `json:"current_status"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	// Transitions counts every recorded state change.
	Transitions int `json:"transitions"`
}

// Failed reports whether the last recorded transition carried an error.
func (s Status) Failed() bool { return s.LastError != "" }

type Filter struct {
	FleetID string
	Status  string
}

type Store interface {
	Set(Status)
	Record(fleetID, vehicleID, state string, err error, at time.Time)
	List(Filter) []Status
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}}
}

func (s *MemoryStore) Set(st Status) {
	s.mu.Lock()
	s.data[st.VehicleID] = st
	s.mu.Unlock()
}

// Record stores a transition, creating the entry on first use. A transition
// without error keeps the previous error so that a fault followed by the
// OFFLINE announcement is still reported.
func (s *MemoryStore) Record(fleetID, vehicleID, state string, err error, at time.Time) {
	s.mu.Lock()
	st := s.data[vehicleID]
	if st.VehicleID == "" {
		st.VehicleID = vehicleID
	}
	if fleetID != "" {
		st.FleetID = fleetID
	}
	st.CurrentStatus = state
	if err != nil {
		st.LastError = err.Error()
	}
	st.UpdatedAt = at
	st.Transitions++
	s.data[vehicleID] = st
	s.mu.Unlock()
}

func (s *MemoryStore) List(f Filter) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		if f.FleetID != "" && st.FleetID != f.FleetID {
			continue
		}
		if f.Status != "" && st.CurrentStatus != f.Status {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].VehicleID < res[j].VehicleID })
	return res
}
