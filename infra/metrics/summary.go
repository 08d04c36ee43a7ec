package metrics

import (
	"sync"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
)

// Summary is a point-in-time copy of SummarySink counters.
type Summary struct {
	Published map[model.Kind]int
	Failed    map[model.Kind]int
	Alerts    map[model.AlertType]int
	Active    int
}

// SummarySink keeps in-memory totals so a run can be summarized on exit.
type SummarySink struct {
	mu sync.Mutex
	s  Summary
}

// NewSummarySink creates an empty SummarySink.
func NewSummarySink() *SummarySink {
	return &SummarySink{s: Summary{
		Published: make(map[model.Kind]int),
		Failed:    make(map[model.Kind]int),
		Alerts:    make(map[model.AlertType]int),
	}}
}

// RecordPublish counts a publish as sent or failed by kind.
func (s *SummarySink) RecordPublish(ev coremetrics.PublishEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Err != nil {
		s.s.Failed[ev.Kind]++
	} else {
		s.s.Published[ev.Kind]++
	}
	return nil
}

// RecordAlert counts an alert by type.
func (s *SummarySink) RecordAlert(ev coremetrics.AlertEvent) error {
	s.mu.Lock()
	s.s.Alerts[ev.Type]++
	s.mu.Unlock()
	return nil
}

// RecordStatus tracks the number of vehicles currently ACTIVE.
func (s *SummarySink) RecordStatus(ev coremetrics.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Status {
	case model.StatusActive:
		s.s.Active++
	case model.StatusOffline:
		s.s.Active--
	}
	return nil
}

// Snapshot returns a copy of the current totals.
func (s *SummarySink) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Summary{
		Published: make(map[model.Kind]int, len(s.s.Published)),
		Failed:    make(map[model.Kind]int, len(s.s.Failed)),
		Alerts:    make(map[model.AlertType]int, len(s.s.Alerts)),
		Active:    s.s.Active,
	}
	for k, v := range s.s.Published {
		out.Published[k] = v
	}
	for k, v := range s.s.Failed {
		out.Failed[k] = v
	}
	for k, v := range s.s.Alerts {
		out.Alerts[k] = v
	}
	return out
}
