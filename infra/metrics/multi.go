package metrics

import coremetrics "github.com/kilianp07/fleetsim/core/metrics"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPublish forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordPublish(ev coremetrics.PublishEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPublish(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordAlert forwards alerts to sinks that support them.
func (m *MultiSink) RecordAlert(ev coremetrics.AlertEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.AlertRecorder); ok {
			if err := rec.RecordAlert(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordStatus forwards lifecycle announcements to sinks that support them.
func (m *MultiSink) RecordStatus(ev coremetrics.StatusEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.StatusRecorder); ok {
			if err := rec.RecordStatus(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
