// Package metrics defines the sinks that observe simulator traffic. A Sink
// receives every publish attempt; sinks that also implement AlertRecorder or
// StatusRecorder receive fired alerts and lifecycle announcements.
package metrics
