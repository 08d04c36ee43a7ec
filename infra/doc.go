// Package infra contains technical adapters: the Paho MQTT publisher,
// the zerolog logger, Prometheus metrics and Sentry fault reporting.
// These packages should depend only on the interfaces defined in the
// core packages.
package infra
