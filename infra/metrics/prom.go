package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
)

// PromSink records simulator traffic in Prometheus metrics.
type PromSink struct {
	published     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	payloadBytes  *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	active        *prometheus.GaugeVec
}

// NewPromSink registers simulator metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_messages_published_total",
			Help: "Messages successfully handed to the MQTT client",
		}, []string{"fleet_id", "kind"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_publish_errors_total",
			Help: "Publish attempts that failed",
		}, []string{"fleet_id", "kind"}),
		payloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_payload_bytes_total",
			Help: "Bytes of JSON payload published",
		}, []string{"fleet_id", "kind"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_alerts_total",
			Help: "Threshold alerts raised by simulated vehicles",
		}, []string{"fleet_id", "type"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_vehicles_active",
			Help: "Vehicles that announced ACTIVE and have not yet announced OFFLINE",
		}, []string{"fleet_id"}),
	}
	var err error
	if s.published, err = registerCounter(reg, s.published); err != nil {
		return nil, err
	}
	if s.publishErrors, err = registerCounter(reg, s.publishErrors); err != nil {
		return nil, err
	}
	if s.payloadBytes, err = registerCounter(reg, s.payloadBytes); err != nil {
		return nil, err
	}
	if s.alerts, err = registerCounter(reg, s.alerts); err != nil {
		return nil, err
	}
	if err := reg.Register(s.active); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		s.active = are.ExistingCollector.(*prometheus.GaugeVec)
	}
	return s, nil
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

// RecordPublish counts a publish attempt by outcome.
func (s *PromSink) RecordPublish(ev coremetrics.PublishEvent) error {
	if ev.Err != nil {
		s.publishErrors.WithLabelValues(ev.FleetID, string(ev.Kind)).Inc()
		return nil
	}
	s.published.WithLabelValues(ev.FleetID, string(ev.Kind)).Inc()
	s.payloadBytes.WithLabelValues(ev.FleetID, string(ev.Kind)).Add(float64(ev.Bytes))
	return nil
}

// RecordAlert counts alerts per type.
func (s *PromSink) RecordAlert(ev coremetrics.AlertEvent) error {
	s.alerts.WithLabelValues(ev.FleetID, string(ev.Type)).Inc()
	return nil
}

// RecordStatus tracks the number of active vehicles.
func (s *PromSink) RecordStatus(ev coremetrics.StatusEvent) error {
	switch ev.Status {
	case model.StatusActive:
		s.active.WithLabelValues(ev.FleetID).Inc()
	case model.StatusOffline:
		s.active.WithLabelValues(ev.FleetID).Dec()
	}
	return nil
}
