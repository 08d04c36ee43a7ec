package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/fleetsim/config"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
	coremon "github.com/kilianp07/fleetsim/core/monitoring"
	coremqtt "github.com/kilianp07/fleetsim/core/mqtt"
	"github.com/kilianp07/fleetsim/core/vehiclestatus"
	"github.com/kilianp07/fleetsim/infra/logger"
	inframetrics "github.com/kilianp07/fleetsim/infra/metrics"
	"github.com/kilianp07/fleetsim/infra/monitoring"
	"github.com/kilianp07/fleetsim/infra/mqtt"
	"github.com/kilianp07/fleetsim/simulator"
)

// newPublisherFactory returns a factory building one paho session per
// vehicle. Each session gets a unique client id and registers an OFFLINE
// status as its last will.
func newPublisherFactory(mc mqtt.Config) (simulator.PublisherFactory, error) {
	if mc.UseTLS && mc.TLSConfig == nil {
		tlsCfg, err := mc.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		mc.TLSConfig = tlsCfg
	}
	return func(fleetID, vehicleID string) (coremqtt.Publisher, error) {
		c := mc
		c.ClientID = mqtt.ClientIDFor(mc.ClientIDPrefix, vehicleID)
		topic, will, err := lastWill(fleetID, vehicleID, time.Now())
		if err != nil {
			return nil, err
		}
		c.LWTTopic = topic
		c.LWTPayload = will
		return mqtt.NewPahoPublisher(c, logger.NewVehicle(fleetID, vehicleID)), nil
	}, nil
}

// lastWill returns the OFFLINE status registered with the broker as the
// session's will. The broker stores the payload at connect, so its timestamp
// is the session start rather than the moment the connection was lost.
func lastWill(fleetID, vehicleID string, at time.Time) (string, []byte, error) {
	payload, err := json.Marshal(model.NewStatusMessage(model.StatusOffline, at))
	if err != nil {
		return "", nil, err
	}
	return model.Topic(fleetID, vehicleID, model.KindStatus), payload, nil
}

// setupLogging tees logs into the configured rotated file. The returned
// function releases it.
func setupLogging(cfg config.LoggingConfig) (func(), error) {
	if cfg.File == "" {
		return func() {}, nil
	}
	closer, err := logger.TeeToFile(cfg.FileConfig())
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	return func() { _ = closer.Close() }, nil
}

// setupMonitor returns the Sentry reporter, or a no-op one without a DSN.
func setupMonitor(cfg config.Config) (coremon.Monitor, error) {
	m, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	return m, nil
}

// setupMetrics always keeps an in-memory summary and adds a Prometheus sink
// served on the configured address when enabled.
func setupMetrics(ctx context.Context, cfg config.Config, log logger.Logger) (coremetrics.Sink, *inframetrics.SummarySink, error) {
	summary := inframetrics.NewSummarySink()
	sinks := []coremetrics.Sink{summary}
	if cfg.Metrics.PrometheusEnabled {
		prom, err := inframetrics.NewPromSink()
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, prom)
		go func() {
			if err := inframetrics.StartPromServer(ctx, cfg.Metrics.PrometheusAddr, nil, log); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}
	return inframetrics.NewMultiSink(sinks...), summary, nil
}

// watchEvents records every vehicle transition in roster, logs failures and
// reports them to mon until events is closed.
func watchEvents(events <-chan simulator.Event, log logger.Logger, mon coremon.Monitor, roster vehiclestatus.Store) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			roster.Record(ev.FleetID, ev.VehicleID, string(ev.Type), ev.Err, ev.Time)
			switch ev.Type {
			case simulator.EventConnectFailed:
				log.Errorf("vehicle %s could not connect: %v", ev.VehicleID, ev.Err)
				mon.CaptureException(ev.Err, eventTags(ev))
			case simulator.EventFault:
				log.Errorf("vehicle %s stopped: %v", ev.VehicleID, ev.Err)
				mon.CaptureException(ev.Err, eventTags(ev))
			case simulator.EventAbandoned:
				log.Warnf("vehicle %s abandoned during shutdown", ev.VehicleID)
			default:
				log.Debugf("vehicle %s %s", ev.VehicleID, ev.Type)
			}
		}
	}()
	return done
}

func eventTags(ev simulator.Event) map[string]string {
	return map[string]string{
		"fleet_id":   ev.FleetID,
		"vehicle_id": ev.VehicleID,
		"event":      string(ev.Type),
	}
}

// logRoster reports the final state of every vehicle.
func logRoster(log logger.Logger, roster vehiclestatus.Store) {
	for _, st := range roster.List(vehiclestatus.Filter{}) {
		if st.Failed() {
			log.Warnf("vehicle %s: %s (%s)", st.VehicleID, st.CurrentStatus, st.LastError)
			continue
		}
		log.Infof("vehicle %s: %s", st.VehicleID, st.CurrentStatus)
	}
}

func logSummary(log logger.Logger, s inframetrics.Summary) {
	fields := make(map[string]any)
	for _, k := range sortedKeys(s.Published) {
		fields["published_"+k] = s.Published[model.Kind(k)]
	}
	for _, k := range sortedKeys(s.Failed) {
		fields["failed_"+k] = s.Failed[model.Kind(k)]
	}
	for _, k := range sortedKeys(s.Alerts) {
		fields["alerts_"+k] = s.Alerts[model.AlertType(k)]
	}
	log.Infof("Simulation summary: %d messages published, %d failed", sum(s.Published), sum(s.Failed))
	log.Debugw("summary", fields)
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

func sum[K comparable](m map[K]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
