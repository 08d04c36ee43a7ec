package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
	coremqtt "github.com/kilianp07/fleetsim/core/mqtt"
	"github.com/kilianp07/fleetsim/infra/logger"
)

// ErrRuntimeFault marks a vehicle loop that stopped because of a publish
// failure or a recovered panic.
var ErrRuntimeFault = errors.New("vehicle runtime fault")

// DefaultTelemetryEvery is the number of location ticks between telemetry reports.
const DefaultTelemetryEvery = 5

// offlineTimeout bounds the OFFLINE publish made while shutting down.
const offlineTimeout = time.Second

// Vehicle couples a State with an MQTT publisher.
type Vehicle struct {
	state          *State
	pub            coremqtt.Publisher
	logger         logger.Logger
	sink           coremetrics.Sink
	telemetryEvery int
	now            func() time.Time
	emit           func(Event)
}

// VehicleOption configures a Vehicle.
type VehicleOption func(*Vehicle)

// WithLogger sets the vehicle logger.
func WithLogger(l logger.Logger) VehicleOption {
	return func(v *Vehicle) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithMetrics reports publishes, alerts and status changes to sink.
func WithMetrics(sink coremetrics.Sink) VehicleOption {
	return func(v *Vehicle) {
		if sink != nil {
			v.sink = sink
		}
	}
}

// WithTelemetryEvery sets how many ticks separate telemetry reports.
func WithTelemetryEvery(n int) VehicleOption {
	return func(v *Vehicle) {
		if n > 0 {
			v.telemetryEvery = n
		}
	}
}

// WithClock overrides the time source used for payload timestamps.
func WithClock(now func() time.Time) VehicleOption {
	return func(v *Vehicle) {
		if now != nil {
			v.now = now
		}
	}
}

// WithSource seeds the random walk.
func WithSource(src rand.Source) VehicleOption {
	return func(v *Vehicle) {
		if src != nil {
			v.state = NewState(v.state.fleetID, v.state.vehicleID, src)
		}
	}
}

// WithEvents registers a lifecycle event callback.
func WithEvents(fn func(Event)) VehicleOption {
	return func(v *Vehicle) {
		if fn != nil {
			v.emit = fn
		}
	}
}

// NewVehicle creates a vehicle that publishes through pub.
func NewVehicle(fleetID, vehicleID string, pub coremqtt.Publisher, opts ...VehicleOption) *Vehicle {
	v := &Vehicle{
		state:          NewState(fleetID, vehicleID, nil),
		pub:            pub,
		logger:         logger.NopLogger{},
		sink:           coremetrics.NopSink{},
		telemetryEvery: DefaultTelemetryEvery,
		now:            time.Now,
		emit:           func(Event) {},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ID returns the vehicle identifier.
func (v *Vehicle) ID() string { return v.state.VehicleID() }

// FleetID returns the fleet identifier.
func (v *Vehicle) FleetID() string { return v.state.FleetID() }

// State exposes the simulated state. Callers must not mutate it while Run is active.
func (v *Vehicle) State() *State { return v.state }

// Connect opens the broker session.
func (v *Vehicle) Connect(ctx context.Context) error {
	if err := v.pub.Connect(ctx); err != nil {
		if !errors.Is(err, coremqtt.ErrConnect) {
			err = fmt.Errorf("%w: %v", coremqtt.ErrConnect, err)
		}
		v.logger.Errorf("Failed to connect to MQTT broker: %v", err)
		v.event(EventConnectFailed, err)
		return err
	}
	v.event(EventConnected, nil)
	return nil
}

// Disconnect closes the broker session. Calling it twice or before Connect is safe.
func (v *Vehicle) Disconnect() {
	v.pub.Disconnect()
}

// UpdateSimulation advances the state by one tick.
func (v *Vehicle) UpdateSimulation() {
	v.state.Tick()
}

// PublishLocation publishes the current position.
func (v *Vehicle) PublishLocation(ctx context.Context) error {
	s := v.state
	loc := model.NewLocation(s.Latitude, s.Longitude, s.Speed, s.Heading, v.now())
	if err := v.publish(ctx, model.KindLocation, loc); err != nil {
		return err
	}
	v.logger.Infof("Location: %.6f, %.6f @ %.1f mph", loc.Latitude, loc.Longitude, loc.Speed)
	return nil
}

// PublishTelemetry publishes the mechanical readings.
func (v *Vehicle) PublishTelemetry(ctx context.Context) error {
	s := v.state
	tm := model.NewTelemetry(s.FuelLevel, s.EngineTemp, s.BatteryVoltage, s.Odometer, v.now())
	if err := v.publish(ctx, model.KindTelemetry, tm); err != nil {
		return err
	}
	v.logger.Infof("Telemetry: Fuel=%.1f%%, Temp=%.1fF", tm.FuelLevel, tm.EngineTemp)
	return nil
}

// PublishStatus announces a lifecycle status.
func (v *Vehicle) PublishStatus(ctx context.Context, status model.Status) error {
	at := v.now()
	if err := v.publish(ctx, model.KindStatus, model.NewStatusMessage(status, at)); err != nil {
		return err
	}
	v.logger.Infof("Status: %s", status)
	if rec, ok := v.sink.(coremetrics.StatusRecorder); ok {
		if err := rec.RecordStatus(coremetrics.StatusEvent{
			FleetID: v.FleetID(), VehicleID: v.ID(), Status: status, Time: at,
		}); err != nil {
			v.logger.Debugf("record status: %v", err)
		}
	}
	return nil
}

// PublishAlert publishes a threshold alert.
func (v *Vehicle) PublishAlert(ctx context.Context, alertType model.AlertType, message string) error {
	at := v.now()
	if err := v.publish(ctx, model.KindAlert, model.NewAlert(alertType, message, at)); err != nil {
		return err
	}
	v.logger.Warnf("ALERT: %s - %s", alertType, message)
	if rec, ok := v.sink.(coremetrics.AlertRecorder); ok {
		if err := rec.RecordAlert(coremetrics.AlertEvent{
			FleetID: v.FleetID(), VehicleID: v.ID(), Type: alertType, Time: at,
		}); err != nil {
			v.logger.Debugf("record alert: %v", err)
		}
	}
	return nil
}

// CheckForAlerts evaluates every threshold rule and publishes one alert per
// rule that fires.
func (v *Vehicle) CheckForAlerts(ctx context.Context) error {
	s := v.state
	var errs []error
	if s.FuelLevel < LowFuelThreshold {
		errs = append(errs, v.PublishAlert(ctx, model.AlertLowFuel,
			fmt.Sprintf("Fuel level critical: %.1f%%", s.FuelLevel)))
	}
	if s.EngineTemp > HighTempThreshold {
		errs = append(errs, v.PublishAlert(ctx, model.AlertHighTemp,
			fmt.Sprintf("Engine overheating: %.1fF", s.EngineTemp)))
	}
	if s.BatteryVoltage < LowBatteryThreshold {
		errs = append(errs, v.PublishAlert(ctx, model.AlertLowBattery,
			fmt.Sprintf("Battery voltage low: %.2fV", s.BatteryVoltage)))
	}
	return errors.Join(errs...)
}

// Run connects, announces ACTIVE and publishes location every interval and
// telemetry every telemetryEvery ticks until ctx is canceled. Once connected,
// OFFLINE is published and the session closed on every exit path. A failed
// connect returns immediately without any status message.
func (v *Vehicle) Run(ctx context.Context, interval time.Duration) (err error) {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	if err := v.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrRuntimeFault, r)
		}
		if err != nil {
			v.logger.Errorf("Simulation error: %v", err)
			v.event(EventFault, err)
		}
		v.shutdown(ctx)
	}()

	if err := v.PublishStatus(ctx, model.StatusActive); err != nil {
		return v.fault(ctx, err)
	}
	v.event(EventActive, nil)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for counter := 1; ; counter++ {
		if ctx.Err() != nil {
			return nil
		}
		v.UpdateSimulation()
		if err := v.PublishLocation(ctx); err != nil {
			return v.fault(ctx, err)
		}
		if counter%v.telemetryEvery == 0 {
			if err := v.PublishTelemetry(ctx); err != nil {
				return v.fault(ctx, err)
			}
			if err := v.CheckForAlerts(ctx); err != nil {
				return v.fault(ctx, err)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// fault converts a loop error into ErrRuntimeFault unless the loop was
// interrupted by cancellation.
func (v *Vehicle) fault(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRuntimeFault, err)
}

func (v *Vehicle) shutdown(ctx context.Context) {
	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), offlineTimeout)
	defer cancel()
	if err := v.PublishStatus(offCtx, model.StatusOffline); err != nil {
		v.logger.Warnf("publish OFFLINE: %v", err)
	} else {
		v.event(EventOffline, nil)
	}
	v.Disconnect()
}

func (v *Vehicle) publish(ctx context.Context, kind model.Kind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	topic := model.Topic(v.FleetID(), v.ID(), kind)
	err = v.pub.Publish(ctx, topic, data)
	if rerr := v.sink.RecordPublish(coremetrics.PublishEvent{
		FleetID:   v.FleetID(),
		VehicleID: v.ID(),
		Kind:      kind,
		Bytes:     len(data),
		Err:       err,
		Time:      v.now(),
	}); rerr != nil {
		v.logger.Debugf("record publish: %v", rerr)
	}
	if err != nil {
		v.logger.Errorf("Failed to publish %s: %v", kind, err)
		return err
	}
	v.logger.Debugw("published", map[string]any{"topic": topic, "bytes": len(data)})
	return nil
}

func (v *Vehicle) event(t EventType, err error) {
	v.emit(Event{Type: t, FleetID: v.FleetID(), VehicleID: v.ID(), Err: err, Time: v.now()})
}
