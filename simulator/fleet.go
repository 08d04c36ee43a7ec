package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	coremqtt "github.com/kilianp07/fleetsim/core/mqtt"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice on a Fleet.
	ErrAlreadyStarted = errors.New("fleet already started")
	// ErrStopped is returned when Start is called after Stop.
	ErrStopped = errors.New("fleet stopped")
)

// FleetConfig holds the parameters of a simulated fleet.
type FleetConfig struct {
	FleetID        string
	Count          int
	Stagger        time.Duration
	JoinTimeout    time.Duration
	TelemetryEvery int
	// Seed makes every vehicle's random walk reproducible when non-zero.
	Seed uint64
}

// SetDefaults fills unset fields.
func (c *FleetConfig) SetDefaults() {
	if c.FleetID == "" {
		c.FleetID = "fleet-001"
	}
	if c.Stagger == 0 {
		c.Stagger = 100 * time.Millisecond
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = 2 * time.Second
	}
	if c.TelemetryEvery == 0 {
		c.TelemetryEvery = DefaultTelemetryEvery
	}
}

// PublisherFactory builds the publisher used by one vehicle.
type PublisherFactory func(fleetID, vehicleID string) (coremqtt.Publisher, error)

// FleetOption configures a Fleet.
type FleetOption func(*Fleet)

// WithFleetLogger sets the orchestrator logger.
func WithFleetLogger(l logger.Logger) FleetOption {
	return func(f *Fleet) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFleetMetrics shares sink with every vehicle of the fleet.
func WithFleetMetrics(sink coremetrics.Sink) FleetOption {
	return func(f *Fleet) {
		if sink != nil {
			f.sink = sink
		}
	}
}

// WithVehicleLoggers sets the constructor of per-vehicle loggers.
func WithVehicleLoggers(fn func(fleetID, vehicleID string) logger.Logger) FleetOption {
	return func(f *Fleet) {
		if fn != nil {
			f.vehicleLogger = fn
		}
	}
}

type unit struct {
	vehicle *Vehicle
	done    chan struct{}
	err     error
}

// Fleet runs one goroutine per vehicle and stops them together.
type Fleet struct {
	cfg           FleetConfig
	factory       PublisherFactory
	logger        logger.Logger
	sink          coremetrics.Sink
	vehicleLogger func(fleetID, vehicleID string) logger.Logger
	bus           *eventbus.TypedBus[Event]

	mu      sync.Mutex
	cancel  context.CancelFunc
	units   []*unit
	started bool
	stopped bool
}

// NewFleet creates a fleet. Vehicles are built by Start.
func NewFleet(cfg FleetConfig, factory PublisherFactory, opts ...FleetOption) *Fleet {
	cfg.SetDefaults()
	f := &Fleet{
		cfg:           cfg,
		factory:       factory,
		logger:        logger.NopLogger{},
		sink:          coremetrics.NopSink{},
		vehicleLogger: func(string, string) logger.Logger { return logger.NopLogger{} },
		// Each vehicle emits a handful of lifecycle events over its lifetime.
		bus: eventbus.NewTypedWithBuffer[Event](8*cfg.Count + eventbus.DefaultBuffer),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the effective fleet configuration.
func (f *Fleet) Config() FleetConfig { return f.cfg }

// Events subscribes to vehicle lifecycle events. The channel is closed by Stop.
func (f *Fleet) Events() <-chan Event { return f.bus.Subscribe() }

// VehicleID returns the identifier of the i-th vehicle, counting from zero.
func VehicleID(i int) string { return fmt.Sprintf("vehicle-%03d", i+1) }

// Start launches Count vehicles, waiting Stagger between launches. It returns
// once every vehicle has been launched or ctx is canceled. Vehicles run until
// Stop is called or ctx is canceled.
func (f *Fleet) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrStopped
	}
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	f.logger.Infof("Starting fleet %s with %d vehicles", f.cfg.FleetID, f.cfg.Count)
	for i := 0; i < f.cfg.Count; i++ {
		if runCtx.Err() != nil {
			return nil
		}
		if !f.launch(runCtx, i, interval) {
			return nil
		}
		if i == f.cfg.Count-1 {
			break
		}
		timer := time.NewTimer(f.cfg.Stagger)
		select {
		case <-runCtx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
	return nil
}

// launch starts vehicle i. It reports false when the fleet was stopped.
func (f *Fleet) launch(ctx context.Context, i int, interval time.Duration) bool {
	id := VehicleID(i)
	pub, err := f.factory(f.cfg.FleetID, id)
	if err != nil {
		f.logger.Errorf("vehicle %s: build publisher: %v", id, err)
		f.bus.Publish(Event{Type: EventConnectFailed, FleetID: f.cfg.FleetID, VehicleID: id, Err: err, Time: time.Now()})
		return true
	}
	opts := []VehicleOption{
		WithLogger(f.vehicleLogger(f.cfg.FleetID, id)),
		WithMetrics(f.sink),
		WithTelemetryEvery(f.cfg.TelemetryEvery),
		WithEvents(f.bus.Publish),
	}
	if f.cfg.Seed != 0 {
		opts = append(opts, WithSource(rand.NewPCG(f.cfg.Seed, uint64(i+1))))
	}
	u := &unit{vehicle: NewVehicle(f.cfg.FleetID, id, pub, opts...), done: make(chan struct{})}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return false
	}
	f.units = append(f.units, u)
	go func() {
		defer close(u.done)
		u.err = u.vehicle.Run(ctx, interval)
	}()
	return true
}

// Stop cancels every vehicle and waits up to JoinTimeout for each one.
// Vehicles that do not finish in time are abandoned. Stop is idempotent.
func (f *Fleet) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	cancel := f.cancel
	units := append([]*unit(nil), f.units...)
	f.mu.Unlock()

	if cancel != nil {
		f.logger.Infof("Stopping fleet %s...", f.cfg.FleetID)
		cancel()
	}
	for _, u := range units {
		timer := time.NewTimer(f.cfg.JoinTimeout)
		select {
		case <-u.done:
		case <-timer.C:
			f.logger.Warnf("vehicle %s did not stop within %s, abandoning", u.vehicle.ID(), f.cfg.JoinTimeout)
			f.bus.Publish(Event{Type: EventAbandoned, FleetID: f.cfg.FleetID, VehicleID: u.vehicle.ID(), Time: time.Now()})
		}
		timer.Stop()
	}
	f.bus.Close()
	if n := f.bus.Dropped(); n > 0 {
		f.logger.Warnf("%d lifecycle events dropped by a slow subscriber", n)
	}
	f.logger.Infof("Fleet %s stopped", f.cfg.FleetID)
}

// Wait blocks until every launched vehicle has returned or ctx is done.
func (f *Fleet) Wait(ctx context.Context) error {
	f.mu.Lock()
	units := append([]*unit(nil), f.units...)
	f.mu.Unlock()
	for _, u := range units {
		select {
		case <-u.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Errors returns the errors of vehicles that have already returned, keyed by
// vehicle id.
func (f *Fleet) Errors() map[string]error {
	f.mu.Lock()
	units := append([]*unit(nil), f.units...)
	f.mu.Unlock()
	out := make(map[string]error)
	for _, u := range units {
		select {
		case <-u.done:
			if u.err != nil {
				out[u.vehicle.ID()] = u.err
			}
		default:
		}
	}
	return out
}
