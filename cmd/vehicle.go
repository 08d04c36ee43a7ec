package cmd

import (
	"context"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/core/vehiclestatus"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/simulator"
)

var vehicleID string

var vehicleCmd = &cobra.Command{
	Use:   "vehicle",
	Short: "Simulate a single vehicle",
	RunE:  runVehicle,
}

func init() {
	vehicleCmd.Flags().StringVar(&vehicleID, "vehicle", "vehicle-001", "vehicle identifier")
	rootCmd.AddCommand(vehicleCmd)
}

func runVehicle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	mon, err := setupMonitor(*cfg)
	if err != nil {
		return err
	}
	defer mon.Flush(2 * time.Second)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := cfg.Simulation
	log := logger.NewVehicle(sim.FleetID, sim.VehicleID)
	sink, summary, err := setupMetrics(ctx, *cfg, log)
	if err != nil {
		return err
	}
	factory, err := newPublisherFactory(cfg.MQTT)
	if err != nil {
		return err
	}
	pub, err := factory(sim.FleetID, sim.VehicleID)
	if err != nil {
		return err
	}
	opts := []simulator.VehicleOption{
		simulator.WithLogger(log),
		simulator.WithMetrics(sink),
		simulator.WithTelemetryEvery(sim.TelemetryEvery),
	}
	if sim.Seed != 0 {
		opts = append(opts, simulator.WithSource(rand.NewPCG(sim.Seed, 1)))
	}
	events := make(chan simulator.Event, 16)
	opts = append(opts, simulator.WithEvents(func(ev simulator.Event) {
		select {
		case events <- ev:
		default:
		}
	}))
	roster := vehiclestatus.NewMemoryStore()
	done := watchEvents(events, log, mon, roster)
	v := simulator.NewVehicle(sim.FleetID, sim.VehicleID, pub, opts...)

	log.Infof("Vehicle simulator: broker=%s fleet=%s vehicle=%s interval=%s",
		cfg.MQTT.BrokerURL(), sim.FleetID, sim.VehicleID, sim.Interval)
	err = v.Run(ctx, sim.Interval)
	close(events)
	<-done
	logRoster(log, roster)
	logSummary(log, summary.Snapshot())
	return err
}
