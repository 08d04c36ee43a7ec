package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/core/vehiclestatus"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/simulator"
)

var count int

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Simulate a fleet of vehicles",
	RunE:  runFleet,
}

func init() {
	fleetCmd.Flags().IntVar(&count, "count", 5, "number of vehicles")
	rootCmd.AddCommand(fleetCmd)
}

func runFleet(cmd *cobra.Command, args []string) error {
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

	log := logger.New("fleet")
	sink, summary, err := setupMetrics(ctx, *cfg, log)
	if err != nil {
		return err
	}
	factory, err := newPublisherFactory(cfg.MQTT)
	if err != nil {
		return err
	}
	sim := cfg.Simulation
	fleet := simulator.NewFleet(sim.Fleet(), factory,
		simulator.WithFleetLogger(log),
		simulator.WithFleetMetrics(sink),
		simulator.WithVehicleLoggers(logger.NewVehicle),
	)
	roster := vehiclestatus.NewMemoryStore()
	done := watchEvents(fleet.Events(), log, mon, roster)

	fc := fleet.Config()
	log.Infof("Fleet simulator: broker=%s fleet=%s vehicles=%d stagger=%s interval=%s",
		cfg.MQTT.BrokerURL(), fc.FleetID, fc.Count, fc.Stagger, sim.Interval)
	if err := fleet.Start(ctx, sim.Interval); err != nil {
		fleet.Stop()
		<-done
		return err
	}
	log.Infof("Fleet simulation running. Press Ctrl+C to stop.")
	if err := fleet.Wait(ctx); err == nil && ctx.Err() == nil {
		log.Warnf("all vehicles stopped")
	}
	fleet.Stop()
	<-done
	logRoster(log, roster)
	logSummary(log, summary.Snapshot())
	return nil
}
