package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/infra/logger"
)

var (
	cfgPath     string
	envFile     string
	verbose     bool
	metricsAddr string
	host        string
	port        int
	fleetID     string
	interval    string
)

var rootCmd = &cobra.Command{
	Use:          "fleetsim",
	Short:        "MQTT vehicle fleet telemetry simulator",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	pf.StringVar(&envFile, "env-file", "", "dotenv file with FLEETSIM_ overrides, loaded before the environment")
	pf.BoolVar(&verbose, "verbose", false, "enable debug logging")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	pf.StringVar(&host, "host", "localhost", "MQTT broker host")
	pf.IntVar(&port, "port", 1883, "MQTT broker port")
	pf.StringVar(&fleetID, "fleet", "fleet-001", "fleet identifier")
	pf.StringVar(&interval, "interval", "1s", "update interval (duration like 500ms or seconds like 0.5)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig merges the config file, environment and the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if envFile != "" {
		// Variables already present in the environment take precedence.
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.MQTT.Host = host
	}
	if flags.Changed("port") {
		cfg.MQTT.Port = port
	}
	if flags.Changed("fleet") {
		cfg.Simulation.FleetID = fleetID
	}
	if flags.Changed("vehicle") {
		cfg.Simulation.VehicleID = vehicleID
	}
	if flags.Changed("count") {
		cfg.Simulation.Count = count
	}
	if flags.Changed("interval") {
		d, err := config.ParseInterval(interval)
		if err != nil {
			return nil, err
		}
		cfg.Simulation.Interval = d
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.PrometheusEnabled = true
		cfg.Metrics.PrometheusAddr = metricsAddr
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}
