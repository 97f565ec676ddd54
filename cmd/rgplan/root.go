package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gfx/internal/config"
)

var (
	cfgFile  string
	logLevel string

	// cfg is loaded before any subcommand runs.
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "rgplan",
	Short: "Plan and run render graphs",
	Long: `rgplan compiles render graph descriptions (YAML or TOML) into
execution plans, shows the schedule, culling, lifetimes and memory
aliasing, and can execute a graph on any available GPU backend.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides the config file)")
}

// setup loads the configuration and installs the logger.
func setup(cmd *cobra.Command, _ []string) error {
	cfg = config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	gfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// openDevice creates a device from the configuration, optionally
// overriding the backend probe order.
func openDevice(backends []string) (*gfx.Device, error) {
	opts := cfg.DeviceOptions()
	if len(backends) > 0 {
		opts = append(opts, gfx.WithBackends(backends...))
	}
	dev, err := gfx.NewDevice(opts...)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	return dev, nil
}
