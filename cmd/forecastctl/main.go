package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"DemandCast/pkg/config"
	"DemandCast/pkg/logger"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "forecastctl",
		Short: "Operate the DemandCast forecasting engine from the command line",
		Long: `Runs forecasts offline against the configured model registry, lists the
registered models and enqueues history population jobs for the worker pool.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Debug logging on stderr")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(enqueueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger() *logger.Logger {
	if !verbose {
		return logger.Nop()
	}
	l, err := logger.New(&logger.Config{Level: "debug", Format: "console", Output: "stderr"})
	if err != nil {
		return logger.Nop()
	}
	return l
}
