// Command speedrunner drives an in-game agent through a timed speedrun.
//
// Usage:
//
//	speedrunner run            - Play one run against the game bridge
//	speedrunner runs           - List recorded runs
//	speedrunner plan           - Print the phase schedule
//	speedrunner watch          - Follow a running agent in the terminal
//
// Global flags:
//
//	--config <path>     - Config file (default: configs/speedrunner.yaml if present)
//	--log-level <lvl>   - Override log.level
//	--log-format <fmt>  - Override log.format (text, json, pretty)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/speedrunner/internal/config"
	"github.com/talgya/speedrunner/internal/logging"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "speedrunner",
	Short: "Adaptive decision engine for a timed speedrun",
	Long: `speedrunner observes the game through the bridge, picks one action per
tick from a learned policy, a language model or the phase schedule, and
learns from the outcome.

Examples:
  speedrunner run
  speedrunner run --config configs/fast.yaml --budget 10m
  speedrunner runs --limit 5
  speedrunner plan
  speedrunner watch --url http://localhost:8080`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json, pretty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig reads the config and installs the default logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}
	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		return cfg, err
	}
	return cfg, nil
}
