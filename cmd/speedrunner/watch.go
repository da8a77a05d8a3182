package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/speedrunner/internal/dashboard"
)

var (
	flagURL      string
	flagInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running agent in the terminal",
	Long: `Poll a running agent's status server and draw its run live.

Examples:
  speedrunner watch
  speedrunner watch --url http://rig:8080 --interval 500ms`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboard.Run(flagURL, flagInterval)
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagURL, "url", "http://localhost:8080", "Agent status server")
	watchCmd.Flags().DurationVar(&flagInterval, "interval", time.Second, "Poll interval")
}
