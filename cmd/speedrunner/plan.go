package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/speedrunner/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the phase schedule",
	Args:  cobra.NoArgs,
	RunE:  printPlan,
}

func printPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	plan, err := planner.New(cfg.Schedule())
	if err != nil {
		return err
	}

	fmt.Printf("Budget %s, %d phases\n\n", cfg.Engine.Budget, plan.Count())
	for _, p := range plan.Phases() {
		fmt.Printf("%-8s until %-6s %s\n", p.ID, p.Until, p.Name)
		for _, t := range p.Tasks {
			fmt.Printf("    %2d  %-22s done when %s\n", t.Priority, t.Action, t.Goal)
		}
	}
	return nil
}
