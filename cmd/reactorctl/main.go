// Command reactorctl drives the Agent Controller from the command line:
// run a goal, list the registered tools, or replay a past run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reactorctl/reactor/internal/application"
	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/reactorctl/reactor/internal/infrastructure/config"
)

const cliName = "reactorctl"

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "reactorctl — autonomous ReAct agent runtime",
	}

	var maxTurns int
	runCmd := &cobra.Command{
		Use:   "run [goal description]",
		Short: "drive a goal through the agent controller to completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoal(joinArgs(args), maxTurns)
		},
	}
	runCmd.Flags().IntVar(&maxTurns, "max-turns", 25, "turn budget for this run")
	rootCmd.AddCommand(runCmd)

	toolsCmd := &cobra.Command{Use: "tools", Short: "inspect the registered tool set"}
	toolsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list every registered tool and its description",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTools()
		},
	})
	rootCmd.AddCommand(toolsCmd)

	replayCmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "reload a past run's transcript from the replay store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayRun(args[0])
		},
	}
	rootCmd.AddCommand(replayCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildApp() (*application.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return application.New(cfg)
}

func runGoal(goal string, maxTurns int) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := app.RunGoal(ctx, goal, nil, maxTurns)
	printResult(result)
	if !result.Success {
		return fmt.Errorf("run did not complete: %s", result.Error)
	}
	return nil
}

func listTools() error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	for _, def := range app.ListTools() {
		fmt.Printf("%-20s %s\n", def.Name, def.Description)
	}
	return nil
}

func replayRun(runID string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.ReplayRun(context.Background(), runID)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func printResult(result *entity.RunResult) {
	fmt.Printf("success=%v summary=%q error=%q\n", result.Success, result.Summary, result.Error)
	if result.State == nil {
		return
	}
	for _, turn := range result.State.Transcript() {
		fmt.Printf("  [%d] %s -> %s\n", turn.Turn, turn.Action.ToolName, turn.Observation)
	}
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}
