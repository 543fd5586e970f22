package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

var blockingCmd = &cobra.Command{
	Use:     "blocking <project-id>",
	Short:   "Rank tasks by how many tasks wait on them",
	GroupID: "reports",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRanks(cmd, args, "DEPENDENTS", tdClient.MostBlocking)
	},
}

var dependentCmd = &cobra.Command{
	Use:     "dependent <project-id>",
	Short:   "Rank tasks by how many prerequisites they wait on",
	GroupID: "reports",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRanks(cmd, args, "PREREQUISITES", tdClient.MostDependent)
	},
}

func runRanks(cmd *cobra.Command, args []string, column string, fetch func(context.Context, int64, int) ([]model.TaskRank, error)) error {
	projectID, err := parseID("project", args[0])
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	ranks, err := fetch(context.Background(), projectID, limit)
	if err != nil {
		return fmt.Errorf("ranking tasks: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), ranks)
	}
	printRanks(cmd.OutOrStdout(), ranks, column)
	return nil
}

var externalCmd = &cobra.Command{
	Use:     "external <project-id>",
	Short:   "List dependencies with lag above a threshold",
	GroupID: "reports",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID("project", args[0])
		if err != nil {
			return err
		}
		var threshold *float64
		if cmd.Flags().Changed("min-lag") {
			v, _ := cmd.Flags().GetFloat64("min-lag")
			threshold = &v
		}
		deps, err := tdClient.ExternalConstraints(context.Background(), projectID, threshold)
		if err != nil {
			return fmt.Errorf("listing external constraints: %w", err)
		}
		return showDependencies(cmd, deps)
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats <project-id>",
	Short:   "Count dependencies per type",
	GroupID: "reports",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID("project", args[0])
		if err != nil {
			return err
		}
		resp, err := tdClient.Stats(context.Background(), projectID)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printStatsResponse(cmd.OutOrStdout(), resp)
		return nil
	},
}

var blockedCmd = &cobra.Command{
	Use:     "blocked <project-id>",
	Short:   "List dependencies whose prerequisite is still open",
	GroupID: "reports",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID("project", args[0])
		if err != nil {
			return err
		}
		deps, err := tdClient.CurrentlyBlocking(context.Background(), projectID)
		if err != nil {
			return fmt.Errorf("listing blocking dependencies: %w", err)
		}
		return showDependencies(cmd, deps)
	},
}

var summaryCmd = &cobra.Command{
	Use:     "summary <project-id>",
	Short:   "Show every report for a project",
	GroupID: "reports",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID("project", args[0])
		if err != nil {
			return err
		}
		sum, err := tdClient.Summary(context.Background(), projectID)
		if err != nil {
			return fmt.Errorf("getting summary: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sum)
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func showDependencies(cmd *cobra.Command, deps []*model.Dependency) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), deps)
	}
	printDependencyTable(cmd.OutOrStdout(), deps)
	return nil
}

func init() {
	blockingCmd.Flags().IntP("limit", "n", 10, "maximum tasks to show (0 = all)")
	dependentCmd.Flags().IntP("limit", "n", 10, "maximum tasks to show (0 = all)")
	externalCmd.Flags().Float64("min-lag", 0, "lag threshold in hours (default: server setting)")
}
