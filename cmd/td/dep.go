package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

var depCmd = &cobra.Command{
	Use:     "dep",
	Short:   "Manage task dependencies",
	GroupID: "graph",
}

var depAddCmd = &cobra.Command{
	Use:   "add <project-id> <dependent-task-id> <prerequisite-task-id>",
	Short: "Add a dependency: the dependent waits on the prerequisite",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ids [3]int64
		for i, kind := range []string{"project", "task", "task"} {
			id, err := parseID(kind, args[i])
			if err != nil {
				return err
			}
			ids[i] = id
		}
		depType, _ := cmd.Flags().GetString("type")
		lag, _ := cmd.Flags().GetFloat64("lag")

		dep, err := tdClient.AddDependency(context.Background(), api.AddDependencyRequest{
			ProjectID:      ids[0],
			DependentID:    ids[1],
			PrerequisiteID: ids[2],
			Type:           model.DependencyType(depType),
			LagHours:       lag,
			CreatedBy:      actor,
		})
		if err != nil {
			var cycle *model.CycleError
			if errors.As(err, &cycle) {
				return fmt.Errorf("adding dependency would close cycle %s", formatIDs(cycle.Path))
			}
			return fmt.Errorf("adding dependency: %w", err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), dep)
		}
		printDependency(cmd.OutOrStdout(), dep)
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "rm <dependency-id>",
	Aliases: []string{"remove"},
	Short:   "Deactivate a dependency",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("dependency", args[0])
		if err != nil {
			return err
		}
		dep, err := tdClient.RemoveDependency(context.Background(), id, actor)
		if err != nil {
			return fmt.Errorf("removing dependency: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), dep)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed dependency %d\n", dep.ID)
		return nil
	},
}

var depShowCmd = &cobra.Command{
	Use:   "show <dependency-id>",
	Short: "Show a dependency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("dependency", args[0])
		if err != nil {
			return err
		}
		dep, err := tdClient.GetDependency(context.Background(), id)
		if err != nil {
			return fmt.Errorf("getting dependency: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), dep)
		}
		printDependency(cmd.OutOrStdout(), dep)
		return nil
	},
}

var depListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List a project's dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID("project", args[0])
		if err != nil {
			return err
		}
		depType, _ := cmd.Flags().GetString("type")
		critical, _ := cmd.Flags().GetBool("critical")
		all, _ := cmd.Flags().GetBool("all")

		deps, err := tdClient.ListDependencies(context.Background(), api.ListDependenciesRequest{
			ProjectID:       projectID,
			Type:            model.DependencyType(depType),
			CriticalOnly:    critical,
			IncludeInactive: all,
		})
		if err != nil {
			return fmt.Errorf("listing dependencies: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), deps)
		}
		printDependencyTable(cmd.OutOrStdout(), deps)
		return nil
	},
}

func init() {
	depAddCmd.Flags().StringP("type", "t", string(model.FinishToStart), "dependency type")
	depAddCmd.Flags().Float64("lag", 0, "lag in hours (negative for lead)")

	depListCmd.Flags().StringP("type", "t", "", "only this dependency type")
	depListCmd.Flags().Bool("critical", false, "only critical-path dependencies")
	depListCmd.Flags().BoolP("all", "a", false, "include inactive dependencies")

	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	depCmd.AddCommand(depShowCmd)
	depCmd.AddCommand(depListCmd)
}
