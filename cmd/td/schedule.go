package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

var recomputeCmd = &cobra.Command{
	Use:     "recompute <project-id>",
	Short:   "Recompute a project's schedule and critical path",
	GroupID: "schedule",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID("project", args[0])
		if err != nil {
			return err
		}
		rep, err := tdClient.Recompute(context.Background(), projectID)
		if err != nil {
			return fmt.Errorf("recomputing schedule: %w", err)
		}
		return showSchedule(cmd, rep)
	},
}

var scheduleCmd = &cobra.Command{
	Use:     "schedule <project-id>",
	Short:   "Show the last computed schedule",
	GroupID: "schedule",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID("project", args[0])
		if err != nil {
			return err
		}
		rep, err := tdClient.GetSchedule(context.Background(), projectID)
		if err != nil {
			return fmt.Errorf("getting schedule: %w", err)
		}
		return showSchedule(cmd, rep)
	},
}

func showSchedule(cmd *cobra.Command, rep *model.ScheduleReport) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), rep)
	}
	printSchedule(cmd.OutOrStdout(), rep)
	return nil
}
