package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Short:   "Isolate or restore a task's dependencies",
	GroupID: "graph",
}

var taskIsolateCmd = &cobra.Command{
	Use:   "isolate <task-id>",
	Short: "Deactivate every dependency touching a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, err := parseID("task", args[0])
		if err != nil {
			return err
		}
		ids, err := tdClient.IsolateTask(context.Background(), taskID, actor)
		if err != nil {
			return fmt.Errorf("isolating task: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ids)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %d dependencies of task %d: %s\n", len(ids), taskID, formatIDs(ids))
		return nil
	},
}

var taskRestoreCmd = &cobra.Command{
	Use:   "restore <task-id>",
	Short: "Reactivate the dependencies removed by isolate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, err := parseID("task", args[0])
		if err != nil {
			return err
		}
		r, err := tdClient.RestoreTask(context.Background(), taskID, actor)
		if err != nil {
			return fmt.Errorf("restoring task: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), r)
		}
		printReactivation(cmd.OutOrStdout(), r)
		return nil
	},
}

func init() {
	taskCmd.AddCommand(taskIsolateCmd)
	taskCmd.AddCommand(taskRestoreCmd)
}
