package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status, err := tdClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}
