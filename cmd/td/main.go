// Command td is the taskdeps server and its command-line client.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskdeps/internal/client"
	"github.com/alfredjeanlab/taskdeps/internal/ui"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	authToken  string
	jsonOutput bool
	actor      string
	color      string

	tdClient client.Client
)

func defaultActor() string {
	if s := os.Getenv("TASKDEPS_ACTOR"); s != "" {
		return s
	}
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			return name
		}
	}
	return "unknown"
}

func envOr(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func applyColor() error {
	switch color {
	case "auto":
		ui.SetColor(ui.ShouldUseColor())
	case "always":
		ui.SetColor(true)
	case "never":
		ui.SetColor(false)
	default:
		return fmt.Errorf("unknown --color %q (must be auto, always or never)", color)
	}
	return nil
}

func connect() (client.Client, error) {
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, authToken), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, authToken)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

var rootCmd = &cobra.Command{
	Use:           "td <command>",
	Short:         "Task dependency graph service and client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyColor(); err != nil {
			return err
		}
		c, err := connect()
		if err != nil {
			return err
		}
		tdClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tdClient != nil {
			tdClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", envOr("TASKDEPS_HTTP_URL", "http://localhost:8080"), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOr("TASKDEPS_SERVER", "localhost:9090"), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("TASKDEPS_AUTH_TOKEN"), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor name recorded on changes")
	rootCmd.PersistentFlags().StringVar(&color, "color", "auto", "colour output (auto, always, never)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "graph", Title: "Dependencies:"},
		&cobra.Group{ID: "schedule", Title: "Schedule:"},
		&cobra.Group{ID: "reports", Title: "Reports:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Dependencies
	rootCmd.AddCommand(depCmd)
	rootCmd.AddCommand(taskCmd)

	// Schedule
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(scheduleCmd)

	// Reports
	rootCmd.AddCommand(blockingCmd)
	rootCmd.AddCommand(dependentCmd)
	rootCmd.AddCommand(externalCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(blockedCmd)
	rootCmd.AddCommand(summaryCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
