package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskdeps/internal/events"
	"github.com/alfredjeanlab/taskdeps/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream dependency graph events from the bus",
	GroupID: "system",
	// Events come from NATS, not the service API.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return applyColor() },
	PersistentPostRun: func(cmd *cobra.Command, args []string) {},
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		projectID, _ := cmd.Flags().GetInt64("project")
		if natsURL == "" {
			return fmt.Errorf("--nats-url or TASKDEPS_NATS_URL is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(events.TopicAll)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()

		return watchEvents(ctx, ch, projectID, cmd.OutOrStdout())
	},
}

// watchEvents prints messages from ch until ctx ends or ch closes. A
// positive projectID drops events for other projects.
func watchEvents(ctx context.Context, ch <-chan events.Message, projectID int64, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if projectID > 0 && eventProject(msg.Data) != projectID {
				continue
			}
			if jsonOutput {
				fmt.Fprintf(w, `{"topic":%q,"event":%s}`+"\n", msg.Topic, msg.Data)
				continue
			}
			fmt.Fprintln(w, formatEvent(time.Now(), msg))
		}
	}
}

// eventPayload holds the fields any event may carry.
type eventPayload struct {
	ProjectID  int64 `json:"project_id"`
	TaskID     int64 `json:"task_id"`
	Dependency *struct {
		ID             int64  `json:"id"`
		ProjectID      int64  `json:"project_id"`
		DependentID    int64  `json:"dependent_task_id"`
		PrerequisiteID int64  `json:"prerequisite_task_id"`
		Type           string `json:"type"`
	} `json:"dependency"`
	DependencyIDs   []int64 `json:"dependency_ids"`
	MakespanHours   float64 `json:"makespan_hours"`
	CriticalEdgeIDs []int64 `json:"critical_edge_ids"`
	Operation       string  `json:"operation"`
	Error           string  `json:"error"`
}

// eventProject extracts the project id from an event payload, or 0.
func eventProject(data []byte) int64 {
	var p eventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return 0
	}
	if p.ProjectID != 0 {
		return p.ProjectID
	}
	if p.Dependency != nil {
		return p.Dependency.ProjectID
	}
	return 0
}

// formatEvent renders one event as a single line.
func formatEvent(at time.Time, msg events.Message) string {
	prefix := ui.RenderMuted(at.Format("15:04:05")) + " " + ui.RenderAccent(msg.Topic)
	var p eventPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		return prefix + " " + string(msg.Data)
	}
	switch msg.Topic {
	case events.TopicDependencyAdded, events.TopicDependencyRemoved:
		if d := p.Dependency; d != nil {
			return fmt.Sprintf("%s project=%d dep=%d %d->%d %s", prefix, d.ProjectID, d.ID, d.DependentID, d.PrerequisiteID, d.Type)
		}
	case events.TopicDependencyDeactivated:
		return fmt.Sprintf("%s project=%d task=%d deps=%s", prefix, p.ProjectID, p.TaskID, formatIDs(p.DependencyIDs))
	case events.TopicScheduleRecomputed:
		return fmt.Sprintf("%s project=%d makespan=%s critical=%s", prefix, p.ProjectID, formatHours(p.MakespanHours), formatIDs(p.CriticalEdgeIDs))
	case events.TopicGraphInconsistent:
		return fmt.Sprintf("%s project=%d op=%s %s", prefix, p.ProjectID, p.Operation, ui.RenderCritical(p.Error))
	}
	return fmt.Sprintf("%s project=%d", prefix, eventProject(msg.Data))
}

func init() {
	watchCmd.Flags().String("nats-url", os.Getenv("TASKDEPS_NATS_URL"), "NATS server URL")
	watchCmd.Flags().Int64("project", 0, "only show events for this project")
}
