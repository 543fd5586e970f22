package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// parseID parses a positional id argument.
func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64) + "h"
}

func formatIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func printDependency(w io.Writer, d *model.Dependency) {
	fmt.Fprintf(w, "ID:            %d\n", d.ID)
	fmt.Fprintf(w, "Project:       %d\n", d.ProjectID)
	fmt.Fprintf(w, "Dependent:     %d\n", d.DependentID)
	fmt.Fprintf(w, "Prerequisite:  %d\n", d.PrerequisiteID)
	fmt.Fprintf(w, "Type:          %s\n", d.Type)
	fmt.Fprintf(w, "Lag:           %s\n", formatHours(d.LagHours))
	fmt.Fprintf(w, "Active:        %t\n", d.Active)
	if d.CriticalPath {
		fmt.Fprintf(w, "Critical:      %s\n", ui.RenderCritical("yes"))
	}
	if d.DeactivateReason != "" {
		fmt.Fprintf(w, "Reason:        %s\n", d.DeactivateReason)
	}
	if d.CreatedBy != "" {
		fmt.Fprintf(w, "Created By:    %s\n", d.CreatedBy)
	}
	if !d.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created At:    %s\n", d.CreatedAt.Format(timeLayout))
	}
}

func printDependencyTable(w io.Writer, deps []*model.Dependency) {
	if len(deps) == 0 {
		fmt.Fprintln(w, "No dependencies found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEPENDENT\tPREREQUISITE\tTYPE\tLAG\tSTATE")
	for _, d := range deps {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n",
			d.ID,
			d.DependentID,
			d.PrerequisiteID,
			d.Type,
			formatHours(d.LagHours),
			edgeState(d),
		)
	}
	tw.Flush()
}

func edgeState(d *model.Dependency) string {
	switch {
	case !d.Active:
		return ui.RenderMuted("inactive")
	case d.CriticalPath:
		return ui.RenderCritical("critical")
	default:
		return "active"
	}
}

func printSchedule(w io.Writer, rep *model.ScheduleReport) {
	fmt.Fprintf(w, "Project:   %d\n", rep.ProjectID)
	fmt.Fprintf(w, "Makespan:  %s\n", formatHours(rep.MakespanHours))
	fmt.Fprintf(w, "Horizon:   %s\n", formatHours(rep.HorizonHours))
	if !rep.ComputedAt.IsZero() {
		fmt.Fprintf(w, "Computed:  %s\n", rep.ComputedAt.Format(timeLayout))
	}
	fmt.Fprintf(w, "Critical:  %s\n\n", formatIDs(rep.CriticalEdgeIDs))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tES\tEF\tLS\tLF\tSLACK")
	for _, t := range rep.Tasks {
		task := strconv.FormatInt(t.TaskID, 10)
		if t.Critical {
			task = ui.RenderCritical(task)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			task,
			formatHours(t.EarliestStartHours),
			formatHours(t.EarliestFinishHours),
			formatHours(t.LatestStartHours),
			formatHours(t.LatestFinishHours),
			formatHours(t.SlackHours),
		)
	}
	tw.Flush()
}

func printRanks(w io.Writer, ranks []model.TaskRank, column string) {
	if len(ranks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TASK\t%s\n", column)
	for _, r := range ranks {
		fmt.Fprintf(tw, "%d\t%d\n", r.TaskID, r.Count)
	}
	tw.Flush()
}

func printStats(w io.Writer, stats []model.TypeStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tTOTAL\tACTIVE\tCRITICAL\tAVG LAG")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n",
			s.Type,
			s.Count,
			s.ActiveCount,
			s.CriticalCount,
			formatHours(s.AverageLagHours),
		)
	}
	tw.Flush()
}

func printStatsResponse(w io.Writer, resp *api.StatsResponse) {
	printStats(w, resp.Stats)
	fmt.Fprintf(w, "\nAverage lag: %s\n", formatHours(resp.AverageLagHours))
}

func printReactivation(w io.Writer, r *model.Reactivation) {
	fmt.Fprintf(w, "Restored %d dependencies of task %d: %s\n", len(r.Reactivated), r.TaskID, formatIDs(r.Reactivated))
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "  %s %d (%s)\n", ui.RenderMuted("skipped"), s.DependencyID, s.Reason)
	}
}

func printSummary(w io.Writer, s *model.Summary) {
	fmt.Fprintf(w, "Project:      %d\n", s.ProjectID)
	fmt.Fprintf(w, "Active:       %d\n", s.ActiveCount)
	fmt.Fprintf(w, "Critical:     %s\n", ui.RenderCritical(strconv.Itoa(s.CriticalCount)))
	fmt.Fprintf(w, "Average lag:  %s\n\n", formatHours(s.AverageLagHours))
	printStats(w, s.Stats)

	fmt.Fprintln(w, "\n"+ui.RenderAccent("Most blocking:"))
	printRanks(w, s.MostBlocking, "DEPENDENTS")
	fmt.Fprintln(w, "\n"+ui.RenderAccent("Most dependent:"))
	printRanks(w, s.MostDependent, "PREREQUISITES")
	fmt.Fprintln(w, "\n"+ui.RenderAccent("External constraints:"))
	printDependencyTable(w, s.ExternalConstraints)
	fmt.Fprintln(w, "\n"+ui.RenderAccent("Currently blocking:"))
	printDependencyTable(w, s.CurrentlyBlocking)
}
