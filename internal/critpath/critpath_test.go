package critpath

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/schedule"
)

var project = &model.Project{ID: 1, Origin: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}

func task(id int64, hours float64) *model.Task {
	return &model.Task{ID: id, ProjectID: 1, DurationHours: hours}
}

func fs(id, dependent, prerequisite int64, lag float64) *model.Dependency {
	return &model.Dependency{
		ID:             id,
		ProjectID:      1,
		DependentID:    dependent,
		PrerequisiteID: prerequisite,
		Type:           model.FinishToStart,
		LagHours:       lag,
		Active:         true,
	}
}

func plan(t *testing.T, tasks []*model.Task, edges []*model.Dependency) *schedule.Plan {
	t.Helper()
	p, err := schedule.Compute(context.Background(), project, tasks, edges, schedule.Options{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return p
}

// checkChains verifies every critical task sits on a critical chain that
// spans the project from origin to makespan.
func checkChains(t *testing.T, res *model.ScheduleResult, edges []*model.Dependency) {
	t.Helper()
	covered := map[int64]bool{}
	for _, chain := range Chains(res, edges) {
		first, last := res.Tasks[chain[0]], res.Tasks[chain[len(chain)-1]]
		if first.EarliestStart != 0 || last.EarliestFinish != res.Makespan {
			t.Errorf("chain %v spans %v..%v, want 0..%v", chain, first.EarliestStart, last.EarliestFinish, res.Makespan)
		}
		for _, id := range chain {
			covered[id] = true
		}
	}
	for _, id := range res.CriticalTasks() {
		if !covered[id] {
			t.Errorf("critical task %d is not on any critical chain", id)
		}
	}
}

func TestMark_LinearChain(t *testing.T) {
	tasks := []*model.Task{task(1, 2), task(2, 3), task(3, 1)}
	edges := []*model.Dependency{fs(10, 2, 1, 0), fs(11, 3, 2, 1)}
	p := plan(t, tasks, edges)

	got := Mark(p, edges)
	if diff := cmp.Diff([]int64{10, 11}, got); diff != "" {
		t.Errorf("critical edges mismatch (-want +got):\n%s", diff)
	}
	if !p.Result.Edges[10].Critical || !p.Result.Edges[11].Critical {
		t.Error("edge schedule flags not set")
	}
	if diff := cmp.Diff([][]int64{{1, 2, 3}}, Chains(p.Result, edges)); diff != "" {
		t.Errorf("chains mismatch (-want +got):\n%s", diff)
	}
	checkChains(t, p.Result, edges)
}

func TestMark_OnlyLongerChainCritical(t *testing.T) {
	tasks := []*model.Task{task(1, 2), task(2, 3), task(3, 1), task(4, 1)}
	edges := []*model.Dependency{fs(1, 2, 1, 0), fs(2, 4, 3, 0)}
	p := plan(t, tasks, edges)

	if diff := cmp.Diff([]int64{1}, Mark(p, edges)); diff != "" {
		t.Errorf("critical edges mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []int64{3, 4} {
		if got := p.Result.Tasks[id].Slack; got != 3*time.Hour {
			t.Errorf("task %d slack = %v, want 3h", id, got)
		}
	}
	checkChains(t, p.Result, edges)
}

func TestMark_NonGoverningEdgeNotCritical(t *testing.T) {
	// 3 depends on 1 directly and through 2; the shortcut never governs.
	tasks := []*model.Task{task(1, 2), task(2, 2), task(3, 1)}
	edges := []*model.Dependency{fs(1, 2, 1, 0), fs(2, 3, 2, 0), fs(3, 3, 1, 0)}
	p := plan(t, tasks, edges)

	if diff := cmp.Diff([]int64{1, 2}, Mark(p, edges)); diff != "" {
		t.Errorf("critical edges mismatch (-want +got):\n%s", diff)
	}
}

func TestMark_TieBreaksOnLowestEdgeID(t *testing.T) {
	// Diamond with equal branches: both are critical, and governing edges
	// resolve ties to the lower id.
	tasks := []*model.Task{task(1, 1), task(2, 2), task(3, 2), task(4, 1)}
	edges := []*model.Dependency{fs(1, 2, 1, 0), fs(2, 3, 1, 0), fs(3, 4, 3, 0), fs(4, 4, 2, 0)}
	p := plan(t, tasks, edges)

	if p.Forward[4] != 3 {
		t.Errorf("forward governing edge of task 4 = %d, want 3", p.Forward[4])
	}
	if p.Backward[1] != 1 {
		t.Errorf("backward governing edge of task 1 = %d, want 1", p.Backward[1])
	}
	// Edge 4 does not govern task 4's start but governs task 2's finish.
	if diff := cmp.Diff([]int64{1, 2, 3, 4}, Mark(p, edges)); diff != "" {
		t.Errorf("critical edges mismatch (-want +got):\n%s", diff)
	}
	checkChains(t, p.Result, edges)
}

func TestMark_RemovingCriticalEdge(t *testing.T) {
	tasks := []*model.Task{task(1, 1), task(2, 2), task(3, 2), task(4, 1)}
	all := []*model.Dependency{fs(1, 2, 1, 0), fs(2, 3, 1, 0), fs(3, 4, 3, 0), fs(4, 4, 2, 0)}
	before := plan(t, tasks, all)
	Mark(before, all)

	remaining := []*model.Dependency{all[1], all[2], all[3]}
	after := plan(t, tasks, remaining)
	ids := Mark(after, remaining)

	if after.Result.Makespan != before.Result.Makespan {
		t.Fatalf("makespan changed: %v -> %v", before.Result.Makespan, after.Result.Makespan)
	}
	if diff := cmp.Diff([]int64{2, 3}, ids); diff != "" {
		t.Errorf("critical edges mismatch (-want +got):\n%s", diff)
	}
	if after.Result.Tasks[2].Critical {
		t.Error("task 2 should have left the critical set")
	}
	for _, id := range ids {
		e := after.Result.Edges[id]
		if !e.Critical {
			t.Errorf("edge %d listed but not flagged", id)
		}
	}
	checkChains(t, after.Result, remaining)
}

func TestMark_Idempotent(t *testing.T) {
	tasks := []*model.Task{task(1, 2), task(2, 3), task(3, 1)}
	edges := []*model.Dependency{fs(10, 2, 1, 0), fs(11, 3, 2, 1)}
	p := plan(t, tasks, edges)

	first := Mark(p, edges)
	second := Mark(p, edges)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second Mark differs (-first +second):\n%s", diff)
	}
}

func TestRankings(t *testing.T) {
	inactive := fs(5, 4, 1, 0)
	inactive.Active = false
	edges := []*model.Dependency{
		fs(1, 2, 1, 0),
		fs(2, 3, 1, 0),
		fs(3, 3, 2, 0),
		fs(4, 4, 2, 0),
		inactive,
	}

	blocking := MostBlocking(edges, 0)
	wantBlocking := []model.TaskRank{{TaskID: 1, Count: 2}, {TaskID: 2, Count: 2}}
	if diff := cmp.Diff(wantBlocking, blocking); diff != "" {
		t.Errorf("MostBlocking mismatch (-want +got):\n%s", diff)
	}

	dependent := MostDependent(edges, 2)
	wantDependent := []model.TaskRank{{TaskID: 3, Count: 2}, {TaskID: 2, Count: 1}}
	if diff := cmp.Diff(wantDependent, dependent); diff != "" {
		t.Errorf("MostDependent mismatch (-want +got):\n%s", diff)
	}
}

func TestExternal(t *testing.T) {
	inactive := fs(4, 5, 1, 100)
	inactive.Active = false
	edges := []*model.Dependency{fs(3, 2, 1, 48), fs(1, 3, 1, 24), fs(2, 4, 1, 72), inactive}

	var got []int64
	for _, e := range External(edges, 24) {
		got = append(got, e.ID)
	}
	if diff := cmp.Diff([]int64{2, 3}, got); diff != "" {
		t.Errorf("External mismatch (-want +got):\n%s", diff)
	}
	if n := len(External(edges, 1000)); n != 0 {
		t.Errorf("External(1000) = %d edges, want 0", n)
	}
}

func TestCriticalCount(t *testing.T) {
	a, b, c := fs(1, 2, 1, 0), fs(2, 3, 2, 0), fs(3, 4, 3, 0)
	a.CriticalPath = true
	b.CriticalPath = true
	b.Active = false
	if n := CriticalCount([]*model.Dependency{a, b, c}); n != 1 {
		t.Errorf("CriticalCount = %d, want 1", n)
	}
}
