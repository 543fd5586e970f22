// Package critpath marks critical edges on a computed schedule and derives
// the graph rankings used by reports.
package critpath

import (
	"sort"

	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/schedule"
)

// Mark sets Critical on plan's tasks and edges and returns the critical edge
// ids in ascending order. An edge is critical when both endpoints have zero
// slack and it governed the dependent's earliest start or the prerequisite's
// latest finish. The previous flags on edges are ignored, so Mark is idempotent.
func Mark(plan *schedule.Plan, edges []*model.Dependency) []int64 {
	res := plan.Result
	ids := []int64{}
	for _, e := range edges {
		es, ok := res.Edges[e.ID]
		if !ok {
			continue
		}
		es.Critical = false
		pre, dep := res.Tasks[e.PrerequisiteID], res.Tasks[e.DependentID]
		if pre == nil || dep == nil || !pre.Critical || !dep.Critical {
			continue
		}
		if plan.Forward[e.DependentID] == e.ID || plan.Backward[e.PrerequisiteID] == e.ID {
			es.Critical = true
			ids = append(ids, e.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	res.CriticalEdgeIDs = ids
	return ids
}

// CriticalCount returns the number of active edges whose cached flag is set.
func CriticalCount(edges []*model.Dependency) int {
	n := 0
	for _, e := range edges {
		if e.Active && e.CriticalPath {
			n++
		}
	}
	return n
}

// MostBlocking ranks tasks by how many active edges name them as prerequisite.
// A limit of zero or less returns every task.
func MostBlocking(edges []*model.Dependency, limit int) []model.TaskRank {
	return rank(edges, limit, func(e *model.Dependency) int64 { return e.PrerequisiteID })
}

// MostDependent ranks tasks by how many active edges name them as dependent.
func MostDependent(edges []*model.Dependency, limit int) []model.TaskRank {
	return rank(edges, limit, func(e *model.Dependency) int64 { return e.DependentID })
}

func rank(edges []*model.Dependency, limit int, key func(*model.Dependency) int64) []model.TaskRank {
	counts := make(map[int64]int)
	for _, e := range edges {
		if e.Active {
			counts[key(e)]++
		}
	}
	out := make([]model.TaskRank, 0, len(counts))
	for id, n := range counts {
		out = append(out, model.TaskRank{TaskID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].TaskID < out[j].TaskID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// External returns active edges whose lag is strictly above minLagHours, by id.
func External(edges []*model.Dependency, minLagHours float64) []*model.Dependency {
	out := []*model.Dependency{}
	for _, e := range edges {
		if e.Active && e.LagHours > minLagHours {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
