package critpath

import (
	"sort"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// MaxChains caps how many chains Chains enumerates; dense graphs can hold
// exponentially many critical paths.
const MaxChains = 64

// Chains lists task paths made of critical edges, each running from a task
// with no critical prerequisite edge to one with no critical dependent edge.
// Output order follows start task id, then edge id.
func Chains(res *model.ScheduleResult, edges []*model.Dependency) [][]int64 {
	next := make(map[int64][]*model.Dependency)
	hasIncoming := make(map[int64]bool)
	for _, e := range edges {
		if es, ok := res.Edges[e.ID]; ok && es.Critical {
			next[e.PrerequisiteID] = append(next[e.PrerequisiteID], e)
			hasIncoming[e.DependentID] = true
		}
	}
	for _, out := range next {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}

	var starts []int64
	for id := range next {
		if !hasIncoming[id] {
			starts = append(starts, id)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	var chains [][]int64
	var walk func(path []int64)
	walk = func(path []int64) {
		if len(chains) >= MaxChains {
			return
		}
		tail := path[len(path)-1]
		if len(next[tail]) == 0 {
			chains = append(chains, append([]int64(nil), path...))
			return
		}
		for _, e := range next[tail] {
			walk(append(path, e.DependentID))
		}
	}
	for _, id := range starts {
		walk([]int64{id})
	}
	return chains
}
