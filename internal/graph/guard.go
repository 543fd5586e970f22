package graph

import (
	"fmt"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// DefaultMaxSteps bounds a single reachability search.
const DefaultMaxSteps = 100000

// Guard rejects edges that would break the DAG invariant.
type Guard struct {
	// MaxSteps caps the number of edges expanded per check. A search that
	// hits the cap is treated as corrupt data. Zero means DefaultMaxSteps.
	MaxSteps int
}

// Check validates adding dependent -> prerequisite to g. It returns
// ErrSelfDependency, ErrDuplicateEdge, a *model.CycleError, or
// ErrInconsistentGraph when the traversal cap is exceeded.
func (gd Guard) Check(g *Graph, dependent, prerequisite int64) error {
	if dependent == prerequisite {
		return model.ErrSelfDependency
	}
	if _, ok := g.Edge(dependent, prerequisite); ok {
		return fmt.Errorf("task %d already depends on %d: %w", dependent, prerequisite, model.ErrDuplicateEdge)
	}
	if _, ok := g.Edge(prerequisite, dependent); ok {
		return &model.CycleError{Path: []int64{dependent, prerequisite, dependent}}
	}
	path, err := gd.reach(g, prerequisite, dependent)
	if err != nil {
		return err
	}
	if path != nil {
		return &model.CycleError{Path: append([]int64{dependent}, path...)}
	}
	return nil
}

// reach runs an iterative depth-first search from start along prerequisite
// chains and returns the task path start..target, or nil if target is unreachable.
func (gd Guard) reach(g *Graph, start, target int64) ([]int64, error) {
	limit := gd.MaxSteps
	if limit <= 0 {
		limit = DefaultMaxSteps
	}

	parent := map[int64]int64{}
	visited := map[int64]struct{}{start: {}}
	stack := []int64{start}
	steps := 0

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		edges := g.Prerequisites(node)
		// Push in reverse so the lowest edge id is expanded first.
		for i := len(edges) - 1; i >= 0; i-- {
			steps++
			if steps > limit {
				return nil, fmt.Errorf("cycle check exceeded %d steps from task %d: %w", limit, start, model.ErrInconsistentGraph)
			}
			next := edges[i].PrerequisiteID
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			parent[next] = node
			if next == target {
				return buildPath(parent, start, target), nil
			}
			stack = append(stack, next)
		}
	}
	return nil, nil
}

func buildPath(parent map[int64]int64, start, target int64) []int64 {
	var rev []int64
	for n := target; n != start; n = parent[n] {
		rev = append(rev, n)
	}
	rev = append(rev, start)
	path := make([]int64, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}
