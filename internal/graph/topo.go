package graph

import (
	"container/heap"
	"fmt"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// idHeap is a min-heap of task ids.
type idHeap []int64

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(int64)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopoSort orders taskIDs with Kahn's algorithm so every prerequisite precedes
// its dependents; ready tasks are released lowest id first. Edges that reference
// tasks outside taskIDs, or a leftover cycle, yield ErrInconsistentGraph.
func TopoSort(taskIDs []int64, g *Graph) ([]int64, error) {
	inDegree := make(map[int64]int, len(taskIDs))
	for _, id := range taskIDs {
		inDegree[id] = 0
	}
	for _, e := range g.Edges() {
		if _, ok := inDegree[e.DependentID]; !ok {
			return nil, fmt.Errorf("edge %d references unknown dependent task %d: %w", e.ID, e.DependentID, model.ErrInconsistentGraph)
		}
		if _, ok := inDegree[e.PrerequisiteID]; !ok {
			return nil, fmt.Errorf("edge %d references unknown prerequisite task %d: %w", e.ID, e.PrerequisiteID, model.ErrInconsistentGraph)
		}
		inDegree[e.DependentID]++
	}

	ready := &idHeap{}
	for id, deg := range inDegree {
		if deg == 0 {
			*ready = append(*ready, id)
		}
	}
	heap.Init(ready)

	order := make([]int64, 0, len(inDegree))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(int64)
		order = append(order, id)
		for _, e := range g.Dependents(id) {
			inDegree[e.DependentID]--
			if inDegree[e.DependentID] == 0 {
				heap.Push(ready, e.DependentID)
			}
		}
	}

	if len(order) != len(inDegree) {
		return nil, fmt.Errorf("topological sort left %d of %d tasks unsorted: %w",
			len(inDegree)-len(order), len(inDegree), model.ErrInconsistentGraph)
	}
	return order, nil
}
