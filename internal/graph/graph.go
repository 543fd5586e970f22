// Package graph indexes the active dependency edges of a project and guards
// the acyclicity invariant.
package graph

import (
	"fmt"
	"sort"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

type pair struct {
	dependent    int64
	prerequisite int64
}

// Graph is an adjacency index over active edges. Neighbor lists are kept in
// ascending edge-id order so traversals are deterministic.
//
// Graph is not safe for concurrent mutation.
type Graph struct {
	prereqs    map[int64][]*model.Dependency // dependent -> incoming constraint edges
	dependents map[int64][]*model.Dependency // prerequisite -> outgoing edges
	pairs      map[pair]*model.Dependency
	nodes      map[int64]struct{}
}

// New builds a Graph from edges, ignoring inactive ones.
func New(edges []*model.Dependency) *Graph {
	g := &Graph{
		prereqs:    make(map[int64][]*model.Dependency),
		dependents: make(map[int64][]*model.Dependency),
		pairs:      make(map[pair]*model.Dependency),
		nodes:      make(map[int64]struct{}),
	}
	sorted := make([]*model.Dependency, 0, len(edges))
	for _, e := range edges {
		if e.Active {
			sorted = append(sorted, e)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, e := range sorted {
		g.add(e)
	}
	return g
}

func (g *Graph) add(e *model.Dependency) {
	g.prereqs[e.DependentID] = append(g.prereqs[e.DependentID], e)
	g.dependents[e.PrerequisiteID] = append(g.dependents[e.PrerequisiteID], e)
	g.pairs[pair{e.DependentID, e.PrerequisiteID}] = e
	g.nodes[e.DependentID] = struct{}{}
	g.nodes[e.PrerequisiteID] = struct{}{}
}

// Add inserts an active edge that has already passed Guard.Check.
func (g *Graph) Add(e *model.Dependency) error {
	if !e.Active {
		return fmt.Errorf("add inactive edge %d: %w", e.ID, model.ErrValidation)
	}
	if _, dup := g.pairs[pair{e.DependentID, e.PrerequisiteID}]; dup {
		return fmt.Errorf("%d -> %d: %w", e.DependentID, e.PrerequisiteID, model.ErrDuplicateEdge)
	}
	g.add(e)
	return nil
}

// Edge returns the active edge for the pair, if any.
func (g *Graph) Edge(dependent, prerequisite int64) (*model.Dependency, bool) {
	e, ok := g.pairs[pair{dependent, prerequisite}]
	return e, ok
}

// Prerequisites returns the edges whose dependent is taskID.
func (g *Graph) Prerequisites(taskID int64) []*model.Dependency {
	return g.prereqs[taskID]
}

// Dependents returns the edges whose prerequisite is taskID.
func (g *Graph) Dependents(taskID int64) []*model.Dependency {
	return g.dependents[taskID]
}

// EdgeCount returns the number of active edges.
func (g *Graph) EdgeCount() int {
	return len(g.pairs)
}

// Edges returns every active edge in ascending id order.
func (g *Graph) Edges() []*model.Dependency {
	out := make([]*model.Dependency, 0, len(g.pairs))
	for _, e := range g.pairs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Nodes returns every task id touched by an active edge, ascending.
func (g *Graph) Nodes() []int64 {
	out := make([]int64, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
