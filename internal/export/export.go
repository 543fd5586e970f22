// Package export periodically snapshots every project's dependency graph as
// JSONL and ships it to one or more destinations.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// Source is the slice of store.Store an export reads.
type Source interface {
	ListProjects(ctx context.Context) ([]int64, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ListEdges(ctx context.Context, projectID int64, activeOnly bool) ([]*model.Dependency, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version         string    `json:"version"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	ProjectCount    int       `json:"project_count"`
	DependencyCount int       `json:"dependency_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type project struct {
	*model.Project
	Dependencies []*model.Dependency `json:"-"`
}

// ExportJSONL writes every project that owns edges, followed by its edges
// (active and inactive, ordered by id), as JSONL to w. Projects are listed
// in id order; a project that disappears mid-export is skipped.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	ids, err := src.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	var (
		projects []project
		total    int
	)
	for _, id := range ids {
		p, err := src.GetProject(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			p = &model.Project{ID: id}
		} else if err != nil {
			return fmt.Errorf("get project %d: %w", id, err)
		}
		edges, err := src.ListEdges(ctx, id, false)
		if err != nil {
			return fmt.Errorf("list edges for project %d: %w", id, err)
		}
		projects = append(projects, project{Project: p, Dependencies: edges})
		total += len(edges)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:         "1",
		Type:            "header",
		Timestamp:       time.Now().UTC(),
		ProjectCount:    len(projects),
		DependencyCount: total,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, p := range projects {
		if err := enc.Encode(record{Type: "project", Data: p.Project}); err != nil {
			return fmt.Errorf("encode project %d: %w", p.ID, err)
		}
		for _, d := range p.Dependencies {
			if err := enc.Encode(record{Type: "dependency", Data: d}); err != nil {
				return fmt.Errorf("encode dependency %d: %w", d.ID, err)
			}
		}
	}

	return nil
}
