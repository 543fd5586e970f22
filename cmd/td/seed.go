package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/store/memory"
)

// seedFile is the TOML layout accepted by `td serve --seed`. It gives the
// in-memory store the projects and tasks a hosting system would own.
type seedFile struct {
	Projects []struct {
		ID           int64     `toml:"id"`
		Name         string    `toml:"name"`
		Origin       time.Time `toml:"origin"`
		HorizonHours float64   `toml:"horizon_hours"`
	} `toml:"project"`
	Tasks []struct {
		ID            int64   `toml:"id"`
		ProjectID     int64   `toml:"project_id"`
		Title         string  `toml:"title"`
		DurationHours float64 `toml:"duration_hours"`
		Completed     bool    `toml:"completed"`
	} `toml:"task"`
}

// loadSeed decodes path and writes its projects and tasks into s. It returns
// the number of projects and tasks added.
func loadSeed(path string, s *memory.Store) (projects, tasks int, err error) {
	var f seedFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return 0, 0, fmt.Errorf("reading seed %s: %w", path, err)
	}

	known := make(map[int64]bool, len(f.Projects))
	for _, p := range f.Projects {
		if p.ID <= 0 {
			return 0, 0, fmt.Errorf("seed %s: project id must be positive", path)
		}
		origin := p.Origin
		if origin.IsZero() {
			origin = time.Now().UTC().Truncate(time.Hour)
		}
		s.PutProject(&model.Project{ID: p.ID, Name: p.Name, Origin: origin, HorizonHours: p.HorizonHours})
		known[p.ID] = true
	}
	for _, t := range f.Tasks {
		if t.ID <= 0 {
			return 0, 0, fmt.Errorf("seed %s: task id must be positive", path)
		}
		if !known[t.ProjectID] {
			return 0, 0, fmt.Errorf("seed %s: task %d references unknown project %d", path, t.ID, t.ProjectID)
		}
		s.PutTask(&model.Task{
			ID:            t.ID,
			ProjectID:     t.ProjectID,
			Title:         t.Title,
			DurationHours: t.DurationHours,
			Completed:     t.Completed,
		})
	}
	return len(f.Projects), len(f.Tasks), nil
}
