package model

// DependencyFilter holds criteria for listing dependencies of a project.
type DependencyFilter struct {
	Type         DependencyType `json:"type,omitempty"`
	CriticalOnly bool           `json:"critical_only,omitempty"`
	ActiveOnly   bool           `json:"active_only,omitempty"`
}

// Matches reports whether d satisfies the filter.
func (f DependencyFilter) Matches(d *Dependency) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.ActiveOnly && !d.Active {
		return false
	}
	if f.CriticalOnly && !d.CriticalPath {
		return false
	}
	return true
}
