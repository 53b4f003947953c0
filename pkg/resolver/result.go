package resolver

import (
	"slices"
	"strings"
)

// Flattened is the single version of a name installed at the top level.
type Flattened struct {
	Version   string `json:"version"`
	URL       string `json:"url"`
	Shasum    string `json:"shasum,omitempty"`
	Integrity string `json:"integrity,omitempty"`
}

// Nested is a package installed below Parent's own node_modules because a
// different version of the same name is flattened.
type Nested struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Parent    string `json:"parent"`
	URL       string `json:"url"`
	Shasum    string `json:"shasum,omitempty"`
	Integrity string `json:"integrity,omitempty"`
}

// Result is everything an installer needs from a resolution.
type Result struct {
	RunID       string               `json:"runId"`
	Flattened   map[string]Flattened `json:"flattened"`
	Unsatisfied []Nested             `json:"unsatisfied"`
}

// Install is one step of an installation plan. Parent is empty for a
// top-level package.
type Install struct {
	Name      string
	Version   string
	URL       string
	Shasum    string
	Integrity string
	Parent    string
}

// Path returns the install location relative to node_modules.
func (i Install) Path() string { return installPath(i.Parent, i.Name) }

// Depth is the number of node_modules levels above the package.
func (i Install) Depth() int {
	if i.Parent == "" {
		return 0
	}
	return strings.Count(i.Parent, "/node_modules/") + 1
}

// Plan lists every install: flattened packages by name, then nested ones
// ordered by depth, parent and name so a parent directory always precedes
// its children.
func (r *Result) Plan() []Install {
	plan := make([]Install, 0, len(r.Flattened)+len(r.Unsatisfied))
	for _, name := range r.Names() {
		f := r.Flattened[name]
		plan = append(plan, Install{
			Name:      name,
			Version:   f.Version,
			URL:       f.URL,
			Shasum:    f.Shasum,
			Integrity: f.Integrity,
		})
	}

	nested := make([]Install, len(r.Unsatisfied))
	for i, n := range r.Unsatisfied {
		nested[i] = Install{
			Name:      n.Name,
			Version:   n.Version,
			URL:       n.URL,
			Shasum:    n.Shasum,
			Integrity: n.Integrity,
			Parent:    n.Parent,
		}
	}
	slices.SortStableFunc(nested, func(a, b Install) int {
		if d := a.Depth() - b.Depth(); d != 0 {
			return d
		}
		if c := strings.Compare(a.Parent, b.Parent); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return append(plan, nested...)
}

// Names returns the flattened package names in sorted order.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Flattened))
	for name := range r.Flattened {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
