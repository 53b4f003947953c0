package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/matzehuels/pget/pkg/semver"
)

// VersionRecord is one published version of one package, as served in the
// registry's "versions" map and as persisted in the lockfile.
type VersionRecord struct {
	Name            string      `json:"name" yaml:"name"`
	Version         string      `json:"version" yaml:"version"`
	Description     string      `json:"description,omitempty" yaml:"description,omitempty"`
	Main            string      `json:"main,omitempty" yaml:"main,omitempty"`
	ID              string      `json:"_id,omitempty" yaml:"_id,omitempty"`
	NpmVersion      string      `json:"_npmVersion,omitempty" yaml:"_npmVersion,omitempty"`
	NodeVersion     string      `json:"_nodeVersion,omitempty" yaml:"_nodeVersion,omitempty"`
	NodeSupported   bool        `json:"_nodeSupported,omitempty" yaml:"_nodeSupported,omitempty"`
	Dependencies    StringMap   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	DevDependencies StringMap   `json:"devDependencies,omitempty" yaml:"devDependencies,omitempty"`
	Dist            Dist        `json:"dist,omitempty" yaml:"dist,omitempty"`
	Engines         StringMap   `json:"engines,omitempty" yaml:"engines,omitempty"`
	Directories     StringMap   `json:"directories,omitempty" yaml:"directories,omitempty"`
	Keywords        Keywords    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Author          *Person     `json:"author,omitempty" yaml:"author,omitempty"`
	Contributors    []Person    `json:"contributors,omitempty" yaml:"contributors,omitempty"`
	Repository      *Repository `json:"repository,omitempty" yaml:"repository,omitempty"`
	Scripts         StringMap   `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	Deprecated      Deprecation `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
}

// Dist describes where the package archive lives and how to verify it.
type Dist struct {
	Tarball   string `json:"tarball,omitempty" yaml:"tarball,omitempty"`
	Shasum    string `json:"shasum,omitempty" yaml:"shasum,omitempty"`
	Integrity string `json:"integrity,omitempty" yaml:"integrity,omitempty"`
}

// VersionMap maps a version string to its record, for one package name.
type VersionMap map[string]VersionRecord

// Versions returns the version strings in ascending semver order.
func (m VersionMap) Versions() []string {
	out := make([]string, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	semver.Sort(out)
	return out
}

// UnmarshalJSON decodes a versions object, dropping entries that are not
// objects at all.
func (m *VersionMap) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(VersionMap, len(raw))
	for v, data := range raw {
		if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var rec VersionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			// Mistyped scalar fields are skipped by encoding/json; keep the rest.
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				continue
			}
		}
		if rec.Version == "" {
			rec.Version = v
		}
		out[v] = rec
	}
	*m = out
	return nil
}

// Packument is the registry document for a package.
type Packument struct {
	Name     string            `json:"name"`
	DistTags map[string]string `json:"dist-tags,omitempty"`
	Versions VersionMap        `json:"versions"`
	Error    json.RawMessage   `json:"error,omitempty"`
}

// NotFound reports whether the registry answered with an error field
// instead of a versions map.
func (p *Packument) NotFound() bool {
	e := bytes.TrimSpace(p.Error)
	return len(e) > 0 && !bytes.Equal(e, []byte("null"))
}

// ErrorMessage returns the registry's error text.
func (p *Packument) ErrorMessage() string {
	var s string
	if json.Unmarshal(p.Error, &s) == nil {
		return s
	}
	return string(p.Error)
}

// StringMap is a name → string object. Registry documents occasionally carry
// arrays or non-string values where an object is expected; those decode to
// whatever string entries can be salvaged instead of failing the document.
type StringMap map[string]string

func (m *StringMap) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*m = nil
		return nil
	}
	var direct map[string]string
	if err := json.Unmarshal(b, &direct); err == nil {
		*m = direct
		return nil
	}
	var anyObj map[string]any
	if err := json.Unmarshal(b, &anyObj); err != nil {
		*m = nil
		return nil
	}
	out := make(StringMap, len(anyObj))
	for k, v := range anyObj {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	*m = out
	return nil
}

// Keywords accepts an array of strings or a single comma separated string.
type Keywords []string

func (k *Keywords) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*k = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil && s != "" {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*k = out
		return nil
	}
	*k = nil
	return nil
}

// Person is an author or contributor.
type Person struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

var personRe = regexp.MustCompile(`^([^<(]*?)\s*(?:<([^>]*)>)?\s*(?:\(([^)]*)\))?$`)

// UnmarshalJSON accepts the object form or the "Name <email> (url)" string.
func (p *Person) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if m := personRe.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
			*p = Person{Name: m[1], Email: m[2], URL: m[3]}
		} else {
			*p = Person{Name: s}
		}
		return nil
	}
	type plain Person
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		*p = Person{}
		return nil
	}
	*p = Person(v)
	return nil
}

// Repository is the source repository of a package.
type Repository struct {
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`
}

// UnmarshalJSON accepts the object form or a bare URL string.
func (r *Repository) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = Repository{URL: s}
		return nil
	}
	type plain Repository
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		*r = Repository{}
		return nil
	}
	*r = Repository(v)
	return nil
}

// Deprecation is the deprecation notice of a version. Some old documents use
// a boolean; true becomes a generic notice and false becomes empty.
type Deprecation string

func (d *Deprecation) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = Deprecation(s)
		return nil
	}
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil && flag {
		*d = "deprecated"
		return nil
	}
	*d = ""
	return nil
}

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}
