// Package manifest reads and writes package.json files.
//
// Only the fields pget works with are decoded. Every other top-level field
// is kept verbatim and written back in its original position, so saving a
// manifest only changes what pget changed. Dependency maps are written with
// their keys sorted.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/matzehuels/pget/pkg/errors"
)

// FileName is the manifest file name.
const FileName = "package.json"

const (
	keyDependencies    = "dependencies"
	keyDevDependencies = "devDependencies"
)

// Manifest is a parsed package.json.
type Manifest struct {
	Name            string
	Version         string
	Dependencies    map[string]string
	DevDependencies map[string]string

	path   string
	order  []string
	fields map[string]json.RawMessage
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, pkgerrors.New(pkgerrors.ErrCodeManifestNotFound, "no %s at %s", FileName, path)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	m.path = path
	return m, nil
}

// Parse decodes a package.json document.
func Parse(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("manifest must be a JSON object")
	}

	m := &Manifest{fields: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if _, dup := m.fields[key]; !dup {
			m.order = append(m.order, key)
		}
		m.fields[key] = raw
	}

	if err := m.decode("name", &m.Name); err != nil {
		return nil, err
	}
	if err := m.decode("version", &m.Version); err != nil {
		return nil, err
	}
	if err := m.decode(keyDependencies, &m.Dependencies); err != nil {
		return nil, err
	}
	if err := m.decode(keyDevDependencies, &m.DevDependencies); err != nil {
		return nil, err
	}
	if m.Dependencies == nil {
		m.Dependencies = make(map[string]string)
	}
	if m.DevDependencies == nil {
		m.DevDependencies = make(map[string]string)
	}
	return m, nil
}

func (m *Manifest) decode(key string, v any) error {
	raw, ok := m.fields[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidManifest, err, "field %q", key)
	}
	return nil
}

// Path returns the file the manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// Dir returns the project directory.
func (m *Manifest) Dir() string { return filepath.Dir(m.path) }

// Add sets name to rng in dependencies, or devDependencies when dev is set,
// removing it from the other map.
func (m *Manifest) Add(name, rng string, dev bool) error {
	if err := pkgerrors.ValidateNpmPackageName(name); err != nil {
		return err
	}
	if dev {
		m.DevDependencies[name] = rng
		delete(m.Dependencies, name)
	} else {
		m.Dependencies[name] = rng
		delete(m.DevDependencies, name)
	}
	return nil
}

// Marshal encodes the manifest with two-space indentation, sorted dependency
// maps and a trailing newline.
func (m *Manifest) Marshal() ([]byte, error) {
	keys := m.order
	for _, k := range []string{keyDependencies, keyDevDependencies} {
		if _, ok := m.fields[k]; !ok && len(m.deps(k)) > 0 {
			keys = append(keys, k)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("{")
	for i, k := range keys {
		val := []byte(m.fields[k])
		if k == keyDependencies || k == keyDevDependencies {
			var err error
			if val, err = encode(m.deps(k)); err != nil {
				return nil, err
			}
		}
		name, err := encode(k)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		buf.Write(name)
		buf.WriteString(": ")
		if err := json.Indent(&buf, bytes.TrimSpace(val), "  ", "  "); err != nil {
			return nil, err
		}
	}
	if len(keys) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func (m *Manifest) deps(key string) map[string]string {
	if key == keyDevDependencies {
		return m.DevDependencies
	}
	return m.Dependencies
}

// Save writes the manifest back to the file it was loaded from.
func (m *Manifest) Save() error {
	if m.path == "" {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidPath, "manifest has no path")
	}
	return m.SaveAs(m.path)
}

// SaveAs writes the manifest to path.
func (m *Manifest) SaveAs(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeInternal, err, "encode %s", FileName)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPath, err, "write %s", path)
	}
	m.path = path
	return nil
}

// encode marshals v without escaping <, > and &, which are common in
// version ranges.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Find returns the path of the nearest package.json at or above dir.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPath, err, "resolve %s", dir)
	}
	for d := abs; ; {
		candidate := filepath.Join(d, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", pkgerrors.New(pkgerrors.ErrCodeManifestNotFound, "no %s in %s or any parent directory", FileName, abs)
		}
		d = parent
	}
}

// ParseSpec splits "name@range" as given on the command line. Scoped names
// keep their leading "@". A missing range is returned empty.
func ParseSpec(arg string) (name, rng string, err error) {
	at := strings.LastIndex(arg, "@")
	if at > 0 {
		name, rng = arg[:at], arg[at+1:]
	} else {
		name = arg
	}
	if err := pkgerrors.ValidateNpmPackageName(name); err != nil {
		return "", "", err
	}
	return name, strings.TrimSpace(rng), nil
}
