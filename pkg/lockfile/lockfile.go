// Package lockfile persists resolved package versions between runs.
//
// A [Store] holds two generations. The old generation is loaded once by
// [Store.Read] and only ever consulted, keyed by "name@constraint", to skip
// registry fetches. The new generation is built during resolution, keyed by
// plain package name, and flushed by [Store.Write].
//
// The file is YAML with top-level keys sorted by package name:
//
//	left-pad:
//	    name: left-pad
//	    version: 1.3.0
//	    _id: left-pad@1.3.0
//	    dist:
//	        tarball: https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz
//	        shasum: 5b8a3a7765dfe001261dde915589e782f8c94d1e
//	    constraints:
//	        - ^1.3.0
//
// The constraints list records which constraints resolved to the entry's
// version, so a later run can look the entry up by any of them.
//
// Lock I/O never fails the caller: unreadable or corrupt files are logged and
// treated as absent, and write failures are logged and dropped.
package lockfile

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/pget/pkg/registry"
)

// DefaultPath is the lockfile name relative to the project root.
const DefaultPath = "pget-store.yaml"

// Entry is the persisted record for one package name.
type Entry struct {
	registry.VersionRecord `yaml:",inline"`
	Constraints            []string `yaml:"constraints,omitempty"`
}

// Store owns the old and new lock generations. It is safe for concurrent use.
type Store struct {
	path   string
	logger *log.Logger

	mu      sync.Mutex
	old     map[string]registry.VersionRecord
	new     map[string]*Entry
	readSum uint64
	loaded  bool
}

// New creates an empty store backed by path. A nil logger uses log.Default().
func New(path string, logger *log.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		path:   path,
		logger: logger,
		old:    make(map[string]registry.VersionRecord),
		new:    make(map[string]*Entry),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Read loads the file into the old generation. A missing, unreadable or
// corrupt file leaves the old generation empty.
func (s *Store) Read(ctx context.Context) {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("no lockfile found, resolving from the registry", "path", s.path)
		return
	case errors.Is(err, fs.ErrPermission):
		s.logger.Warn("lockfile is not readable, ignoring it", "path", s.path)
		return
	case err != nil:
		s.logger.Warn("failed to read lockfile, ignoring it", "path", s.path, "err", err)
		return
	}

	var entries map[string]Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("lockfile is corrupt, ignoring it", "path", s.path, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.old = make(map[string]registry.VersionRecord, len(entries))
	for name, e := range entries {
		if e.Name == "" {
			e.Name = name
		}
		if e.Version == "" {
			continue
		}
		for _, c := range e.Constraints {
			s.old[key(name, c)] = e.VersionRecord
		}
		s.old[key(name, e.Version)] = e.VersionRecord
	}
	s.readSum = xxhash.Sum64(data)
	s.loaded = true
	s.logger.Debug("lockfile loaded", "path", s.path, "packages", len(entries))
}

// Get returns the locked record for name@constraint from the old
// generation as a one-entry version map.
func (s *Store) Get(name, constraint string) (registry.VersionMap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.old[key(name, constraint)]
	if !ok {
		return nil, false
	}
	return registry.VersionMap{rec.Version: rec}, true
}

// CreateOrUpdate records that constraint resolved name to rec in the new
// generation. A record at the version already held merges into it, with
// non-empty fields of rec taking precedence, and adds constraint to the
// entry's list. A record at a different version replaces the entry.
func (s *Store) CreateOrUpdate(name, constraint string, rec registry.VersionRecord) {
	if rec.Name == "" {
		rec.Name = name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.new[name]
	if !ok || e.Version != rec.Version {
		s.new[name] = &Entry{VersionRecord: rec, Constraints: []string{constraint}}
		return
	}
	merge(&e.VersionRecord, rec)
	if !slices.Contains(e.Constraints, constraint) {
		e.Constraints = append(e.Constraints, constraint)
		slices.Sort(e.Constraints)
	}
}

// Entry returns a copy of the new-generation entry for name.
func (s *Store) Entry(name string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.new[name]
	if !ok {
		return Entry{}, false
	}
	cp := *e
	cp.Constraints = slices.Clone(e.Constraints)
	return cp, true
}

// Len returns the number of packages in the new generation.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.new)
}

// Marshal serialises the new generation with package names sorted.
func (s *Store) Marshal() ([]byte, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.new))
	for name := range s.new {
		names = append(names, name)
	}
	slices.Sort(names)

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range names {
		var val yaml.Node
		if err := val.Encode(s.new[name]); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}, &val)
	}
	s.mu.Unlock()

	if len(root.Content) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(4)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write flushes the new generation to disk. Output identical to the file
// read at start is not rewritten.
func (s *Store) Write(ctx context.Context) {
	data, err := s.Marshal()
	if err != nil {
		s.logger.Warn("failed to encode lockfile", "err", err)
		return
	}

	s.mu.Lock()
	unchanged := s.loaded && xxhash.Sum64(data) == s.readSum
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug("lockfile unchanged", "path", s.path)
		return
	}

	if err := writeAtomic(s.path, data); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			s.logger.Warn("no permission to write lockfile", "path", s.path)
		} else {
			s.logger.Warn("failed to write lockfile", "path", s.path, "err", err)
		}
		return
	}
	s.logger.Debug("lockfile written", "path", s.path, "packages", s.Len())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pget-store-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func key(name, constraint string) string {
	return name + "@" + constraint
}
