// Package registrytest runs an in-process npm-style registry for tests.
//
// Packages are published programmatically; the server serves package
// documents at /<name> and generated tarballs at /<name>/-/<file>.tgz.
// Failures, latency and error bodies can be injected per package.
package registrytest

import (
	"archive/tar"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"
)

// Version describes one published version.
type Version struct {
	Dependencies    map[string]string
	DevDependencies map[string]string
	Deprecated      string
	// Files are extra archive members, relative to the package root.
	Files map[string]string
}

type published struct {
	Version
	tarball []byte
	shasum  string
}

// Server is a fake registry backed by httptest.
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	packages  map[string]map[string]*published
	failures  map[string]int
	errorBody map[string]bool
	hits      map[string]int
	delay     time.Duration
	badSum    map[string]bool
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		packages:  make(map[string]map[string]*published),
		failures:  make(map[string]int),
		errorBody: make(map[string]bool),
		hits:      make(map[string]int),
		badSum:    make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Get("/{name}/-/{file}", s.handleTarball)
	r.Get("/{name}", s.handleDocument)
	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the registry root with a trailing slash.
func (s *Server) URL() string { return s.srv.URL + "/" }

// Publish adds a version of name with the given runtime dependencies.
func (s *Server) Publish(name, version string, deps map[string]string) {
	s.PublishVersion(name, version, Version{Dependencies: deps})
}

// PublishVersion adds a fully described version of name.
func (s *Server) PublishVersion(name, version string, v Version) {
	tgz := buildTarball(name, version, v.Files)
	sum := sha1.Sum(tgz)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packages[name] == nil {
		s.packages[name] = make(map[string]*published)
	}
	s.packages[name][version] = &published{Version: v, tarball: tgz, shasum: hex.EncodeToString(sum[:])}
}

// FailNext makes the next n document requests for name answer 500.
func (s *Server) FailNext(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = n
}

// ErrorBody makes document requests for name answer 200 with an error field.
func (s *Server) ErrorBody(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorBody[name] = true
}

// CorruptShasum advertises a wrong shasum for every version of name.
func (s *Server) CorruptShasum(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badSum[name] = true
}

// SetDelay delays every document response by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Hits returns how many document requests were received for name.
func (s *Server) Hits(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[name]
}

// TotalHits returns the number of document requests across all packages.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// TarballURL returns the archive URL advertised for name@version.
func (s *Server) TarballURL(name, version string) string {
	return s.URL() + escape(name) + "/-/" + path.Base(name) + "-" + version + ".tgz"
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.hits[name]++
	delay := s.delay
	fail := s.failures[name] > 0
	if fail {
		s.failures[name]--
	}
	errBody := s.errorBody[name]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if fail {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if errBody {
		writeJSON(w, http.StatusOK, map[string]any{"error": "Not found"})
		return
	}

	doc, ok := s.document(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) document(name string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.packages[name]
	if !ok {
		return nil, false
	}

	docs := make(map[string]any, len(versions))
	for version, p := range versions {
		shasum := p.shasum
		if s.badSum[name] {
			shasum = strings.Repeat("0", len(shasum))
		}
		rec := map[string]any{
			"name":           name,
			"version":        version,
			"_id":            name + "@" + version,
			"_npmVersion":    "10.2.4",
			"_nodeVersion":   "20.11.0",
			"_nodeSupported": true,
			"dist": map[string]any{
				"tarball": s.TarballURL(name, version),
				"shasum":  shasum,
			},
			"engines":     map[string]any{"node": ">=14"},
			"directories": map[string]any{},
			"keywords":    []string{name},
		}
		if p.Dependencies != nil {
			rec["dependencies"] = p.Dependencies
		}
		if p.DevDependencies != nil {
			rec["devDependencies"] = p.DevDependencies
		}
		if p.Deprecated != "" {
			rec["deprecated"] = p.Deprecated
		}
		docs[version] = rec
	}
	return map[string]any{"name": name, "versions": docs}, true
}

func (s *Server) handleTarball(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file := chi.URLParam(r, "file")
	prefix := path.Base(name) + "-"
	version := strings.TrimSuffix(strings.TrimPrefix(file, prefix), ".tgz")

	s.mu.Lock()
	p, ok := s.packages[name][version]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(p.tarball)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func escape(name string) string {
	return strings.Replace(name, "/", "%2F", 1)
}

// buildTarball packs a package.json plus extra files under "package/", the
// layout npm uses.
func buildTarball(name, version string, files map[string]string) []byte {
	manifest, _ := json.Marshal(map[string]string{"name": name, "version": version})

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	add := func(p string, body []byte) {
		_ = tw.WriteHeader(&tar.Header{Name: "package/" + p, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg})
		_, _ = tw.Write(body)
	}
	add("package.json", manifest)
	for _, p := range slices.Sorted(maps.Keys(files)) {
		add(p, []byte(files[p]))
	}

	_ = tw.Close()
	_ = gz.Close()
	return buf.Bytes()
}
