package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/matzehuels/pget/pkg/errors"
	"github.com/matzehuels/pget/pkg/manifest"
)

const sample = `{"name":"demo","version":"1.0.0","scripts":{"test":"jest"},` +
	`"dependencies":{"zod":"^3.0.0","axios":"<2.0.0"},"private":true}`

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, manifest.FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, t.TempDir(), sample)

	m, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", m.Name)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, map[string]string{"zod": "^3.0.0", "axios": "<2.0.0"}, m.Dependencies)
	assert.NotNil(t, m.DevDependencies)
	assert.Empty(t, m.DevDependencies)
	assert.Equal(t, path, m.Path())
}

func TestMarshalKeepsFieldOrderAndSortsDependencies(t *testing.T) {
	m, err := manifest.Parse([]byte(sample))
	require.NoError(t, err)

	data, err := m.Marshal()
	require.NoError(t, err)

	want := `{
  "name": "demo",
  "version": "1.0.0",
  "scripts": {
    "test": "jest"
  },
  "dependencies": {
    "axios": "<2.0.0",
    "zod": "^3.0.0"
  },
  "private": true
}
`
	assert.Equal(t, want, string(data))
}

func TestMarshalAppendsNewDependencyMaps(t *testing.T) {
	m, err := manifest.Parse([]byte(`{"name":"demo"}`))
	require.NoError(t, err)
	require.NoError(t, m.Add("jest", "^29.0.0", true))

	data, err := m.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"demo\",\n  \"devDependencies\": {\n    \"jest\": \"^29.0.0\"\n  }\n}\n", string(data))
}

func TestMarshalEmpty(t *testing.T) {
	m, err := manifest.Parse([]byte(`{}`))
	require.NoError(t, err)
	data, err := m.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestSaveRoundTrip(t *testing.T) {
	path := writeManifest(t, t.TempDir(), sample)
	m, err := manifest.Load(path)
	require.NoError(t, err)

	m.Dependencies["zod"] = "3.22.4"
	require.NoError(t, m.Save())

	again, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "3.22.4", again.Dependencies["zod"])
	assert.Equal(t, "<2.0.0", again.Dependencies["axios"])
}

func TestAdd(t *testing.T) {
	m, err := manifest.Parse([]byte(sample))
	require.NoError(t, err)

	require.NoError(t, m.Add("zod", "^3.1.0", true))
	assert.NotContains(t, m.Dependencies, "zod")
	assert.Equal(t, "^3.1.0", m.DevDependencies["zod"])

	require.NoError(t, m.Add("zod", "", false))
	assert.NotContains(t, m.DevDependencies, "zod")
	assert.Equal(t, "", m.Dependencies["zod"])

	err = m.Add("Bad Name", "1.0.0", false)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeInvalidPackage))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeManifestNotFound))

	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{"name":`},
		{"not an object", `["a"]`},
		{"dependencies not strings", `{"dependencies":{"a":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tt.content)
			_, err := manifest.Load(path)
			assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeInvalidManifest), "got %v", err)
		})
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	want := writeManifest(t, root, `{}`)
	deep := filepath.Join(root, "src", "lib")
	require.NoError(t, os.MkdirAll(deep, 0755))

	got, err := manifest.Find(deep)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = manifest.Find(root)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		arg, name, rng string
		wantErr        bool
	}{
		{arg: "lodash", name: "lodash"},
		{arg: "lodash@^4.17.0", name: "lodash", rng: "^4.17.0"},
		{arg: "@babel/core", name: "@babel/core"},
		{arg: "@babel/core@7.x", name: "@babel/core", rng: "7.x"},
		{arg: "lodash@", name: "lodash"},
		{arg: "", wantErr: true},
		{arg: "@", wantErr: true},
		{arg: "UPPER case", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, rng, err := manifest.ParseSpec(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.rng, rng)
		})
	}
}
