package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/apicorpus/pkg/document"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/registry"
)

func testDoc(t *testing.T, src string) document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(src), "test")
	require.NoError(t, err)
	return doc
}

func TestRelDir(t *testing.T) {
	tests := []struct {
		key     registry.Key
		want    string
		wantErr bool
	}{
		{registry.Key{Provider: "example.com", Version: "1.0.0"}, "example.com/1.0.0", false},
		{registry.Key{Provider: "example.com", Service: "pets", Version: "v2"}, "example.com/pets/v2", false},
		{registry.Key{Provider: "example.com", Version: "2020-01/preview"}, "example.com/2020-01_preview", false},
		// Decomposed e + combining acute accent becomes the composed form.
		{registry.Key{Provider: "cafe\u0301.io", Version: "1"}, "caf\u00e9.io/1", false},
		{registry.Key{Provider: "example.com", Version: ".."}, "", true},
		{registry.Key{Provider: "", Version: "1"}, "", true},
	}
	for _, tt := range tests {
		got, err := RelDir(tt.key)
		if tt.wantErr {
			assert.Error(t, err, tt.key.String())
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestWriteAndRead(t *testing.T) {
	s := New(t.TempDir())
	k := registry.Key{Provider: "example.com", Service: "pets", Version: "1.0.0"}
	doc := testDoc(t, "openapi: 3.0.0\ninfo: {title: Pets, version: 1.0.0}\npaths: {}\n")

	rel, err := s.Write(k, doc)
	require.NoError(t, err)
	assert.Equal(t, "example.com/pets/1.0.0/openapi.yaml", rel)
	assert.True(t, s.Exists(rel))
	assert.FileExists(t, filepath.Join(s.Root(), "example.com", "pets", "1.0.0", "openapi.json"))

	got, err := s.Read(rel)
	require.NoError(t, err)
	assert.Equal(t, "Pets", got.Title())
}

func TestWriteReplacesOtherFamily(t *testing.T) {
	s := New(t.TempDir())
	k := registry.Key{Provider: "example.com", Version: "1"}

	_, err := s.Write(k, testDoc(t, "asyncapi: 2.6.0\ninfo: {title: E, version: '1'}\nchannels: {}\n"))
	require.NoError(t, err)
	rel, err := s.Write(k, testDoc(t, "openapi: 3.0.0\ninfo: {title: E, version: '1'}\npaths: {}\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "example.com", "1"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"openapi.yaml", "openapi.json"}, names)
	assert.Equal(t, "example.com/1/openapi.yaml", rel)
}

func TestMove(t *testing.T) {
	s := New(t.TempDir())
	from := registry.Key{Provider: "example.com", Version: "1.0.0"}
	to := registry.Key{Provider: "example.com", Version: "1.1.0"}
	_, err := s.Write(from, testDoc(t, "openapi: 3.0.0\ninfo: {title: A, version: 1.0.0}\npaths: {}\n"))
	require.NoError(t, err)

	require.NoError(t, s.Move(from, to))
	assert.False(t, s.Exists("example.com/1.0.0/openapi.yaml"))
	assert.True(t, s.Exists("example.com/1.1.0/openapi.yaml"))

	_, err = s.Write(from, testDoc(t, "openapi: 3.0.0\ninfo: {title: A, version: 1.0.0}\npaths: {}\n"))
	require.NoError(t, err)
	err = s.Move(from, to)
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))
}

func TestRemovePrunesEmptyParents(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	k := registry.Key{Provider: "example.com", Service: "pets", Version: "1"}
	_, err := s.Write(k, testDoc(t, "openapi: 3.0.0\ninfo: {title: A, version: '1'}\npaths: {}\n"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(k))
	assert.NoDirExists(t, filepath.Join(root, "example.com"))
	assert.DirExists(t, root)
}

func TestReadMissing(t *testing.T) {
	_, err := New(t.TempDir()).Read("gone/1/openapi.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsSourceMissing(err))
}
