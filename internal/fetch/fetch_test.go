package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/apicorpus/pkg/errors"
)

const petstore = "openapi: 3.0.0\ninfo:\n  title: Pets\n  version: 1.0.0\npaths: {}\n"

func TestRetrieveRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write([]byte(petstore))
	}))
	defer srv.Close()

	resp, err := New().Retrieve(context.Background(), srv.URL+"/openapi.yaml")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "application/yaml", resp.MediaType)
	assert.Equal(t, petstore, string(resp.Content))
	assert.False(t, resp.Cached)
}

func TestRetrieveRevalidates(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"openapi":"3.0.0"}`))
	}))
	defer srv.Close()

	f := New()
	ctx := context.Background()

	first, err := f.Retrieve(ctx, srv.URL)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.Retrieve(ctx, srv.URL)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.True(t, second.OK)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, "application/json", second.MediaType)

	third, err := f.Retrieve(ForceRefresh(ctx), srv.URL)
	require.NoError(t, err)
	assert.False(t, third.Cached)

	assert.EqualValues(t, 3, hits.Load())
	assert.EqualValues(t, 1, notModified.Load())
}

func TestRetrieveForceRefreshOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(petstore))
	}))
	defer srv.Close()

	f := New(WithForceRefresh(true))
	for i := 0; i < 2; i++ {
		resp, err := f.Retrieve(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.False(t, resp.Cached)
	}
}

func TestRetrieveHTTPError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, errors.IsNotFound},
		{"server error", http.StatusBadGateway, func(err error) bool { return errors.Is(err, errors.ErrProviderUnavailable) }},
		{"forbidden", http.StatusForbidden, errors.IsFetchError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			resp, err := New().Retrieve(context.Background(), srv.URL)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.False(t, resp.OK)
			assert.Equal(t, tt.status, resp.Status)
			assert.True(t, tt.check(err))
		})
	}
}

func TestRetrieveTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	resp, err := New(WithTimeout(50*time.Millisecond)).Retrieve(context.Background(), srv.URL)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.OK)
	assert.Zero(t, resp.Status)
	assert.True(t, errors.IsTimeout(err))
}

func TestRetrieveLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(petstore), 0o644))

	f := New()
	for _, locator := range []string{path, "file://" + filepath.ToSlash(path)} {
		resp, err := f.Retrieve(context.Background(), locator)
		require.NoError(t, err, locator)
		assert.True(t, resp.OK)
		assert.Equal(t, "application/yaml", resp.MediaType)
		assert.Equal(t, petstore, string(resp.Content))
	}
}

func TestRetrieveLocalMissing(t *testing.T) {
	_, err := New().Retrieve(context.Background(), filepath.Join(t.TempDir(), "gone.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsSourceMissing(err))
	assert.True(t, errors.IsIOError(err))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"https://example.com/specs/api.yaml", "defs.yaml", "https://example.com/specs/defs.yaml"},
		{"https://example.com/specs/api.yaml", "../common/defs.yaml#/Pet", "https://example.com/common/defs.yaml"},
		{"https://example.com/specs/api.yaml", "https://other.org/x.json", "https://other.org/x.json"},
		{"/data/specs/api.yaml", "defs.yaml", "/data/specs/defs.yaml"},
		{"/data/specs/api.yaml", "/abs/defs.yaml", "/abs/defs.yaml"},
		{"file:///data/specs/api.yaml", "defs.yaml", "file:///data/specs/defs.yaml"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.base, tt.ref), "%s + %s", tt.base, tt.ref)
	}
}
