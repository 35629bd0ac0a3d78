package apicorpus

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/apicorpus/internal/fetch"
	"github.com/agentstation/apicorpus/pkg/reconcile"
	"github.com/agentstation/apicorpus/pkg/registry"
	"github.com/agentstation/apicorpus/pkg/sync"
)

type harness struct {
	t        *testing.T
	dir      string
	registry string
	client   Client
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{t: t, dir: dir, registry: filepath.Join(dir, "metadata.yaml")}
	now := utc.New(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{
		WithRegistryPath(h.registry),
		WithOutputDir(filepath.Join(dir, "APIs")),
		WithClock(func() utc.Time { return now }),
	}, opts...)
	c, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.AutoUpdatesOff() })
	h.client = c
	return h
}

func (h *harness) write(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (h *harness) add(name, content, provider, service string) registry.Key {
	h.t.Helper()
	src := h.write(name, content)
	out, err := h.client.Add(context.Background(), reconcile.AddRequest{Source: src, Provider: provider, Service: service})
	require.NoError(h.t, err)
	require.NoError(h.t, out.Err)
	return out.Key
}

func petsDoc(title, version, schemaRef string) string {
	schema := `type: object`
	if schemaRef != "" {
		schema = fmt.Sprintf(`$ref: %q`, schemaRef)
	}
	return fmt.Sprintf(`openapi: 3.0.0
info:
  title: %s
  version: %q
paths:
  /pets:
    get:
      responses:
        "200":
          description: OK
          content:
            application/json:
              schema:
                %s
`, title, version, schema)
}

func TestNewLoadsExistingRegistry(t *testing.T) {
	h := newHarness(t)
	key := h.add("pets.yaml", petsDoc("Pets", "1.0.0", ""), "example.com", "pets")

	c, err := New(WithRegistryPath(h.registry), WithOutputDir(filepath.Join(h.dir, "APIs")))
	require.NoError(t, err)
	defer func() { _ = c.AutoUpdatesOff() }()

	cand, ok := c.Candidate(key)
	require.True(t, ok)
	assert.Equal(t, "example.com/pets/1.0.0/openapi.yaml", cand.Filename)
}

func TestNewFailsOnUnreadableRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o644))

	_, err := New(WithRegistryPath(path))
	require.Error(t, err)
}

func TestRunIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	good := h.add("a.yaml", petsDoc("A", "1.0.0", ""), "a.example.com", "")
	bad := h.add("b.yaml", petsDoc("B", "1.0.0", ""), "b.example.com", "")
	other := h.add("c.yaml", petsDoc("C", "1.0.0", ""), "c.example.com", "")

	// Break b's source so that it no longer validates.
	h.write("b.yaml", "openapi: 3.0.0\ninfo: [oops]\n")

	result, err := h.client.Run(context.Background(), sync.StepUpdate, sync.WithStrict(true))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "b.example.com", result.Failures[0].Provider)
	assert.Equal(t, string(reconcile.KindValidation), result.Failures[0].Kind)

	for _, k := range []registry.Key{good, bad, other} {
		_, ok := h.client.Candidate(k)
		assert.True(t, ok, "candidate %s should still be tracked", k)
	}
}

func TestRunIsolatesFailuresWithinProvider(t *testing.T) {
	now := utc.New(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	h := newHarness(t, WithClock(func() utc.Time { return now }))
	pets := h.add("pets.yaml", petsDoc("Pets", "1.0.0", ""), "example.com", "pets")
	stores := h.add("stores.yaml", petsDoc("Stores", "1.0.0", ""), "example.com", "stores")
	users := h.add("users.yaml", petsDoc("Users", "1.0.0", ""), "example.com", "users")

	before := make(map[registry.Key]registry.Candidate)
	for _, k := range []registry.Key{pets, stores, users} {
		c, ok := h.client.Candidate(k)
		require.True(t, ok)
		before[k] = c
	}

	h.write("stores.yaml", "openapi: 3.0.0\ninfo: [oops]\n")
	h.write("pets.yaml", petsDoc("Pets and toys", "1.0.0", ""))
	h.write("users.yaml", petsDoc("Users and groups", "1.0.0", ""))
	now = utc.New(now.Time.Add(time.Hour))

	result, err := h.client.Run(context.Background(), sync.StepUpdate, sync.WithStrict(true))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Changed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "stores", result.Failures[0].Service)

	for _, k := range []registry.Key{pets, users} {
		after, ok := h.client.Candidate(k)
		require.True(t, ok)
		assert.NotEqual(t, before[k].Fingerprint, after.Fingerprint, "%s fingerprint", k)
		assert.True(t, after.Updated.Time.Equal(now.Time), "%s updated", k)
	}

	broken, ok := h.client.Candidate(stores)
	require.True(t, ok)
	assert.Equal(t, before[stores].Fingerprint, broken.Fingerprint)
	assert.True(t, broken.Updated.Time.Equal(before[stores].Updated.Time))
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "")

	first, err := h.client.Run(context.Background(), sync.StepUpdate)
	require.NoError(t, err)
	second, err := h.client.Run(context.Background(), sync.StepUpdate)
	require.NoError(t, err)

	assert.False(t, first.HasChanges())
	assert.False(t, second.HasChanges())
	assert.Equal(t, reconcile.StateUnchanged, second.Outcomes[0].Trace[2])
}

func TestRunFiltersByProviderAndService(t *testing.T) {
	h := newHarness(t)
	h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "pets")
	h.add("b.yaml", petsDoc("B", "1.0.0", ""), "example.com", "stores")
	h.add("c.yaml", petsDoc("C", "1.0.0", ""), "other.com", "")

	result, err := h.client.Run(context.Background(), sync.StepValidate, sync.WithProvider("example.com"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	result, err = h.client.Run(context.Background(), sync.StepValidate,
		sync.WithProvider("example.com"), sync.WithService("stores"))
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	assert.Equal(t, "stores", result.Outcomes[0].Key.Service)

	_, err = h.client.Run(context.Background(), sync.StepValidate, sync.WithService("stores"))
	require.Error(t, err)
}

func TestRunRejectsUnknownStep(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.Run(context.Background(), sync.Step("publish"))
	require.Error(t, err)
}

func TestRunFailFast(t *testing.T) {
	h := newHarness(t)
	h.add("a.yaml", petsDoc("A", "1.0.0", ""), "a.example.com", "")
	h.add("b.yaml", petsDoc("B", "1.0.0", ""), "b.example.com", "")
	h.write("a.yaml", "openapi: 3.0.0\ninfo: [oops]\n")
	h.write("b.yaml", "openapi: 3.0.0\ninfo: [oops]\n")

	result, err := h.client.Run(context.Background(), sync.StepUpdate,
		sync.WithStrict(true), sync.WithFailFast(true))
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)
}

func TestRunStopsOnCancellation(t *testing.T) {
	h := newHarness(t)
	h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := h.client.Run(ctx, sync.StepUpdate)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Processed)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	h := newHarness(t)
	key := h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "")
	before, err := os.ReadFile(h.registry)
	require.NoError(t, err)

	h.write("a.yaml", petsDoc("A", "2.0.0", ""))
	result, err := h.client.Run(context.Background(), sync.StepUpdate, sync.WithDryRun(true))
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Moved)

	after, err := os.ReadFile(h.registry)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	_, ok := h.client.Candidate(key)
	assert.True(t, ok)
}

func TestRunRelocatesAndSaves(t *testing.T) {
	h := newHarness(t)
	h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "")

	var moved []*reconcile.Outcome
	h.client.OnCandidateMoved(func(o *reconcile.Outcome) { moved = append(moved, o) })

	h.write("a.yaml", petsDoc("A", "1.1.0", ""))
	result, err := h.client.Run(context.Background(), sync.StepUpdate)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Moved)
	require.Len(t, moved, 1)
	assert.Equal(t, "1.0.0", moved[0].From.Version)
	assert.Equal(t, "1.1.0", moved[0].Key.Version)

	c, err := New(WithRegistryPath(h.registry), WithOutputDir(filepath.Join(h.dir, "APIs")))
	require.NoError(t, err)
	defer func() { _ = c.AutoUpdatesOff() }()
	keys := c.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "1.1.0", keys[0].Version)
}

func TestRunCheckPurgesMissingFiles(t *testing.T) {
	h := newHarness(t)
	key := h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "")
	cand, ok := h.client.Candidate(key)
	require.True(t, ok)
	require.NoError(t, os.Remove(filepath.Join(h.dir, "APIs", cand.Filename)))

	var purged int
	h.client.OnCandidatePurged(func(*reconcile.Outcome) { purged++ })

	result, err := h.client.Run(context.Background(), sync.StepCheck)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)
	assert.Equal(t, 1, purged)
	assert.Empty(t, h.client.Keys())
}

func TestRunWritesLedgerAndMetrics(t *testing.T) {
	metricsPath := filepath.Join(t.TempDir(), "apicorpus.prom")
	h := newHarness(t, WithMetricsFile(metricsPath))
	h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "")
	h.write("a.yaml", "openapi: 3.0.0\ninfo: [oops]\n")

	var failed int
	h.client.OnCandidateFailed(func(*reconcile.Outcome) { failed++ })

	ledgerPath := filepath.Join(h.dir, "failures.yaml")
	result, err := h.client.Run(context.Background(), sync.StepUpdate,
		sync.WithStrict(true), sync.WithLedger(ledgerPath))
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	ledger, err := sync.ReadLedger(ledgerPath)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, ledger.RunID)
	require.Len(t, ledger.Failures, 1)
	assert.Equal(t, "example.com", ledger.Failures[0].Provider)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "apicorpus_candidates_total")
	assert.Contains(t, string(data), "apicorpus_registry_candidates 1")
}

func TestRunFlushesResolutionCachePerProvider(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Pet": {"type": "object"}}`))
	}))
	defer srv.Close()

	h := newHarness(t, WithFetcher(fetch.New(fetch.WithTimeout(2*time.Second))))
	ref := srv.URL + "/common.json#/Pet"
	h.add("a.yaml", petsDoc("A", "1.0.0", ref), "a.example.com", "pets")
	h.add("b.yaml", petsDoc("B", "1.0.0", ref), "a.example.com", "stores")
	h.add("c.yaml", petsDoc("C", "1.0.0", ref), "b.example.com", "")

	hits.Store(0)
	result, err := h.client.Run(context.Background(), sync.StepValidate)
	require.NoError(t, err)
	require.Equal(t, 3, result.Passed)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAddRejectsMissingProvider(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.Add(context.Background(), reconcile.AddRequest{Source: "x.yaml"})
	require.Error(t, err)
}

func TestAddDuplicateFails(t *testing.T) {
	h := newHarness(t)
	h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "")

	out, err := h.client.Add(context.Background(), reconcile.AddRequest{
		Source:   filepath.Join(h.dir, "a.yaml"),
		Provider: "example.com",
	})
	require.NoError(t, err)
	assert.True(t, out.Failed())
}

func TestAutoUpdatesRequirePositiveInterval(t *testing.T) {
	h := newHarness(t, WithAutoUpdateInterval(0))
	require.Error(t, h.client.AutoUpdatesOn())
	require.NoError(t, h.client.AutoUpdatesOff())
}

func TestAutoUpdatesRunUpdateStep(t *testing.T) {
	h := newHarness(t, WithAutoUpdateInterval(20*time.Millisecond))
	h.add("a.yaml", petsDoc("A", "1.0.0", ""), "example.com", "")

	moved := make(chan struct{}, 1)
	h.client.OnCandidateMoved(func(*reconcile.Outcome) {
		select {
		case moved <- struct{}{}:
		default:
		}
	})
	h.write("a.yaml", petsDoc("A", "1.1.0", ""))

	require.NoError(t, h.client.AutoUpdatesOn())
	select {
	case <-moved:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled update did not run")
	}
	require.NoError(t, h.client.AutoUpdatesOff())
}
