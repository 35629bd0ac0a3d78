package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/apicorpus/pkg/reconcile"
)

func TestObserverAndTextfile(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	obs := m.Observer("update")
	obs.Observe(&reconcile.Outcome{State: reconcile.StatePersisted, Changed: true, Moved: true, Duration: 20 * time.Millisecond})
	obs.Observe(&reconcile.Outcome{State: reconcile.StateFailed, Kind: reconcile.KindNetwork, Duration: time.Second})
	m.RunFinished(7)

	path := filepath.Join(t.TempDir(), "apicorpus.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `apicorpus_pipeline_candidates_total{state="PERSISTED",step="update"} 1`)
	assert.Contains(t, text, `apicorpus_pipeline_candidates_total{state="FAILED",step="update"} 1`)
	assert.Contains(t, text, `apicorpus_pipeline_failures_total{kind="network",step="update"} 1`)
	assert.Contains(t, text, `apicorpus_pipeline_changes_total{step="update",type="version"} 1`)
	assert.Contains(t, text, `apicorpus_pipeline_candidate_duration_seconds_count{step="update"} 2`)
	assert.Contains(t, text, "apicorpus_registry_candidates 7")
}
