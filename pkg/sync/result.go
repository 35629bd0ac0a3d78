package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/apicorpus/pkg/constants"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/reconcile"
)

// Result represents the complete result of a run.
type Result struct {
	RunID string
	Step  Step

	// Overall statistics
	Processed int // Candidates the step ran against
	Passed    int // Candidates that did not fail
	Failed    int // Candidates that ended in FAILED
	Changed   int // Candidates whose fingerprint changed
	Moved     int // Candidates relocated to a new version
	Purged    int // Candidates removed from the registry

	Outcomes        []*reconcile.Outcome
	Failures        []Failure
	ProviderResults map[string]*ProviderResult

	// Operation metadata
	DryRun   bool
	Started  time.Time
	Finished time.Time
}

// ProviderResult aggregates outcomes of one provider.
type ProviderResult struct {
	Provider  string
	Processed int
	Passed    int
	Failed    int
	Changed   int
	Purged    int
}

// Failure is one entry of the failure ledger.
type Failure struct {
	Provider string `yaml:"provider" json:"provider"`
	Service  string `yaml:"service,omitempty" json:"service,omitempty"`
	Version  string `yaml:"version" json:"version"`
	Source   string `yaml:"source,omitempty" json:"source,omitempty"`
	Status   int    `yaml:"status" json:"status"`
	Kind     string `yaml:"kind" json:"kind"`
	Message  string `yaml:"message" json:"message"`
	Context  string `yaml:"context,omitempty" json:"context,omitempty"`
}

// Ledger is the serialized failure ledger of one run.
type Ledger struct {
	RunID    string    `yaml:"run_id" json:"run_id"`
	Step     Step      `yaml:"step" json:"step"`
	Failures []Failure `yaml:"failures" json:"failures"`
}

// NewResult creates an empty result.
func NewResult(runID string, step Step, dryRun bool) *Result {
	return &Result{
		RunID:           runID,
		Step:            step,
		DryRun:          dryRun,
		ProviderResults: make(map[string]*ProviderResult),
		Started:         time.Now(),
	}
}

// Record adds an outcome to the result.
func (r *Result) Record(o *reconcile.Outcome) {
	r.Processed++
	r.Outcomes = append(r.Outcomes, o)

	pr, ok := r.ProviderResults[o.Key.Provider]
	if !ok {
		pr = &ProviderResult{Provider: o.Key.Provider}
		r.ProviderResults[o.Key.Provider] = pr
	}
	pr.Processed++

	switch {
	case o.Failed():
		r.Failed++
		pr.Failed++
		r.Failures = append(r.Failures, Failure{
			Provider: o.Key.Provider,
			Service:  o.Key.Service,
			Version:  o.Key.Version,
			Source:   o.Source,
			Status:   o.Status,
			Kind:     string(o.Kind),
			Message:  o.Message(),
			Context:  o.ErrorContext,
		})
		return
	case o.Purged():
		r.Purged++
		pr.Purged++
	}

	r.Passed++
	pr.Passed++
	if o.Changed {
		r.Changed++
		pr.Changed++
	}
	if o.Moved {
		r.Moved++
	}
}

// Finish stamps the end of the run.
func (r *Result) Finish() {
	r.Finished = time.Now()
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	if r.Finished.IsZero() {
		return time.Since(r.Started)
	}
	return r.Finished.Sub(r.Started)
}

// Success reports whether no candidate failed.
func (r *Result) Success() bool {
	return r.Failed == 0
}

// HasChanges returns true if any candidate changed, moved or was purged.
func (r *Result) HasChanges() bool {
	return r.Changed > 0 || r.Moved > 0 || r.Purged > 0
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	summary := fmt.Sprintf("%s: %d processed, %d passed, %d failed", r.Step, r.Processed, r.Passed, r.Failed)

	var parts []string
	if r.Changed > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", r.Changed))
	}
	if r.Moved > 0 {
		parts = append(parts, fmt.Sprintf("%d moved", r.Moved))
	}
	if r.Purged > 0 {
		parts = append(parts, fmt.Sprintf("%d purged", r.Purged))
	}
	if len(parts) > 0 {
		summary += " (" + strings.Join(parts, ", ") + ")"
	}
	if r.DryRun {
		summary += " (Dry run)"
	}
	return summary
}

// Ledger returns the failure ledger of the run.
func (r *Result) Ledger() Ledger {
	failures := r.Failures
	if failures == nil {
		failures = []Failure{}
	}
	return Ledger{RunID: r.RunID, Step: r.Step, Failures: failures}
}

// WriteLedger writes the failure ledger as YAML.
func (r *Result) WriteLedger(path string) error {
	data, err := yaml.MarshalWithOptions(r.Ledger(), yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
			return errors.WrapIO("mkdir", dir, err)
		}
	}
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

// ReadLedger loads a ledger written by WriteLedger.
func ReadLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var l Ledger
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return &l, nil
}
