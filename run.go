package apicorpus

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentstation/apicorpus/internal/fetch"
	"github.com/agentstation/apicorpus/internal/normalize"
	"github.com/agentstation/apicorpus/pkg/logging"
	"github.com/agentstation/apicorpus/pkg/reconcile"
	"github.com/agentstation/apicorpus/pkg/registry"
	"github.com/agentstation/apicorpus/pkg/sync"
)

// Compile-time interface check to ensure proper implementation.
var _ Runner = (*client)(nil)

// Runner executes a step over the tracked candidates.
type Runner interface {
	// Run processes every candidate selected by opts with the given step.
	// Per-candidate failures are reported in the result; only registry
	// persistence failures and cancellation are returned as errors.
	Run(ctx context.Context, step sync.Step, opts ...sync.Option) (*sync.Result, error)
}

// Run processes every selected candidate with step.
func (c *client) Run(ctx context.Context, step sync.Step, opts ...sync.Option) (*sync.Result, error) {
	if _, err := sync.ParseStep(string(step)); err != nil {
		return nil, err
	}
	o := sync.Defaults().Apply(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	ctx = logging.WithRun(ctx, runID)
	if o.ForceRefresh {
		ctx = fetch.ForceRefresh(ctx)
	}
	logger := logging.FromContext(ctx)

	reg := c.current()
	pipeline := normalize.New(c.fetcher, normalize.WithStrict(o.Strict))
	engine, err := reconcile.New(reg, c.store, c.fetcher, pipeline,
		reconcile.WithClock(c.options.clock),
		reconcile.WithDryRun(o.DryRun),
		reconcile.WithObserver(observers{c.metrics.Observer(string(step)), c.hooks}),
	)
	if err != nil {
		return nil, err
	}

	result := sync.NewResult(runID, step, o.DryRun)
	keys := selectKeys(reg.Keys(), o)

	logger.Info().
		Str("step", string(step)).
		Int("candidates", len(keys)).
		Bool("dry_run", o.DryRun).
		Msg("Starting run")

	runErr := c.process(ctx, engine, pipeline, step, keys, o, result)

	if !o.DryRun && step != sync.StepValidate {
		if err := reg.Save(c.options.registryPath); err != nil {
			return result, fmt.Errorf("saving registry: %w", err)
		}
	}

	result.Finish()
	c.metrics.RunFinished(reg.Len())
	if err := c.writeReports(result, o); err != nil {
		return result, err
	}

	logger.Info().
		Int("processed", result.Processed).
		Int("passed", result.Passed).
		Int("failed", result.Failed).
		Dur("duration", result.Duration()).
		Msg(result.Summary())

	return result, runErr
}

// process runs step over keys in order. The resolution cache is flushed
// whenever the provider changes.
func (c *client) process(ctx context.Context, engine *reconcile.Engine, pipeline *normalize.Pipeline, step sync.Step, keys []registry.Key, o *sync.Options, result *sync.Result) error {
	provider := ""
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			logging.FromContext(ctx).Warn().
				Err(err).
				Int("remaining", len(keys)-i).
				Msg("Run interrupted")
			return err
		}

		if i == 0 || key.Provider != provider {
			pipeline.Cache().Flush()
			provider = key.Provider
		}

		cctx := logging.WithCandidate(ctx, key.Provider, key.Service, key.Version)
		var out *reconcile.Outcome
		switch step {
		case sync.StepUpdate:
			out = engine.Reconcile(cctx, key)
		case sync.StepValidate:
			out = engine.Validate(cctx, key)
		case sync.StepCheck:
			out = engine.Check(cctx, key)
		}
		result.Record(out)

		if out.Failed() && o.FailFast {
			return fmt.Errorf("stopping after %s failed: %w", key, out.Err)
		}
	}
	return nil
}

func (c *client) writeReports(result *sync.Result, o *sync.Options) error {
	if o.LedgerPath != "" {
		if err := result.WriteLedger(o.LedgerPath); err != nil {
			return fmt.Errorf("writing failure ledger: %w", err)
		}
	}
	if c.options.metricsPath != "" {
		if err := c.metrics.WriteTextfile(c.options.metricsPath); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func selectKeys(keys []registry.Key, o *sync.Options) []registry.Key {
	selected := keys[:0:0]
	for _, k := range keys {
		if o.Matches(k) {
			selected = append(selected, k)
		}
	}
	return selected
}
