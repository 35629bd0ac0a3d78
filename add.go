package apicorpus

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentstation/apicorpus/internal/normalize"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/logging"
	"github.com/agentstation/apicorpus/pkg/reconcile"
	"github.com/agentstation/apicorpus/pkg/sync"
)

// Compile-time interface check to ensure proper implementation.
var _ Adder = (*client)(nil)

// Adder starts tracking new candidates.
type Adder interface {
	// Add fetches source, normalizes it and registers it under the version
	// the document declares. The outcome reports a failed add; the error is
	// reserved for registry persistence failures.
	Add(ctx context.Context, req reconcile.AddRequest, opts ...sync.Option) (*reconcile.Outcome, error)
}

// Add registers a new candidate.
func (c *client) Add(ctx context.Context, req reconcile.AddRequest, opts ...sync.Option) (*reconcile.Outcome, error) {
	if req.Source == "" || req.Provider == "" {
		return nil, &errors.ValidationError{
			Field:   "source",
			Message: "source and provider are required",
		}
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
	ctx = logging.WithRun(ctx, uuid.NewString())
	ctx = logging.WithCandidate(ctx, req.Provider, req.Service, "")

	reg := c.current()
	pipeline := normalize.New(c.fetcher, normalize.WithStrict(o.Strict))
	engine, err := reconcile.New(reg, c.store, c.fetcher, pipeline,
		reconcile.WithClock(c.options.clock),
		reconcile.WithDryRun(o.DryRun),
		reconcile.WithObserver(observers{c.metrics.Observer("add"), c.hooks}),
	)
	if err != nil {
		return nil, err
	}

	out := engine.Add(ctx, req)
	if out.Failed() || o.DryRun {
		return out, nil
	}
	if err := reg.Save(c.options.registryPath); err != nil {
		return out, fmt.Errorf("saving registry: %w", err)
	}
	return out, nil
}
