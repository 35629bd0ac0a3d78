// Package apicorpus keeps a corpus of API descriptions in sync with their
// upstream sources.
//
// A Client owns the metadata registry and the canonical document tree. Each
// run walks the tracked candidates one at a time, grouped by provider, and
// fetches, normalizes and persists them. A failing candidate is recorded in
// the run result and never stops the batch unless fail-fast is requested.
//
// Example usage:
//
//	client, err := apicorpus.New(
//	    apicorpus.WithRegistryPath("metadata.yaml"),
//	    apicorpus.WithOutputDir("APIs"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.AutoUpdatesOff()
//
//	client.OnCandidateMoved(func(o *reconcile.Outcome) {
//	    log.Printf("%s moved to %s", o.From, o.Key)
//	})
//
//	result, err := client.Run(ctx, sync.StepUpdate, sync.WithProvider("example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Summary())
package apicorpus

import (
	gosync "sync"
	"time"

	"github.com/agentstation/apicorpus/internal/fetch"
	"github.com/agentstation/apicorpus/internal/metrics"
	"github.com/agentstation/apicorpus/internal/persistence"
	"github.com/agentstation/apicorpus/pkg/registry"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// Client manages a candidate registry with scheduled updates and event hooks.
type Client interface {

	// Candidates provides read access to the registry
	Candidates

	// Runner executes update, validate and check runs
	Runner

	// Adder starts tracking new candidates
	Adder

	// Persistence saves and reloads the registry file
	Persistence

	// AutoUpdater controls scheduled update runs
	AutoUpdater

	// Hooks registers candidate event callbacks
	Hooks
}

// client is the internal implementation of the Client interface.
type client struct {
	// runMu serializes runs so scheduled and manual runs never interleave.
	runMu    gosync.Mutex
	regMu    gosync.RWMutex
	options  *options
	registry *registry.Registry
	store    *persistence.Store
	fetcher  *fetch.Fetcher
	metrics  *metrics.Metrics

	updateTicker *time.Ticker
	updateCancel func()
	updateDone   chan struct{}
	stopCh       chan struct{}

	hooks *hooks
}

// New creates a client. The registry file is loaded eagerly; a registry that
// exists but cannot be read is fatal.
func New(opts ...Option) (Client, error) {
	o := defaults()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}

	reg, err := registry.Load(o.registryPath)
	if err != nil {
		return nil, err
	}

	m, err := metrics.New()
	if err != nil {
		return nil, err
	}

	f := o.fetcher
	if f == nil {
		f = fetch.New(
			fetch.WithTimeout(o.fetchTimeout),
			fetch.WithUserAgent(o.userAgent),
		)
	}

	c := &client{
		options:  o,
		registry: reg,
		store:    persistence.New(o.outputDir),
		fetcher:  f,
		metrics:  m,
		stopCh:   make(chan struct{}),
		hooks:    newHooks(),
	}

	if o.autoUpdatesEnabled {
		if err := c.AutoUpdatesOn(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *client) current() *registry.Registry {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	return c.registry
}
