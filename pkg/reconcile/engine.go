// Package reconcile drives one candidate at a time through fetch,
// normalization, relocation and persistence, and records the outcome in the
// metadata registry.
package reconcile

import (
	"context"
	"time"

	"github.com/agentstation/utc"
	"github.com/rs/zerolog"

	"github.com/agentstation/apicorpus/internal/normalize"
	"github.com/agentstation/apicorpus/internal/persistence"
	"github.com/agentstation/apicorpus/internal/utils/ptr"
	"github.com/agentstation/apicorpus/pkg/constants"
	"github.com/agentstation/apicorpus/pkg/document"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/logging"
	"github.com/agentstation/apicorpus/pkg/registry"
)

// Observer receives every finished outcome.
type Observer interface {
	Observe(o *Outcome)
}

// Engine reconciles candidates against a registry and a canonical file store.
type Engine struct {
	registry *registry.Registry
	store    *persistence.Store
	fetcher  normalize.Retriever
	pipeline *normalize.Pipeline
	now      func() utc.Time
	dryRun   bool
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine) error

// WithClock overrides the time source used for Added and Updated.
func WithClock(now func() utc.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return errors.NewConfigError("reconcile", "clock must not be nil", nil)
		}
		e.now = now
		return nil
	}
}

// WithDryRun computes outcomes without touching the registry or the file store.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) error {
		e.dryRun = dryRun
		return nil
	}
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) error {
		e.observer = o
		return nil
	}
}

// New creates an engine.
func New(reg *registry.Registry, store *persistence.Store, fetcher normalize.Retriever, pipeline *normalize.Pipeline, opts ...Option) (*Engine, error) {
	if reg == nil || store == nil || fetcher == nil || pipeline == nil {
		return nil, errors.NewConfigError("reconcile", "registry, store, fetcher and pipeline are required", nil)
	}
	e := &Engine{
		registry: reg,
		store:    store,
		fetcher:  fetcher,
		pipeline: pipeline,
		now:      utc.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Registry returns the registry the engine writes to.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// AddRequest describes a candidate that is not tracked yet.
type AddRequest struct {
	Source    string
	Provider  string
	Service   string
	Preferred bool
	Patch     map[string]any
}

// Reconcile runs the full update path for a tracked candidate.
func (e *Engine) Reconcile(ctx context.Context, key registry.Key) *Outcome {
	out, done := e.begin(ctx, key)
	defer done()

	c, ok := e.registry.Get(key)
	if !ok {
		return out.fail(errors.NewNotFoundError("candidate", key.String()), "")
	}
	out.Source = c.Source

	if c.Filename != "" && !e.store.Exists(c.Filename) {
		return e.purge(ctx, out, key, errors.WrapIO("stat", c.Filename, errors.ErrSourceMissing))
	}

	doc, res, ok := e.fetchAndNormalize(ctx, out, key, &c, true)
	if !ok {
		return out
	}

	e.canonicalize(doc, key, &c, res)
	return e.commit(ctx, out, key, c, doc, false)
}

// Add creates a new candidate from a source locator.
func (e *Engine) Add(ctx context.Context, req AddRequest) *Outcome {
	key := registry.Key{Provider: req.Provider, Service: req.Service}
	out, done := e.begin(ctx, key)
	defer done()
	out.Source = req.Source

	if req.Provider == "" || req.Source == "" {
		return out.fail(errors.NewValidationError("provider", req.Provider, "provider and source are required"), "")
	}

	c := registry.Candidate{
		Source:    req.Source,
		Preferred: req.Preferred,
		Patch:     req.Patch,
	}
	doc, res, ok := e.fetchAndNormalize(ctx, out, key, &c, false)
	if !ok {
		return out
	}

	e.canonicalize(doc, key, &c, res)
	key.Version = doc.Version()
	out.Key = key
	if e.registry.Has(key) {
		return out.fail(errors.WrapResource("add", "candidate", key.String(), errors.ErrAlreadyExists), "")
	}
	return e.commit(ctx, out, key, c, doc, true)
}

// Validate fetches and normalizes a tracked candidate without changing anything.
func (e *Engine) Validate(ctx context.Context, key registry.Key) *Outcome {
	out, done := e.begin(ctx, key)
	defer done()

	c, ok := e.registry.Get(key)
	if !ok {
		return out.fail(errors.NewNotFoundError("candidate", key.String()), "")
	}
	out.Source = c.Source

	doc, _, ok := e.fetchAndNormalize(ctx, out, key, &c, false)
	if !ok {
		return out
	}
	out.Endpoints = doc.EndpointCount()
	return out
}

// Check purges a tracked candidate whose canonical file no longer exists.
func (e *Engine) Check(ctx context.Context, key registry.Key) *Outcome {
	out, done := e.begin(ctx, key)
	defer done()

	c, ok := e.registry.Get(key)
	if !ok {
		return out.fail(errors.NewNotFoundError("candidate", key.String()), "")
	}
	out.Source = c.Source
	if c.Filename == "" || !e.store.Exists(c.Filename) {
		return e.purge(ctx, out, key, errors.WrapIO("stat", c.Filename, errors.ErrSourceMissing))
	}
	out.Fingerprint = c.Fingerprint
	out.Endpoints = c.Endpoints
	out.advance(StateUnchanged)
	return out
}

func (e *Engine) begin(ctx context.Context, key registry.Key) (*Outcome, func()) {
	start := time.Now()
	out := &Outcome{Key: key}
	return out, func() {
		out.Duration = time.Since(start)
		logOutcome(logging.FromContext(ctx), out)
		if e.observer != nil {
			e.observer.Observe(out)
		}
	}
}

// fetchAndNormalize runs the fetch and normalize stages, recording the fetch
// status on c. When record is set a failure still persists the status.
func (e *Engine) fetchAndNormalize(ctx context.Context, out *Outcome, key registry.Key, c *registry.Candidate, record bool) (document.Document, *normalize.Result, bool) {
	resp, err := e.fetcher.Retrieve(ctx, c.Source)
	if resp != nil {
		c.Status = ptr.To(resp.Status)
		c.MediaType = resp.MediaType
		out.Status = resp.Status
	}
	if err != nil || resp == nil || !resp.OK {
		if err == nil {
			err = errors.NewFetchError(c.Source, out.Status, "retrieval failed")
		}
		if Classify(err) == KindFilesystem {
			if record {
				e.purge(ctx, out, key, err)
				return nil, nil, false
			}
			out.fail(err, "")
			return nil, nil, false
		}
		if record && resp != nil {
			e.recordStatus(key, *c)
		}
		out.fail(err, "")
		return nil, nil, false
	}
	out.advance(StateFetched)

	res := e.pipeline.Normalize(ctx, resp.Content, c.Source)
	if !res.Valid {
		if record {
			e.recordStatus(key, *c)
		}
		out.fail(res.Error, res.ErrorContext)
		return nil, nil, false
	}
	out.advance(StateValidated)
	out.Patched = res.Patched()
	return res.Document, res, true
}

// recordStatus stores only the fetch status and media type of a failed candidate.
func (e *Engine) recordStatus(key registry.Key, c registry.Candidate) {
	if e.dryRun {
		return
	}
	stored, ok := e.registry.Get(key)
	if !ok {
		return
	}
	stored.Status = c.Status
	stored.MediaType = c.MediaType
	e.registry.Put(key, stored)
}

// canonicalize applies the patch overlay, extends the origin history and
// stamps identity onto doc. c is updated to match.
func (e *Engine) canonicalize(doc document.Document, key registry.Key, c *registry.Candidate, res *normalize.Result) {
	if len(c.Patch) > 0 {
		doc.Merge(c.Patch)
	}

	origin := registry.Origin{URL: c.Source, Format: string(res.SourceFamily), Version: res.SourceVersion}
	if last, ok := c.LastOrigin(); !ok || last != origin {
		c.History = append(c.History, origin)
	}

	info := doc.Info()
	history := make([]any, len(c.History))
	for i, o := range c.History {
		entry := map[string]any{"url": o.URL}
		if o.Format != "" {
			entry["format"] = o.Format
		}
		if o.Version != "" {
			entry["version"] = o.Version
		}
		history[i] = entry
	}
	info[constants.ExtOrigin] = history
	info[constants.ExtProviderName] = key.Provider
	if key.Service != "" {
		info[constants.ExtServiceName] = key.Service
	}
	info[constants.ExtPreferred] = c.Preferred

	c.Format = res.SourceFamily
	c.FormatVersion = res.SourceVersion
	c.AutoUpgraded = res.Patched()
}

// commit performs the version check, fingerprint check and persistence.
func (e *Engine) commit(ctx context.Context, out *Outcome, key registry.Key, c registry.Candidate, doc document.Document, isNew bool) *Outcome {
	endpoints := doc.EndpointCount()
	if endpoints == 0 {
		err := &errors.ValidationError{Field: "paths", Message: "document exposes no endpoints", Err: errors.ErrNoEndpoints}
		if isNew {
			return out.fail(err, "")
		}
		return e.purge(ctx, out, key, err)
	}

	fingerprint, err := doc.Fingerprint()
	if err != nil {
		return out.fail(errors.WrapParse("json", key.String(), err), "")
	}

	target := key
	target.Version = doc.Version()
	if _, err := persistence.RelDir(target); err != nil {
		return out.fail(err, "/info/version")
	}
	moved := !isNew && target != key
	if moved {
		if e.registry.Has(target) {
			return e.purge(ctx, out, key, errors.WrapIO("move", target.String(), errors.ErrAlreadyExists))
		}
		out.From = key
		out.Key = target
		out.Moved = true
		out.advance(StateVersionMoved)
	}

	now := e.now()
	if isNew {
		c.Added = now
	}
	if fingerprint != c.Fingerprint {
		c.Updated = now
		out.Changed = true
		if !moved {
			out.advance(StateContentChanged)
		}
	} else if !moved {
		out.advance(StateUnchanged)
	}
	c.Fingerprint = fingerprint
	c.Endpoints = endpoints
	out.Fingerprint = fingerprint
	out.Endpoints = endpoints

	if e.dryRun {
		out.advance(StatePersisted)
		return out
	}

	if moved {
		if err := e.store.Move(key, target); err != nil {
			return e.purge(ctx, out, key, err)
		}
	}
	filename, err := e.store.Write(target, doc)
	if err != nil {
		if moved {
			_ = e.store.Move(target, key)
		}
		return out.fail(err, "")
	}
	c.Filename = filename

	switch {
	case isNew:
		if e.registry.Driver(target.Provider) == "" {
			e.registry.SetDriver(target.Provider, constants.DefaultDriver)
		}
		if err := e.registry.Insert(target, c); err != nil {
			_ = e.store.Remove(target)
			return out.fail(err, "")
		}
	case moved:
		if err := e.registry.Rename(key, target, c); err != nil {
			return e.purge(ctx, out, key, err)
		}
	default:
		e.registry.Put(target, c)
	}

	out.advance(StatePersisted)
	return out
}

// purge removes a candidate from the registry and the file store.
func (e *Engine) purge(ctx context.Context, out *Outcome, key registry.Key, cause error) *Outcome {
	out.Err = cause
	out.Kind = Classify(cause)
	out.Key = key
	out.From = registry.Key{}
	out.Moved = false
	out.Changed = false
	out.advance(StatePurged)
	if e.dryRun {
		return out
	}

	e.registry.Delete(key)
	if err := e.store.Remove(key); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("key", key.String()).Msg("removing purged candidate files")
	}
	return out
}

func logOutcome(logger *zerolog.Logger, o *Outcome) {
	var event *zerolog.Event
	switch o.State {
	case StateFailed:
		event = logger.Warn().Err(o.Err).Str("kind", string(o.Kind))
		if o.ErrorContext != "" {
			event = event.Str("context", o.ErrorContext)
		}
	case StatePurged:
		event = logger.Info().Err(o.Err)
	default:
		event = logger.Debug()
	}
	event.
		Str("key", o.Key.String()).
		Str("state", string(o.State)).
		Bool("changed", o.Changed).
		Bool("moved", o.Moved).
		Dur("duration", o.Duration).
		Msg("candidate processed")
}
