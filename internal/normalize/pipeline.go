// Package normalize turns a fetched source document into a canonical,
// validated document: external references are inlined, older formats are
// upgraded and the result is checked against a structural schema.
package normalize

import (
	"context"

	"github.com/agentstation/apicorpus/pkg/document"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/logging"
)

// Stage names a pipeline stage.
type Stage string

// Pipeline stages in execution order.
const (
	StageParse    Stage = "parse"
	StageResolve  Stage = "resolve"
	StageUpgrade  Stage = "upgrade"
	StageValidate Stage = "validate"
)

// Result is the outcome of normalizing one document.
type Result struct {
	Document       document.Document
	SourceFamily   document.Family
	SourceVersion  string
	Valid          bool
	PatchesApplied int
	Stage          Stage
	Error          error
	ErrorContext   string
}

// Patched reports whether the document only validated after lax patching.
func (r *Result) Patched() bool {
	return r.PatchesApplied > 0
}

// Pipeline runs parse, resolve, upgrade and validate in order.
type Pipeline struct {
	resolver  *Resolver
	validator *Validator
	strict    bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStrict disables lax patching.
func WithStrict(strict bool) Option {
	return func(p *Pipeline) {
		p.strict = strict
	}
}

// WithResolutionCache shares a resolution cache with the caller.
func WithResolutionCache(cache *ResolutionCache) Option {
	return func(p *Pipeline) {
		p.resolver.cache = cache
	}
}

// New creates a pipeline that fetches external references through retriever.
func New(retriever Retriever, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver:  NewResolver(retriever, nil),
		validator: NewValidator(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache returns the resolution cache used by the pipeline.
func (p *Pipeline) Cache() *ResolutionCache {
	return p.resolver.Cache()
}

// Normalize runs every stage over raw. It never returns a nil Result; a
// failure is reported through Result.Error together with the failing stage.
func (p *Pipeline) Normalize(ctx context.Context, raw []byte, locator string) *Result {
	logger := logging.FromContext(ctx)
	res := &Result{Stage: StageParse}

	doc, err := document.Parse(raw, locator)
	if err != nil {
		return res.fail(err)
	}
	res.SourceFamily, res.SourceVersion = doc.Family()

	res.Stage = StageResolve
	doc, err = p.resolver.Resolve(ctx, doc, locator)
	if err != nil {
		return res.fail(err)
	}

	if !p.strict {
		res.PatchesApplied += applyFixers(doc)
	}

	res.Stage = StageUpgrade
	doc, err = Upgrade(doc)
	if err != nil {
		return res.fail(err)
	}

	res.Stage = StageValidate
	if !p.strict {
		res.PatchesApplied += applyFixers(doc)
	}
	if err := p.validator.Validate(doc); err != nil {
		return res.fail(err)
	}

	res.Document = doc
	res.Valid = true
	if res.PatchesApplied > 0 {
		logger.Debug().
			Str("locator", locator).
			Int("patches", res.PatchesApplied).
			Msg("document validated after patching")
	}
	return res
}

func (r *Result) fail(err error) *Result {
	r.Error = err
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		r.ErrorContext = ve.Context
	}
	return r
}
