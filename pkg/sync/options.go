// Package sync provides options and results for running a pipeline step
// over the tracked candidates.
package sync

import (
	"fmt"
	"time"

	"github.com/agentstation/apicorpus/internal/matcher"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/registry"
)

// Step names a pipeline step the orchestrator can run.
type Step string

// Steps.
const (
	StepUpdate   Step = "update"
	StepValidate Step = "validate"
	StepCheck    Step = "check"
)

// ParseStep returns the step with the given name.
func ParseStep(name string) (Step, error) {
	switch s := Step(name); s {
	case StepUpdate, StepValidate, StepCheck:
		return s, nil
	default:
		return "", &errors.ValidationError{
			Field:   "step",
			Value:   name,
			Message: fmt.Sprintf("unknown step %q", name),
		}
	}
}

// Options controls a single run.
type Options struct {
	// Candidate selection
	Provider string // Only candidates of this provider (empty means all)
	Service  string // Only candidates of this service; requires Provider

	// Orchestration control
	FailFast bool          // Stop at the first failed candidate
	DryRun   bool          // Compute outcomes without writing files or the registry
	Timeout  time.Duration // Upper bound for the whole run (0 means none)

	// Pipeline behavior
	ForceRefresh bool // Bypass the fetch revalidation cache
	Strict       bool // Disable lax patching during validation

	// Output
	LedgerPath string // Where to write the failure ledger (empty means none)

	// compiled by Validate
	providerMatcher matcher.Matcher
	serviceMatcher  matcher.Matcher
}

// Option is a function that configures Options.
type Option func(*Options)

// Defaults returns the default run options.
func Defaults() *Options {
	return &Options{}
}

// Apply applies the given options.
func (o *Options) Apply(opts ...Option) *Options {
	for _, opt := range opts {
		opt(o)
	}
	o.providerMatcher, o.serviceMatcher = nil, nil
	return o
}

// Validate checks that the options are consistent.
func (o *Options) Validate() error {
	if o.Timeout < 0 {
		return &errors.ValidationError{
			Field:   "Timeout",
			Value:   o.Timeout,
			Message: "timeout must be non-negative",
		}
	}
	if o.Service != "" && o.Provider == "" {
		return &errors.ValidationError{
			Field:   "Service",
			Value:   o.Service,
			Message: "service filter requires a provider filter",
		}
	}

	var err error
	if o.Provider != "" {
		if o.providerMatcher, err = matcher.New(matcher.Auto, o.Provider); err != nil {
			return &errors.ValidationError{Field: "Provider", Value: o.Provider, Message: "invalid provider pattern", Err: err}
		}
	}
	if o.Service != "" {
		if o.serviceMatcher, err = matcher.New(matcher.Auto, o.Service); err != nil {
			return &errors.ValidationError{Field: "Service", Value: o.Service, Message: "invalid service pattern", Err: err}
		}
	}
	return nil
}

// Matches reports whether a key passes the provider and service filters.
// After Validate the filters are glob or regex patterns; before it they
// compare exactly.
func (o *Options) Matches(k registry.Key) bool {
	return match(o.providerMatcher, o.Provider, k.Provider) &&
		match(o.serviceMatcher, o.Service, k.Service)
}

func match(m matcher.Matcher, filter, value string) bool {
	switch {
	case filter == "":
		return true
	case m != nil:
		return m.Match(value)
	default:
		return filter == value
	}
}

// WithProvider limits the run to one provider.
func WithProvider(provider string) Option {
	return func(opts *Options) {
		opts.Provider = provider
	}
}

// WithService limits the run to one service of the provider.
func WithService(service string) Option {
	return func(opts *Options) {
		opts.Service = service
	}
}

// WithFailFast configures fail-fast behavior.
func WithFailFast(failFast bool) Option {
	return func(opts *Options) {
		opts.FailFast = failFast
	}
}

// WithDryRun configures dry run mode.
func WithDryRun(dryRun bool) Option {
	return func(opts *Options) {
		opts.DryRun = dryRun
	}
}

// WithTimeout sets the timeout for the entire run.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = timeout
	}
}

// WithForceRefresh bypasses the fetch revalidation cache.
func WithForceRefresh(force bool) Option {
	return func(opts *Options) {
		opts.ForceRefresh = force
	}
}

// WithStrict disables lax patching.
func WithStrict(strict bool) Option {
	return func(opts *Options) {
		opts.Strict = strict
	}
}

// WithLedger sets the failure ledger path.
func WithLedger(path string) Option {
	return func(opts *Options) {
		opts.LedgerPath = path
	}
}
