package apicorpus

import (
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/apicorpus/internal/fetch"
	"github.com/agentstation/apicorpus/pkg/constants"
	"github.com/agentstation/apicorpus/pkg/errors"
)

// options holds the client configuration.
type options struct {
	registryPath string
	outputDir    string
	fetchTimeout time.Duration
	userAgent    string
	fetcher      *fetch.Fetcher
	metricsPath  string
	clock        func() utc.Time

	autoUpdatesEnabled bool
	autoUpdateInterval time.Duration
}

func defaults() *options {
	return &options{
		registryPath:       constants.RegistryFile,
		outputDir:          constants.OutputDir,
		fetchTimeout:       constants.FetchTimeout,
		userAgent:          "apicorpus",
		clock:              utc.Now,
		autoUpdateInterval: constants.UpdateInterval,
	}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// Option is a function that configures a Client.
type Option func(*options) error

// WithRegistryPath sets the durable registry file.
func WithRegistryPath(path string) Option {
	return func(o *options) error {
		if path == "" {
			return &errors.ValidationError{Field: "registryPath", Message: "registry path must not be empty"}
		}
		o.registryPath = path
		return nil
	}
}

// WithOutputDir sets the root of the canonical document tree.
func WithOutputDir(dir string) Option {
	return func(o *options) error {
		if dir == "" {
			return &errors.ValidationError{Field: "outputDir", Message: "output directory must not be empty"}
		}
		o.outputDir = dir
		return nil
	}
}

// WithFetchTimeout sets the per-request deadline for network locators.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return &errors.ValidationError{Field: "fetchTimeout", Value: d, Message: "fetch timeout must be positive"}
		}
		o.fetchTimeout = d
		return nil
	}
}

// WithUserAgent sets the User-Agent sent with network fetches.
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		o.userAgent = ua
		return nil
	}
}

// WithFetcher replaces the document fetcher. Fetch timeout and user agent
// options are ignored when a fetcher is supplied.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(o *options) error {
		o.fetcher = f
		return nil
	}
}

// WithMetricsFile writes Prometheus metrics to path after every run.
func WithMetricsFile(path string) Option {
	return func(o *options) error {
		o.metricsPath = path
		return nil
	}
}

// WithClock overrides the time source for candidate timestamps.
func WithClock(now func() utc.Time) Option {
	return func(o *options) error {
		if now == nil {
			return &errors.ValidationError{Field: "clock", Message: "clock must not be nil"}
		}
		o.clock = now
		return nil
	}
}

// WithAutoUpdates configures whether scheduled update runs start with the client.
func WithAutoUpdates(enabled bool) Option {
	return func(o *options) error {
		o.autoUpdatesEnabled = enabled
		return nil
	}
}

// WithAutoUpdateInterval configures how often scheduled update runs happen.
func WithAutoUpdateInterval(interval time.Duration) Option {
	return func(o *options) error {
		o.autoUpdateInterval = interval
		return nil
	}
}
