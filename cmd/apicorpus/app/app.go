// Package app wires configuration, logging and the apicorpus client into the
// CLI commands.
package app

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/apicorpus"
	"github.com/agentstation/apicorpus/pkg/errors"
)

// App holds the CLI's configuration, logger and lazily created client.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	out    io.Writer

	mu     sync.RWMutex
	client apicorpus.Client
}

// New creates an App with configuration loaded from the environment,
// .env files and the config file.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Client returns the apicorpus client, creating it on first use. Creating
// the client loads the registry, so a broken registry file surfaces here.
func (a *App) Client() (apicorpus.Client, error) {
	a.mu.RLock()
	if a.client != nil {
		c := a.client
		a.mu.RUnlock()
		return c, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	c, err := apicorpus.New(a.clientOptions()...)
	if err != nil {
		return nil, errors.WrapResource("create", "client", a.config.Registry, err)
	}
	a.client = c
	return c, nil
}

// Shutdown stops scheduled updates if a client was created.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.RLock()
	c := a.client
	a.mu.RUnlock()

	if c != nil {
		if err := c.AutoUpdatesOff(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to stop scheduled updates during shutdown")
			return err
		}
	}
	return nil
}

func (a *App) clientOptions() []apicorpus.Option {
	opts := []apicorpus.Option{
		apicorpus.WithRegistryPath(a.config.Registry),
		apicorpus.WithOutputDir(a.config.OutputDir),
		apicorpus.WithUserAgent("apicorpus/" + a.version),
	}
	if a.config.FetchTimeout > 0 {
		opts = append(opts, apicorpus.WithFetchTimeout(a.config.FetchTimeout))
	}
	if a.config.MetricsFile != "" {
		opts = append(opts, apicorpus.WithMetricsFile(a.config.MetricsFile))
	}
	if a.config.UpdateInterval > 0 {
		opts = append(opts, apicorpus.WithAutoUpdateInterval(a.config.UpdateInterval))
	}
	return opts
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithClient sets a custom client (useful for testing).
func WithClient(c apicorpus.Client) Option {
	return func(a *App) error {
		a.client = c
		return nil
	}
}

// WithOutput redirects command output, which defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}
