// Package constants provides shared constants used throughout the harvester.
package constants

import "time"

// Timeouts
const (
	// FetchTimeout is the per-request deadline for network locators.
	// Retries happen by re-running the batch, never inside a run.
	FetchTimeout = 1 * time.Second

	// IdleConnTimeout bounds how long keep-alive connections stay pooled.
	IdleConnTimeout = 30 * time.Second

	// RunTimeout is the default upper bound for an entire CLI run.
	RunTimeout = 2 * time.Hour
)

// File permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0o755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0o644
)

// File names and defaults
const (
	// RegistryFile is the default durable metadata registry.
	RegistryFile = "metadata.yaml"

	// OutputDir is the default root of canonical document directories.
	OutputDir = "APIs"

	// LedgerFile is the default failure ledger written after a run.
	LedgerFile = "failures.yaml"

	// DefaultDriver is the provider driver recorded for newly added providers.
	DefaultDriver = "url"

	// DefaultVersion is assigned by lax validation when a document declares none.
	DefaultVersion = "1.0.0"
)

// Extension keys stamped into canonical documents.
const (
	ExtOrigin       = "x-origin"
	ExtProviderName = "x-providerName"
	ExtServiceName  = "x-serviceName"
	ExtPreferred    = "x-preferred"
)

// Scheduled updates
const (
	// UpdateInterval is the default period of scheduled update runs.
	UpdateInterval = 24 * time.Hour
)
