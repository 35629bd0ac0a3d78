package apicorpus

import (
	"github.com/agentstation/apicorpus/pkg/registry"
)

// Compile-time interface checks.
var (
	_ Persistence = (*client)(nil)
	_ Candidates  = (*client)(nil)
)

// Persistence handles the durable registry file.
type Persistence interface {
	// Save writes the registry to its file
	Save() error

	// Reload replaces the in-memory registry with the file contents
	Reload() error
}

// Candidates provides read access to tracked candidates.
type Candidates interface {
	// Keys returns every tracked key in provider, service, version order
	Keys() []registry.Key

	// Candidate returns a copy of one tracked candidate
	Candidate(key registry.Key) (registry.Candidate, bool)

	// Snapshot returns a deep copy of the whole registry tree
	Snapshot() map[string]registry.Provider
}

// Save writes the registry to its file.
func (c *client) Save() error {
	return c.current().Save(c.options.registryPath)
}

// Reload replaces the in-memory registry with the file contents.
func (c *client) Reload() error {
	reg, err := registry.Load(c.options.registryPath)
	if err != nil {
		return err
	}
	c.runMu.Lock()
	defer c.runMu.Unlock()
	c.regMu.Lock()
	c.registry = reg
	c.regMu.Unlock()
	return nil
}

// Keys returns every tracked key.
func (c *client) Keys() []registry.Key {
	return c.current().Keys()
}

// Candidate returns a copy of one tracked candidate.
func (c *client) Candidate(key registry.Key) (registry.Candidate, bool) {
	return c.current().Get(key)
}

// Snapshot returns a deep copy of the registry tree.
func (c *client) Snapshot() map[string]registry.Provider {
	return c.current().Snapshot()
}
