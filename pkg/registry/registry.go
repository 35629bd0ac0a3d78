// Package registry holds the durable provider → service → version metadata
// tree. The tree is copy-on-write: every mutation builds a new tree and
// publishes it in one step, so readers never observe a half-applied change
// such as a renamed version present under both keys.
package registry

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/agentstation/apicorpus/pkg/errors"
)

type tree map[string]Provider

// Registry is the in-memory metadata registry.
type Registry struct {
	mu   sync.RWMutex
	tree tree
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tree: make(tree)}
}

func (r *Registry) current() tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree
}

// mutate applies fn to a copy of the top-level tree and publishes it only if fn succeeds.
func (r *Registry) mutate(fn func(next tree) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(r.tree)
	if next == nil {
		next = make(tree)
	}
	if err := fn(next); err != nil {
		return err
	}
	r.tree = next
	return nil
}

// Get returns a copy of the candidate stored under k.
func (r *Registry) Get(k Key) (Candidate, bool) {
	c, ok := r.current()[k.Provider].Services[k.Service][k.Version]
	if !ok {
		return Candidate{}, false
	}
	return c.Clone(), true
}

// Has reports whether k is present.
func (r *Registry) Has(k Key) bool {
	_, ok := r.current()[k.Provider].Services[k.Service][k.Version]
	return ok
}

// Insert adds a new candidate. It fails if the key is already taken.
func (r *Registry) Insert(k Key, c Candidate) error {
	return r.mutate(func(next tree) error {
		if _, ok := next[k.Provider].Services[k.Service][k.Version]; ok {
			return errors.WrapResource("insert", "candidate", k.String(), errors.ErrAlreadyExists)
		}
		p, versions := next[k.Provider].shallow(k.Service)
		versions[k.Version] = c.Clone()
		next[k.Provider] = p
		return nil
	})
}

// Put inserts or replaces the candidate stored under k.
func (r *Registry) Put(k Key, c Candidate) {
	_ = r.mutate(func(next tree) error {
		p, versions := next[k.Provider].shallow(k.Service)
		versions[k.Version] = c.Clone()
		next[k.Provider] = p
		return nil
	})
}

// Delete removes k, pruning empty services and providers. It reports whether k existed.
func (r *Registry) Delete(k Key) bool {
	err := r.mutate(func(next tree) error {
		if _, ok := next[k.Provider].Services[k.Service][k.Version]; !ok {
			return errors.NewNotFoundError("candidate", k.String())
		}
		p, versions := next[k.Provider].shallow(k.Service)
		delete(versions, k.Version)
		next.store(k.Provider, p, k.Service)
		return nil
	})
	return err == nil
}

// Rename moves the candidate at from to to, storing c under the new key.
// The old key disappears and the new key appears in the same published tree.
func (r *Registry) Rename(from, to Key, c Candidate) error {
	if from == to {
		return r.mutate(func(next tree) error {
			if _, ok := next[from.Provider].Services[from.Service][from.Version]; !ok {
				return errors.NewNotFoundError("candidate", from.String())
			}
			p, versions := next[from.Provider].shallow(from.Service)
			versions[from.Version] = c.Clone()
			next[from.Provider] = p
			return nil
		})
	}

	return r.mutate(func(next tree) error {
		if _, ok := next[from.Provider].Services[from.Service][from.Version]; !ok {
			return errors.NewNotFoundError("candidate", from.String())
		}
		if _, ok := next[to.Provider].Services[to.Service][to.Version]; ok {
			return errors.WrapResource("rename", "candidate", to.String(), errors.ErrAlreadyExists)
		}

		p, versions := next[from.Provider].shallow(from.Service)
		delete(versions, from.Version)
		next.store(from.Provider, p, from.Service)

		q, target := next[to.Provider].shallow(to.Service)
		if q.Driver == "" {
			q.Driver = p.Driver
		}
		target[to.Version] = c.Clone()
		next[to.Provider] = q
		return nil
	})
}

// store publishes p into the tree, dropping the service or provider when empty.
func (t tree) store(provider string, p Provider, service string) {
	if len(p.Services[service]) == 0 {
		delete(p.Services, service)
	}
	if len(p.Services) == 0 {
		delete(t, provider)
		return
	}
	t[provider] = p
}

// SetDriver records the driver kind of a provider, creating the provider if needed.
func (r *Registry) SetDriver(provider, driver string) {
	_ = r.mutate(func(next tree) error {
		p := next[provider]
		next[provider] = Provider{Driver: driver, Services: maps.Clone(p.Services)}
		if next[provider].Services == nil {
			next[provider] = Provider{Driver: driver, Services: make(map[string]map[string]Candidate)}
		}
		return nil
	})
}

// Driver returns the driver kind recorded for a provider.
func (r *Registry) Driver(provider string) string {
	return r.current()[provider].Driver
}

// Keys returns every key ordered by provider, service and version.
func (r *Registry) Keys() []Key {
	t := r.current()
	var keys []Key
	for provider, p := range t {
		for service, versions := range p.Services {
			for version := range versions {
				keys = append(keys, Key{Provider: provider, Service: service, Version: version})
			}
		}
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(
			cmp.Compare(a.Provider, b.Provider),
			cmp.Compare(a.Service, b.Service),
			cmp.Compare(a.Version, b.Version),
		)
	})
	return keys
}

// Providers returns provider names in sorted order.
func (r *Registry) Providers() []string {
	return slices.Sorted(maps.Keys(r.current()))
}

// Len returns the number of candidates.
func (r *Registry) Len() int {
	n := 0
	for _, p := range r.current() {
		for _, versions := range p.Services {
			n += len(versions)
		}
	}
	return n
}

// Snapshot returns a deep copy of the whole tree.
func (r *Registry) Snapshot() map[string]Provider {
	t := r.current()
	out := make(map[string]Provider, len(t))
	for name, p := range t {
		out[name] = p.clone()
	}
	return out
}
