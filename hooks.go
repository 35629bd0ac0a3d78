package apicorpus

import (
	"sync"

	"github.com/agentstation/apicorpus/pkg/reconcile"
)

// Compile-time interface checks.
var (
	_ Hooks              = (*client)(nil)
	_ reconcile.Observer = (*hooks)(nil)
)

// CandidateHook is called with the outcome of a candidate event.
type CandidateHook func(o *reconcile.Outcome)

// Hooks registers callbacks for candidate events.
type Hooks interface {
	// OnCandidateChanged registers a callback for content changes
	OnCandidateChanged(fn CandidateHook)

	// OnCandidateMoved registers a callback for version relocations
	OnCandidateMoved(fn CandidateHook)

	// OnCandidatePurged registers a callback for purged candidates
	OnCandidatePurged(fn CandidateHook)

	// OnCandidateFailed registers a callback for failed candidates
	OnCandidateFailed(fn CandidateHook)
}

// hooks manages event callbacks for candidate outcomes.
type hooks struct {
	mu        sync.RWMutex
	onChanged []CandidateHook
	onMoved   []CandidateHook
	onPurged  []CandidateHook
	onFailed  []CandidateHook
}

func newHooks() *hooks {
	return &hooks{}
}

func (h *hooks) register(list *[]CandidateHook, fn CandidateHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*list = append(*list, fn)
}

// Observe dispatches an outcome to the matching hooks.
func (h *hooks) Observe(o *reconcile.Outcome) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var fire []CandidateHook
	switch {
	case o.Failed():
		fire = h.onFailed
	case o.Purged():
		fire = h.onPurged
	default:
		if o.Moved {
			fire = append(fire, h.onMoved...)
		}
		if o.Changed {
			fire = append(fire, h.onChanged...)
		}
	}
	for _, fn := range fire {
		fn(o)
	}
}

// OnCandidateChanged registers a callback for content changes.
func (c *client) OnCandidateChanged(fn CandidateHook) {
	c.hooks.register(&c.hooks.onChanged, fn)
}

// OnCandidateMoved registers a callback for version relocations.
func (c *client) OnCandidateMoved(fn CandidateHook) {
	c.hooks.register(&c.hooks.onMoved, fn)
}

// OnCandidatePurged registers a callback for purged candidates.
func (c *client) OnCandidatePurged(fn CandidateHook) {
	c.hooks.register(&c.hooks.onPurged, fn)
}

// OnCandidateFailed registers a callback for failed candidates.
func (c *client) OnCandidateFailed(fn CandidateHook) {
	c.hooks.register(&c.hooks.onFailed, fn)
}

// observers fans one outcome out to several observers.
type observers []reconcile.Observer

func (os observers) Observe(o *reconcile.Outcome) {
	for _, obs := range os {
		obs.Observe(o)
	}
}
