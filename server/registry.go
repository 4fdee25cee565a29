package server

import (
	"sync"

	"dauction/engine"
)

// marketHandle pairs a market with the mutex that serializes access to
// it. The engine is single-writer by design; the handle is what lets many
// HTTP requests share one instance safely.
type marketHandle struct {
	mu     sync.Mutex
	market *engine.Market
	buyers map[engine.AgentID]struct{}
}

// isBuyer reads the fixed buyer set, which never changes after
// construction, so no lock is needed.
func (h *marketHandle) isBuyer(id engine.AgentID) bool {
	_, ok := h.buyers[id]
	return ok
}

// registry is the server's id-keyed set of live markets.
type registry struct {
	mu      sync.RWMutex
	markets map[string]*marketHandle
}

func newRegistry() *registry {
	return &registry{markets: make(map[string]*marketHandle)}
}

func (r *registry) add(id string, m *engine.Market) *marketHandle {
	buyers := make(map[engine.AgentID]struct{})
	for _, b := range m.Buyers() {
		buyers[b] = struct{}{}
	}
	handle := &marketHandle{market: m, buyers: buyers}

	r.mu.Lock()
	r.markets[id] = handle
	r.mu.Unlock()
	return handle
}

func (r *registry) get(id string) (*marketHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.markets[id]
	return handle, ok
}
