package session

import (
	"sort"
	"sync"
)

// Registry maps tenant identifiers to session state. It is the single
// authority for tenant existence: entries are created lazily on first
// reference and removed only by an explicit logout or delete.
//
// A State is fully constructed before it becomes visible; readers never
// observe a half-built entry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*State),
	}
}

// GetOrCreate returns the tenant's session state, creating a fresh entry if
// absent. The boolean reports whether a new entry was created.
func (r *Registry) GetOrCreate(tenantID string) (*State, bool) {
	r.mu.RLock()
	st, ok := r.sessions[tenantID]
	r.mu.RUnlock()
	if ok {
		return st, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check: another caller may have created the entry between locks.
	if st, ok := r.sessions[tenantID]; ok {
		return st, false
	}
	st = newState(tenantID)
	r.sessions[tenantID] = st
	return st, true
}

// Get returns the tenant's session state, or false if unknown.
func (r *Registry) Get(tenantID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.sessions[tenantID]
	return st, ok
}

// Remove deletes the tenant's entry. Callers are responsible for tearing
// down the entry's client first.
func (r *Registry) Remove(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tenantID)
}

// List returns all session states ordered by tenant id.
func (r *Registry) List() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]*State, 0, len(r.sessions))
	for _, st := range r.sessions {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].tenantID < states[j].tenantID
	})
	return states
}

// Len returns the number of known tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
