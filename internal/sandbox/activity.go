package sandbox

import (
	"sync"
	"time"
)

// ActivityRegistry records the last activity instant per sandbox id.
// It is an index used for idle eviction only; listings always come from
// the runtime.
type ActivityRegistry struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewActivityRegistry creates an empty registry.
func NewActivityRegistry() *ActivityRegistry {
	return &ActivityRegistry{last: make(map[string]time.Time)}
}

// Touch records activity at t. Timestamps never move backwards.
func (r *ActivityRegistry) Touch(id string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.last[id]; ok && prev.After(t) {
		return
	}
	r.last[id] = t
}

// Last returns the recorded activity for id.
func (r *ActivityRegistry) Last(id string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.last[id]
	return t, ok
}

// Forget drops the record for id.
func (r *ActivityRegistry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, id)
}

// Len returns the number of tracked sandboxes.
func (r *ActivityRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.last)
}
