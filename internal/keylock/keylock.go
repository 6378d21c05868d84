// ABOUTME: Per-key advisory mutex registry for serializing mutations.
// ABOUTME: Guarantees at-most-one in-flight mutation per session or report key.

package keylock

import "sync"

// Registry hands out one mutex per key so that operations on the same key are
// serialized while operations on distinct keys proceed concurrently. Locks are
// created on first use and kept for the registry's lifetime; the guard map is
// protected by its own mutex so the locks themselves are race-free.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty lock registry.
func New() *Registry {
	return &Registry{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for key, creating it on first use.
// The caller must call Unlock with the same key on every exit path.
func (r *Registry) Lock(key string) {
	r.lockFor(key).Lock()
}

// Unlock releases the mutex for key.
func (r *Registry) Unlock(key string) {
	r.lockFor(key).Unlock()
}

// lockFor returns the mutex for key, allocating it if absent.
func (r *Registry) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}
