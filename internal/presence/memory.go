package presence

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[string]Conn)}
}

// Register maps identity to conn, returning the previous handle.
func (r *MemoryRegistry) Register(ctx context.Context, identity string, conn Conn) (Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.conns[identity]
	r.conns[identity] = conn
	if !ok || prev == conn {
		return nil, nil
	}
	return prev, nil
}

// Unregister removes identity if it is still mapped to conn.
func (r *MemoryRegistry) Unregister(ctx context.Context, identity string, conn Conn) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[identity]
	if !ok || current != conn {
		return false, nil
	}
	delete(r.conns, identity)
	return true, nil
}

// Lookup returns the live handle for identity.
func (r *MemoryRegistry) Lookup(ctx context.Context, identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[identity]
	return conn, ok
}

// ListOnline returns the identities with a live handle.
func (r *MemoryRegistry) ListOnline(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Len returns the number of live handles.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
