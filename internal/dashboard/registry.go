package dashboard

import (
	"slices"
)

// Registry maps client ids to windows. It belongs to the render loop and
// is not safe for concurrent use.
type Registry struct {
	windows map[uint64]*Window
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{windows: make(map[uint64]*Window)}
}

// Ensure returns the client's window, creating it if needed.
func (r *Registry) Ensure(clientID uint64) (w *Window, created bool) {
	if w, ok := r.windows[clientID]; ok {
		return w, false
	}
	w = NewWindow(clientID)
	r.windows[clientID] = w
	return w, true
}

// Get returns the client's window.
func (r *Registry) Get(clientID uint64) (*Window, bool) {
	w, ok := r.windows[clientID]
	return w, ok
}

// Remove deletes the client's window and reports whether it existed.
func (r *Registry) Remove(clientID uint64) bool {
	if _, ok := r.windows[clientID]; !ok {
		return false
	}
	delete(r.windows, clientID)
	return true
}

// IDs returns the live client ids in ascending order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.windows))
	for id := range r.windows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of live windows.
func (r *Registry) Len() int {
	return len(r.windows)
}
