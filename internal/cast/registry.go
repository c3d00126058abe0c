package cast

import (
	"sort"
	"sync"

	"github.com/bryanchriswhite/portalcast/internal/display"
	"github.com/bryanchriswhite/portalcast/internal/logger"
)

// Worker is a running capture stream owned by a binding.
type Worker interface {
	// NodeID is the PipeWire node clients connect to.
	NodeID() uint32
	// Stop releases the stream. It is called exactly once, by Registry.Remove.
	Stop() error
}

// Binding ties a session handle to its live capture worker.
type Binding struct {
	Handle string
	Worker Worker
	// Output is the display the worker captures.
	Output display.Output
}

// NodeID returns the stream identifier exposed to clients.
func (b Binding) NodeID() uint32 { return b.Worker.NodeID() }

// Registry maps session handles to live bindings. A binding's worker is
// running exactly as long as the binding is present.
type Registry struct {
	mu       sync.Mutex
	bindings map[string]Binding
}

// NewRegistry creates an empty cast registry
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[string]Binding),
	}
}

// Find returns the binding for handle, if any.
func (r *Registry) Find(handle string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[handle]
	return b, ok
}

// Bind inserts b unless a binding for the same handle already exists, in
// which case the existing binding is returned and inserted is false. The
// existence check and the insert happen under one lock acquisition.
func (r *Registry) Bind(b Binding) (current Binding, inserted bool) {
	r.mu.Lock()
	if existing, ok := r.bindings[b.Handle]; ok {
		r.mu.Unlock()
		return existing, false
	}
	r.bindings[b.Handle] = b
	live := len(r.bindings)
	r.mu.Unlock()

	logger.WithSession("cast-registry", b.Handle).Info().
		Uint32("node_id", b.NodeID()).
		Str("output", b.Output.Name).
		Int("live", live).
		Msg("Cast bound")
	return b, true
}

// Remove deletes the binding for handle and stops its worker. The entry is
// gone from the map before Stop runs, and Stop has returned before Remove
// does. Removing an absent handle is a no-op.
func (r *Registry) Remove(handle string) (Binding, bool) {
	r.mu.Lock()
	b, ok := r.bindings[handle]
	if ok {
		delete(r.bindings, handle)
	}
	r.mu.Unlock()

	if !ok {
		return Binding{}, false
	}

	log := logger.WithSession("cast-registry", handle)
	if err := b.Worker.Stop(); err != nil {
		log.Warn().Err(err).Uint32("node_id", b.NodeID()).Msg("Capture worker did not stop cleanly")
	} else {
		log.Info().Uint32("node_id", b.NodeID()).Msg("Cast stopped")
	}
	return b, true
}

// RemoveAll stops every live binding. Used on shutdown.
func (r *Registry) RemoveAll() int {
	n := 0
	for _, b := range r.List() {
		if _, ok := r.Remove(b.Handle); ok {
			n++
		}
	}
	return n
}

// List returns a snapshot of all bindings ordered by handle.
func (r *Registry) List() []Binding {
	r.mu.Lock()
	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}
