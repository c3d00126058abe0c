package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bryanchriswhite/portalcast/internal/logger"
)

var (
	// ErrExists is returned when inserting a handle that is already live.
	ErrExists = errors.New("session handle already registered")
	// ErrNotFound is returned when updating a handle that is not live.
	ErrNotFound = errors.New("session not found")
)

// Registry holds every live session keyed by handle.
// All methods hold the lock only for in-memory map work; callbacks passed to
// Update must not block or call back into the registry.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
	}
}

// Insert registers s. It fails with ErrExists if the handle is taken.
func (r *Registry) Insert(s Session) error {
	r.mu.Lock()
	if _, ok := r.sessions[s.Handle]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, s.Handle)
	}
	r.sessions[s.Handle] = s
	live := len(r.sessions)
	r.mu.Unlock()

	logger.WithSession("session-registry", s.Handle).Debug().
		Stringer("type", s.Type).
		Int("live", live).
		Msg("Session registered")
	return nil
}

// Find returns a copy of the session for handle.
func (r *Registry) Find(handle string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[handle]
	return s, ok
}

// Update applies fn to the stored session for handle. The handle and session
// type are restored after fn returns, so neither can change after creation.
func (r *Registry) Update(handle string, fn func(*Session)) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	updated := s
	fn(&updated)
	updated.Handle = s.Handle
	updated.Type = s.Type
	r.sessions[handle] = updated
	return updated, nil
}

// Remove deletes the session for handle and returns it, if present.
func (r *Registry) Remove(handle string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if ok {
		delete(r.sessions, handle)
	}
	return s, ok
}

// List returns a snapshot of all live sessions ordered by handle.
func (r *Registry) List() []Session {
	r.mu.Lock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
