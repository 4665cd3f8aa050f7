package session

import (
	"sync"

	"dexlens/internal/visit"
)

// Handle is an opaque session reference for callers across a foreign
// boundary. The zero Handle is never issued.
type Handle uint64

// Registry maps handles to sessions. Handles may be opened and closed
// from any goroutine; each session is still used by one caller at a time.
type Registry struct {
	mu       sync.Mutex
	next     Handle
	sessions map[Handle]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[Handle]*Session)}
}

// Open opens a session and registers it. On error no handle is issued.
func (r *Registry) Open(buf []byte, opts Options) (Handle, error) {
	s, err := Open(buf, opts)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.sessions[r.next] = s
	return r.next, nil
}

// Get returns the session behind h.
func (r *Registry) Get(h Handle) (*Session, error) {
	if h == 0 {
		return nil, ErrNoSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[h]
	if !ok {
		return nil, ErrBadHandle
	}
	return s, nil
}

// Close closes and forgets h. Closing the zero handle or a handle that
// is already closed does nothing.
func (r *Registry) Close(h Handle) error {
	r.mu.Lock()
	s, ok := r.sessions[h]
	delete(r.sessions, h)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// Visit runs v over the session behind h.
func (r *Registry) Visit(h Handle, v visit.ClassVisitor) error {
	s, err := r.Get(h)
	if err != nil {
		return err
	}
	return s.Visit(v)
}

// Len returns the number of open handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every open handle.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	open := r.sessions
	r.sessions = make(map[Handle]*Session)
	r.mu.Unlock()
	for _, s := range open {
		s.Close()
	}
}
