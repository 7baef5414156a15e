package session

import (
	"context"
	"sync"
)

// AuthState tracks authenticated/disconnected transitions and notifies
// subscribers. Transport implementations embed it to satisfy the state half
// of Connection.
type AuthState struct {
	ready         chan struct{}
	onAuth        map[int]func()
	onDisconnect  map[int]func()
	nextID        int
	mu            sync.Mutex
	authenticated bool
}

// NewAuthState starts in the disconnected state.
func NewAuthState() *AuthState {
	return &AuthState{
		ready:        make(chan struct{}),
		onAuth:       make(map[int]func()),
		onDisconnect: make(map[int]func()),
	}
}

// Authenticated reports the current state.
func (s *AuthState) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// WaitAuthenticated blocks until authenticated or ctx is done.
func (s *AuthState) WaitAuthenticated(ctx context.Context) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetAuthenticated switches to authenticated; subscribers run only on a transition.
func (s *AuthState) SetAuthenticated() {
	s.mu.Lock()
	if s.authenticated {
		s.mu.Unlock()
		return
	}
	s.authenticated = true
	close(s.ready)
	callbacks := snapshot(s.onAuth)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// SetDisconnected switches to disconnected; subscribers run only on a transition.
func (s *AuthState) SetDisconnected() {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return
	}
	s.authenticated = false
	s.ready = make(chan struct{})
	callbacks := snapshot(s.onDisconnect)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// OnAuthenticated subscribes to authenticated transitions.
func (s *AuthState) OnAuthenticated(fn func()) func() {
	return s.subscribe(s.onAuth, fn)
}

// OnDisconnected subscribes to disconnect transitions.
func (s *AuthState) OnDisconnected(fn func()) func() {
	return s.subscribe(s.onDisconnect, fn)
}

func (s *AuthState) subscribe(set map[int]func(), fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	set[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(set, id)
		s.mu.Unlock()
	}
}

func snapshot(set map[int]func()) []func() {
	out := make([]func(), 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}
