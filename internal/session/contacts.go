package session

import (
	"context"
	"fmt"
	"sync"
)

// StaticContacts is an in-memory ContactKeys.
type StaticContacts struct {
	contacts map[string]*Contact
	mu       sync.RWMutex
}

// NewStaticContacts creates a resolver pre-filled with contacts.
func NewStaticContacts(contacts ...*Contact) *StaticContacts {
	s := &StaticContacts{contacts: make(map[string]*Contact)}
	for _, c := range contacts {
		s.contacts[c.Username] = c
	}
	return s
}

// Add stores or replaces a contact.
func (s *StaticContacts) Add(c *Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.Username] = c
}

// Contact implements ContactKeys.
func (s *StaticContacts) Contact(_ context.Context, username string) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContactNotFound, username)
	}
	return c, nil
}
