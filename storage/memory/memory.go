// Package memory provides an in-memory implementation of the
// reconcile.Store interface. This implementation is primarily intended
// for testing and development; it does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

// Store implements reconcile.Store using in-memory maps
type Store struct {
	mu        sync.Mutex
	links     map[string]string
	processed map[string]struct{}
}

// New creates a new in-memory store adapter
func New() *Store {
	return &Store{
		links:     make(map[string]string),
		processed: make(map[string]struct{}),
	}
}

// Lookup implements reconcile.IdentityStore
func (s *Store) Lookup(ctx context.Context, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountID, ok := s.links[customerID]
	if !ok {
		return "", reconcile.ErrCustomerNotLinked
	}
	return accountID, nil
}

// Associate implements reconcile.IdentityStore
func (s *Store) Associate(ctx context.Context, customerID, accountID string) error {
	if customerID == "" || accountID == "" {
		return fmt.Errorf("invalid identity link")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.links[customerID] = accountID
	return nil
}

// Admit implements reconcile.EventLog
func (s *Store) Admit(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("invalid event id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.processed[eventID]; seen {
		return false, nil
	}
	s.processed[eventID] = struct{}{}
	return true, nil
}

// Clear removes all data (useful for testing)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.links = make(map[string]string)
	s.processed = make(map[string]struct{})
}
