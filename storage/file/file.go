// Package file provides a single-file JSON implementation of the
// reconcile.Store interface. Every mutation rewrites the document through
// a temp-file rename, so the store is durable before a call returns and a
// crash can never leave a half-written file behind.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

// Store implements reconcile.Store backed by one JSON document on disk
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// document is the on-disk layout.
type document struct {
	Links     map[string]string `json:"links"`
	Processed []string          `json:"processed"`

	// processed mirrors Processed as a set for O(1) membership.
	processed map[string]struct{}
}

// New creates a file store at path, loading existing state if present.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	s := &Store{
		path: path,
		doc: document{
			Links:     make(map[string]string),
			processed: make(map[string]struct{}),
		},
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.flush(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read store file: %w", err)
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("failed to parse store file: %w", err)
		}
		if s.doc.Links == nil {
			s.doc.Links = make(map[string]string)
		}
		s.doc.processed = make(map[string]struct{}, len(s.doc.Processed))
		for _, id := range s.doc.Processed {
			s.doc.processed[id] = struct{}{}
		}
	}

	return s, nil
}

// Lookup implements reconcile.IdentityStore
func (s *Store) Lookup(ctx context.Context, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountID, ok := s.doc.Links[customerID]
	if !ok {
		return "", reconcile.ErrCustomerNotLinked
	}
	return accountID, nil
}

// Associate implements reconcile.IdentityStore. The new link is on disk
// before Associate returns.
func (s *Store) Associate(ctx context.Context, customerID, accountID string) error {
	if customerID == "" || accountID == "" {
		return fmt.Errorf("invalid identity link")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.doc.Links[customerID]
	s.doc.Links[customerID] = accountID
	if err := s.flush(); err != nil {
		// Roll back the in-memory map so memory and disk stay in step.
		if had {
			s.doc.Links[customerID] = prev
		} else {
			delete(s.doc.Links, customerID)
		}
		return err
	}
	return nil
}

// Admit implements reconcile.EventLog. The event id is on disk before
// Admit returns true.
func (s *Store) Admit(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("invalid event id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.doc.processed[eventID]; seen {
		return false, nil
	}

	s.doc.processed[eventID] = struct{}{}
	s.doc.Processed = append(s.doc.Processed, eventID)
	if err := s.flush(); err != nil {
		delete(s.doc.processed, eventID)
		s.doc.Processed = s.doc.Processed[:len(s.doc.Processed)-1]
		return false, err
	}
	return true, nil
}

// flush writes the document to a temp file in the same directory and
// renames it over the store path. Callers must hold s.mu.
func (s *Store) flush() error {
	data, err := json.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
