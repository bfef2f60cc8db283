// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/pulse/internal/signal"
	"github.com/linnemanlabs/pulse/internal/triage"
)

// Store holds signals in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	signals map[string]*signal.Signal // signal ID -> record
	next    int                       // last assigned signal number
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		signals: make(map[string]*signal.Signal),
	}
}

// Get retrieves a signal by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*signal.Signal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[id]
	if !ok {
		return nil, false, nil
	}
	return sig.Clone(), true, nil
}

// List returns copies of every signal ordered by signal number.
func (s *Store) List(_ context.Context) ([]signal.Signal, error) {
	s.mu.RLock()
	out := make([]signal.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		out = append(out, *sig.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Create stores a copy of sig and assigns the next signal number.
func (s *Store) Create(_ context.Context, sig *signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[sig.ID]; ok {
		return triage.ErrDuplicate
	}
	s.next++
	sig.Number = s.next
	s.signals[sig.ID] = sig.Clone()
	return nil
}

// Put replaces a stored signal with a copy of sig. The stored number is kept.
func (s *Store) Put(_ context.Context, sig *signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.signals[sig.ID]
	if !ok {
		return triage.ErrNotFound
	}
	cp := sig.Clone()
	cp.Number = existing.Number
	s.signals[sig.ID] = cp
	return nil
}
