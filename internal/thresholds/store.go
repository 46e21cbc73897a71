// Package thresholds holds the live detection profile shared by the
// classifier, the buzzer and the settings synchronizer.
package thresholds

import (
	"fmt"
	"sync/atomic"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
)

// Store publishes a complete threshold set. Readers always see one whole
// set: a swap replaces the pointer, never individual fields.
type Store struct {
	current atomic.Pointer[models.Thresholds]
	version atomic.Uint64
}

// NewStore creates a store seeded with a validated initial set
func NewStore(initial models.Thresholds) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial thresholds: %w", err)
	}
	s := &Store{}
	s.current.Store(&initial)
	return s, nil
}

// Load returns a copy of the current set
func (s *Store) Load() models.Thresholds {
	return *s.current.Load()
}

// Version increments on every successful swap
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Swap validates next and installs it. An invalid set is rejected and the
// current one is kept.
func (s *Store) Swap(next models.Thresholds) (models.Thresholds, error) {
	if err := next.Validate(); err != nil {
		return s.Load(), err
	}
	prev := s.current.Swap(&next)
	s.version.Add(1)
	return *prev, nil
}

// Apply overlays a partial update on the current set and swaps in the result
func (s *Store) Apply(update models.ThresholdsUpdate) (models.Thresholds, error) {
	if err := update.Validate(); err != nil {
		return s.Load(), err
	}
	return s.Swap(update.ApplyTo(s.Load()))
}
