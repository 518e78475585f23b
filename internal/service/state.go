package service

import (
	"sync/atomic"

	"indexwatch/internal/domain"
)

// StateStore publishes the watcher's live state. The tick loop stores a
// fresh immutable value per tick; concurrent readers load whatever value
// is current and never see a partial update.
type StateStore struct {
	cur atomic.Pointer[domain.LiveState]
}

// NewStateStore starts with a zero, not-running state.
func NewStateStore() *StateStore {
	s := &StateStore{}
	s.cur.Store(&domain.LiveState{})
	return s
}

// Publish replaces the current state. The caller must not mutate st after
// publishing.
func (s *StateStore) Publish(st domain.LiveState) {
	s.cur.Store(&st)
}

// Load returns the current state by value.
func (s *StateStore) Load() domain.LiveState {
	return *s.cur.Load()
}
