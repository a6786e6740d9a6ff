package storage

import (
	"context"
	"sync"

	"github.com/nabta-labs/leafscope/internal/models"
)

// Store holds the active analysis session per slot. Every Begin or Reset
// bumps the slot's generation and cancels the previous run's context, so a
// superseded pipeline run can neither mutate the new session nor keep its
// network calls alive. Conditional updates carry the generation they were
// issued for and are dropped when it no longer matches.
type Store struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

type slot struct {
	session *models.Session
	gen     uint64
	cancel  context.CancelFunc
}

func New() *Store {
	return &Store{
		slots: make(map[string]*slot),
	}
}

// Begin atomically replaces the slot's session with a fresh one and
// returns the new generation. Any in-flight run for the slot is cancelled.
func (s *Store) Begin(slotID string, session *models.Session, cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.slots[slotID]
	if !exists {
		entry = &slot{}
		s.slots[slotID] = entry
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	entry.session = session
	entry.cancel = cancel
	entry.gen++
	return entry.gen
}

// Snapshot returns a copy of the slot's session safe to serialize while a
// run is mutating the original.
func (s *Store) Snapshot(slotID string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.slots[slotID]
	if !exists || entry.session == nil {
		return models.Session{}, false
	}

	copied := *entry.session
	copied.Regions = make([]models.RegionRecord, len(entry.session.Regions))
	copy(copied.Regions, entry.session.Regions)
	return copied, true
}

// Update applies fn to the slot's session only when gen is still the
// current generation. It reports whether the update was applied; a false
// return means the run was superseded and must stop.
func (s *Store) Update(slotID string, gen uint64, fn func(*models.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.slots[slotID]
	if !exists || entry.gen != gen || entry.session == nil {
		return false
	}
	fn(entry.session)
	return true
}

// Mutate applies fn to the current session regardless of generation. Used
// for user-driven changes like moving the region cursor.
func (s *Store) Mutate(slotID string, fn func(*models.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.slots[slotID]
	if !exists || entry.session == nil {
		return false
	}
	fn(entry.session)
	return true
}

// Reset cancels any in-flight run and replaces the slot with a fresh
// Waiting session, discarding all prior results.
func (s *Store) Reset(slotID string, session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.slots[slotID]
	if !exists {
		entry = &slot{}
		s.slots[slotID] = entry
	}
	if entry.cancel != nil {
		entry.cancel()
		entry.cancel = nil
	}
	entry.session = session
	entry.gen++
}

// Generation returns the slot's current generation.
func (s *Store) Generation(slotID string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.slots[slotID]
	if !exists {
		return 0, false
	}
	return entry.gen, true
}

// Slots lists all slot IDs with an active session.
func (s *Store) Slots() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.slots))
	for id, entry := range s.slots {
		if entry.session != nil {
			ids = append(ids, id)
		}
	}
	return ids
}
