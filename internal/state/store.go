package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/haikuplus/internal/haiku"
)

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	User                *haiku.User
	Mode                haiku.StreamMode
	Stream              []haiku.Haiku
	HasStream           bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive refresh failures
}

// IsOffline returns true when the server has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Find returns the haiku with id from the stream.
func (s Snapshot) Find(id string) (haiku.Haiku, bool) {
	for _, h := range s.Stream {
		if h.ID == id {
			return h, true
		}
	}
	return haiku.Haiku{}, false
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stream fetched for mode. When err is non-nil the
// previous data is kept but the error is recorded for visibility. A result
// for a mode other than the current one is ignored.
func (s *Store) Update(mode haiku.StreamMode, stream []haiku.Haiku, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode != s.snapshot.Mode {
		return
	}
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Stream = cloneStream(stream)
	s.snapshot.HasStream = true
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// SetMode switches the stream filter and drops the stream fetched for the
// previous one.
func (s *Store) SetMode(mode haiku.StreamMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.Mode == mode {
		return
	}
	s.snapshot.Mode = mode
	s.snapshot.Stream = nil
	s.snapshot.HasStream = false
}

// Mode returns the current stream filter.
func (s *Store) Mode() haiku.StreamMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Mode
}

// SetUser records the signed-in user; nil clears it.
func (s *Store) SetUser(u *haiku.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.User = cloneUser(u)
}

// ApplyVote increments the vote count of haiku id ahead of the server and
// returns the updated haiku. The next Update or UpdateHaiku overwrites it.
func (s *Store) ApplyVote(id string) (haiku.Haiku, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot.Stream {
		if s.snapshot.Stream[i].ID == id {
			s.snapshot.Stream[i].Votes++
			return cloneHaiku(s.snapshot.Stream[i]), true
		}
	}
	return haiku.Haiku{}, false
}

// UpdateHaiku replaces the stream entry with the same id, if any.
func (s *Store) UpdateHaiku(h haiku.Haiku) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot.Stream {
		if s.snapshot.Stream[i].ID == h.ID {
			s.snapshot.Stream[i] = cloneHaiku(h)
			return true
		}
	}
	return false
}

// Prepend adds a newly written haiku to the front of the stream.
func (s *Store) Prepend(h haiku.Haiku) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Stream = append([]haiku.Haiku{cloneHaiku(h)}, s.snapshot.Stream...)
}

// Reset forgets the user and stream, as after sign-out.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := s.snapshot.Mode
	s.snapshot = Snapshot{Mode: mode}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.User = cloneUser(s.snapshot.User)
	snap.Stream = cloneStream(s.snapshot.Stream)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneStream(items []haiku.Haiku) []haiku.Haiku {
	if len(items) == 0 {
		return nil
	}
	dup := make([]haiku.Haiku, len(items))
	for i, h := range items {
		dup[i] = cloneHaiku(h)
	}
	return dup
}

func cloneHaiku(h haiku.Haiku) haiku.Haiku {
	h.Author = cloneUser(h.Author)
	return h
}

func cloneUser(u *haiku.User) *haiku.User {
	if u == nil {
		return nil
	}
	dup := *u
	return &dup
}
