package realtime

import (
	"sync"
	"time"
)

// Stats records the outcome of recent feed polls in a thread-safe manner.
type Stats struct {
	mu        sync.RWMutex
	lastPoll  time.Time
	entities  int
	ingested  int
	polls     int
	failures  int
	lastError string
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	LastPoll  time.Time `json:"lastPoll"`
	Entities  int       `json:"entities"`
	Ingested  int       `json:"ingested"`
	Polls     int       `json:"polls"`
	Failures  int       `json:"failures"`
	LastError string    `json:"lastError,omitempty"`
}

// NewStats creates empty poll statistics.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) recordPoll(at time.Time, entities, ingested int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPoll = at
	s.entities = entities
	s.ingested = ingested
	s.polls++
	s.lastError = ""
}

func (s *Stats) recordError(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPoll = at
	s.polls++
	s.failures++
	s.lastError = err.Error()
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{
		LastPoll:  s.lastPoll,
		Entities:  s.entities,
		Ingested:  s.ingested,
		Polls:     s.polls,
		Failures:  s.failures,
		LastError: s.lastError,
	}
}
