package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

type sessionEntry[V any] struct {
	value    V
	lastSeen time.Time
}

// SessionStore keeps live sessions in memory and forgets them after they
// have been idle for the configured TTL. A TTL <= 0 keeps sessions forever.
type SessionStore[V any] struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*sessionEntry[V]
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore[V any](ttl time.Duration) *SessionStore[V] {
	return &SessionStore[V]{
		sessions: make(map[domain.SessionID]*sessionEntry[V]),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *SessionStore[V]) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *SessionStore[V]) CreateSession(id domain.SessionID, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.sessions[id]; exists && !s.expired(e) {
		return ErrSessionExists
	}

	s.sessions[id] = &sessionEntry[V]{value: v, lastSeen: s.now()}
	return nil
}

// GetSession returns the session and marks it as used.
func (s *SessionStore[V]) GetSession(id domain.SessionID) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || s.expired(e) {
		delete(s.sessions, id)
		var zero V
		return zero, ErrSessionNotFound
	}

	e.lastSeen = s.now()
	return e.value, nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *SessionStore[V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.sessions {
		if s.expired(e) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *SessionStore[V]) expired(e *sessionEntry[V]) bool {
	return s.ttl > 0 && s.now().Sub(e.lastSeen) > s.ttl
}
