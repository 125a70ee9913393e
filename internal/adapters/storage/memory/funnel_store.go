package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

// FunnelStore counts distinct sessions per reached state.
type FunnelStore struct {
	mu   sync.RWMutex
	hits map[string]map[domain.SessionID]struct{}
}

func NewFunnelStore() *FunnelStore {
	return &FunnelStore{
		hits: make(map[string]map[domain.SessionID]struct{}),
	}
}

// Hit records that the session reached state. Repeated hits count once.
func (s *FunnelStore) Hit(_ context.Context, sessionID domain.SessionID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, ok := s.hits[state]
	if !ok {
		sessions = make(map[domain.SessionID]struct{})
		s.hits[state] = sessions
	}
	sessions[sessionID] = struct{}{}
	return nil
}

func (s *FunnelStore) Counts(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.hits))
	for state, sessions := range s.hits {
		out[state] = len(sessions)
	}
	return out, nil
}
