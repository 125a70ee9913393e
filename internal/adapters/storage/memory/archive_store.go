package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

// ArchiveStore is an in-memory implementation of domain.ArchiveStore.
// It is NOT persistent and is only suitable for development / local mode.
type ArchiveStore struct {
	mu       sync.RWMutex
	entries  map[domain.ArchiveEntryID]*domain.ArchiveEntry
	byUserID map[domain.UserID][]domain.ArchiveEntryID
}

func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{
		entries:  make(map[domain.ArchiveEntryID]*domain.ArchiveEntry),
		byUserID: make(map[domain.UserID][]domain.ArchiveEntryID),
	}
}

// AppendArchiveEntry saves a new entry, assigning an ID when it has none.
func (s *ArchiveStore) AppendArchiveEntry(_ context.Context, entry *domain.ArchiveEntry) error {
	if entry == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = domain.ArchiveEntryID(uuid.NewString())
	}

	s.entries[entry.ID] = entry
	s.byUserID[entry.UserID] = append(s.byUserID[entry.UserID], entry.ID)

	return nil
}

// ListArchiveByUser returns the last `limit` entries for a user, newest first.
// If limit <= 0, returns all.
func (s *ArchiveStore) ListArchiveByUser(_ context.Context, userID domain.UserID, limit int) ([]*domain.ArchiveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUserID[userID]
	if len(ids) == 0 {
		return []*domain.ArchiveEntry{}, nil
	}

	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}

	out := make([]*domain.ArchiveEntry, 0, limit)
	for i := len(ids) - 1; i >= len(ids)-limit; i-- {
		if e, ok := s.entries[ids[i]]; ok {
			out = append(out, e)
		}
	}

	return out, nil
}
