package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

// Store keeps the deal archive and funnel hits in Firestore.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given GCP project.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) archiveCol() *firestore.CollectionRef {
	return s.client.Collection("deal_archive")
}

func (s *Store) funnelCol() *firestore.CollectionRef {
	return s.client.Collection("funnel_hits")
}

// funnelDocID makes one document per (state, session) pair so repeated hits
// collapse into a single Create.
func funnelDocID(sessionID domain.SessionID, state string) string {
	return state + ":" + string(sessionID)
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type turnDoc struct {
	Speaker   string    `firestore:"speaker"`
	Text      string    `firestore:"text"`
	CreatedAt time.Time `firestore:"created_at"`
}

type archiveDoc struct {
	SessionID string    `firestore:"session_id"`
	UserID    string    `firestore:"user_id"`
	Variant   string    `firestore:"variant"`
	DealID    string    `firestore:"deal_id"`
	DealTitle string    `firestore:"deal_title"`
	Turns     []turnDoc `firestore:"turns"`
	CreatedAt time.Time `firestore:"created_at"`
}

type funnelDoc struct {
	SessionID string    `firestore:"session_id"`
	State     string    `firestore:"state"`
	CreatedAt time.Time `firestore:"created_at"`
}

// ─────────────────────────────────────────
// ArchiveStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendArchiveEntry(ctx context.Context, entry *domain.ArchiveEntry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = domain.ArchiveEntryID(uuid.NewString())
	}

	turns := make([]turnDoc, 0, len(entry.Turns))
	for _, t := range entry.Turns {
		turns = append(turns, turnDoc{Speaker: string(t.Speaker), Text: t.Text, CreatedAt: t.CreatedAt})
	}

	doc := archiveDoc{
		SessionID: string(entry.SessionID),
		UserID:    string(entry.UserID),
		Variant:   string(entry.Variant),
		DealID:    entry.DealID,
		DealTitle: entry.DealTitle,
		Turns:     turns,
		CreatedAt: entry.CreatedAt,
	}

	if _, err := s.archiveCol().Doc(string(entry.ID)).Create(ctx, doc); err != nil {
		return fmt.Errorf("firestore AppendArchiveEntry: %w", err)
	}
	return nil
}

func (s *Store) ListArchiveByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.ArchiveEntry, error) {
	q := s.archiveCol().Where("user_id", "==", string(userID)).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []*domain.ArchiveEntry{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListArchiveByUser: %w", err)
		}

		var doc archiveDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode archiveDoc: %w", err)
		}

		turns := make([]domain.Turn, 0, len(doc.Turns))
		for _, t := range doc.Turns {
			turns = append(turns, domain.Turn{Speaker: domain.Speaker(t.Speaker), Text: t.Text, CreatedAt: t.CreatedAt})
		}

		out = append(out, &domain.ArchiveEntry{
			ID:        domain.ArchiveEntryID(snap.Ref.ID),
			SessionID: domain.SessionID(doc.SessionID),
			UserID:    domain.UserID(doc.UserID),
			Variant:   domain.Variant(doc.Variant),
			DealID:    doc.DealID,
			DealTitle: doc.DealTitle,
			Turns:     turns,
			CreatedAt: doc.CreatedAt,
		})
	}
	return out, nil
}

// ─────────────────────────────────────────
// FunnelStore implementation
// ─────────────────────────────────────────

func (s *Store) Hit(ctx context.Context, sessionID domain.SessionID, state string) error {
	doc := funnelDoc{
		SessionID: string(sessionID),
		State:     state,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.funnelCol().Doc(funnelDocID(sessionID, state)).Create(ctx, doc)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("firestore Hit: %w", err)
	}
	return nil
}

func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	iter := s.funnelCol().Select("state").Documents(ctx)
	defer iter.Stop()

	out := map[string]int{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore Counts: %w", err)
		}

		var doc funnelDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode funnelDoc: %w", err)
		}
		out[doc.State]++
	}
	return out, nil
}
