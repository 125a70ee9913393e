package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/deal-assistant/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/deal-assistant/internal/domain"
)

func openMemory(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		err := s.AppendArchiveEntry(ctx, &domain.ArchiveEntry{
			SessionID: domain.SessionID(title),
			UserID:    "u1",
			Variant:   domain.VariantLocal,
			DealID:    "d-" + title,
			DealTitle: title,
			Turns: []domain.Turn{
				{Speaker: domain.SpeakerAssistant, Text: "What's the deal name?", CreatedAt: base},
				{Speaker: domain.SpeakerUser, Text: title, CreatedAt: base},
			},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	got, err := s.ListArchiveByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].DealTitle)
	assert.Equal(t, "second", got[1].DealTitle)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, domain.VariantLocal, got[0].Variant)
	assert.True(t, base.Add(2*time.Minute).Equal(got[0].CreatedAt))
	require.Len(t, got[0].Turns, 2)
	assert.Equal(t, "third", got[0].Turns[1].Text)

	all, err := s.ListArchiveByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.ListArchiveByUser(ctx, "u2", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFunnelCountsDistinctSessions(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	require.NoError(t, s.Hit(ctx, "s1", "awaiting_company"))
	require.NoError(t, s.Hit(ctx, "s1", "awaiting_company"))
	require.NoError(t, s.Hit(ctx, "s2", "awaiting_company"))
	require.NoError(t, s.Hit(ctx, "s1", "done"))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"awaiting_company": 2, "done": 1}, counts)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestHitReportsDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO funnel_hits").
		WithArgs("s1", "done", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	s := sqlite.New(db)
	err = s.Hit(context.Background(), "s1", "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountsReportsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT state, COUNT").WillReturnError(errors.New("no such table: funnel_hits"))

	_, err = sqlite.New(db).Counts(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListArchiveRejectsCorruptTurns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "session_id", "user_id", "variant", "deal_id", "deal_title", "turns", "created_at"}).
		AddRow("a1", "s1", "u1", "local", "d1", "t", "{not json", "2025-01-01T00:00:00.000000000Z")
	mock.ExpectQuery("SELECT id, session_id").WithArgs("u1", 5).WillReturnRows(rows)

	_, err = sqlite.New(db).ListArchiveByUser(context.Background(), "u1", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode turns")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSatisfiesPorts(t *testing.T) {
	var _ domain.ArchiveStore = (*sqlite.Store)(nil)
	var _ domain.FunnelStore = (*sqlite.Store)(nil)
}
