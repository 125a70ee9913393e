package firestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

func TestNewStoreRequiresProject(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	assert.Error(t, err)
}

func TestFunnelDocIDIsPerStateAndSession(t *testing.T) {
	assert.Equal(t, "done:s1", funnelDocID("s1", "done"))
	assert.NotEqual(t, funnelDocID("s1", "done"), funnelDocID("s2", "done"))
}

func TestStoreSatisfiesPorts(t *testing.T) {
	var _ domain.ArchiveStore = (*Store)(nil)
	var _ domain.FunnelStore = (*Store)(nil)
}
