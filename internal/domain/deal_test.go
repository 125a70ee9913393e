package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

func TestNextSlotFollowsFixedOrder(t *testing.T) {
	d := domain.DealDraft{}
	assert.Equal(t, domain.SlotTitle, d.NextSlot())

	d = d.WithTitle("Renewal")
	assert.Equal(t, domain.SlotCompany, d.NextSlot())

	d = d.WithCompany("7")
	assert.Equal(t, domain.SlotAmount, d.NextSlot())

	d = d.WithAmount(0)
	assert.Equal(t, domain.SlotStage, d.NextSlot(), "zero is a filled amount")

	d = d.WithStage("proposal").WithCloseDate("2025-01-31")
	assert.Equal(t, domain.SlotContacts, d.NextSlot())

	d = d.WithContacts(nil)
	assert.Equal(t, domain.SlotNone, d.NextSlot(), "empty contacts list is a filled slot")
}

func TestNextSlotIgnoresLaterSlotsWhenEarlierPending(t *testing.T) {
	d := domain.DealDraft{Stage: "proposal", CloseDate: "2025-01-01"}
	assert.Equal(t, domain.SlotTitle, d.NextSlot())

	d = d.WithTitle("   ")
	assert.Equal(t, domain.SlotTitle, d.NextSlot(), "whitespace title is still pending")
}

func TestDraftWithReturnsCopy(t *testing.T) {
	base := domain.DealDraft{}.WithTitle("A")
	next := base.WithStage("qualified")

	assert.Empty(t, base.Stage)
	assert.Equal(t, "qualified", next.Stage)

	contacts := []int{1, 2}
	withContacts := base.WithContacts(contacts)
	contacts[0] = 99
	assert.Equal(t, []int{1, 2}, withContacts.Contacts)
}

func TestTranscriptAppendDoesNotAlias(t *testing.T) {
	tr := make(domain.Transcript, 0, 8)
	tr = tr.Append(domain.Turn{Speaker: domain.SpeakerAssistant, Text: "hi"})

	a := tr.Append(domain.Turn{Speaker: domain.SpeakerUser, Text: "a"})
	b := tr.Append(domain.Turn{Speaker: domain.SpeakerUser, Text: "b"})

	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.Equal(t, "a", a[1].Text)
	assert.Equal(t, "b", b[1].Text)
	assert.Len(t, tr, 1)
}

func TestRequestCopiesDraft(t *testing.T) {
	d := domain.DealDraft{}.
		WithTitle("Big deal").
		WithCompany("42").
		WithAmount(1500.5).
		WithStage("proposal").
		WithCloseDate("2025-06-30")

	req := d.Request(nil)
	assert.Equal(t, domain.DealRequest{
		Title:     "Big deal",
		Company:   "42",
		Amount:    1500.5,
		Stage:     "proposal",
		CloseDate: "2025-06-30",
		Contacts:  []int{},
	}, req)
}
