package intake_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/deal-assistant/internal/app/intake"
	"github.com/PabloGalante/deal-assistant/internal/domain"
)

var t0 = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

func lastText(t *testing.T, c intake.Conversation) string {
	t.Helper()
	turn, ok := c.Transcript.Last()
	require.True(t, ok)
	return turn.Text
}

// fillToContacts drives a fresh conversation to AwaitingContacts.
func fillToContacts(t *testing.T, m *intake.Machine) intake.Conversation {
	t.Helper()
	c := m.Start(t0)

	c, eff, err := m.Receive(c, "Q3 renewal", t0)
	require.NoError(t, err)
	require.Nil(t, eff)

	c, eff, err = m.Receive(c, "acme corp", t0)
	require.NoError(t, err)
	lookup, ok := eff.(intake.LookupCompany)
	require.True(t, ok)
	c = m.ResolveLookup(c, intake.LookupResult{
		Query:     lookup.Query,
		Companies: []domain.Company{{ID: "42", Name: "Acme Corp"}},
	}, t0)

	for _, in := range []string{"$12,000", "proposal", "2025-03-31"} {
		c, eff, err = m.Receive(c, in, t0)
		require.NoError(t, err)
		require.Nil(t, eff)
	}
	require.Equal(t, intake.AwaitingContacts, c.State)
	return c
}

func TestMachineStartAsksForTitle(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c := m.Start(t0)

	assert.Equal(t, intake.AwaitingTitle, c.State)
	require.Len(t, c.Transcript, 1)
	assert.Equal(t, domain.SpeakerAssistant, c.Transcript[0].Speaker)
	assert.Equal(t, intake.PromptTitle, c.Transcript[0].Text)
}

func TestMachineAsksSlotsInFixedOrder(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c := m.Start(t0)

	c, _, err := m.Receive(c, "Q3 renewal", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingCompany, c.State)
	assert.Equal(t, intake.PromptCompany, lastText(t, c))

	c, eff, err := m.Receive(c, "Acme Corp", t0)
	require.NoError(t, err)
	require.Equal(t, intake.LookupCompany{Query: "Acme Corp"}, eff)
	assert.True(t, c.AwaitingResponse)

	c = m.ResolveLookup(c, intake.LookupResult{Query: "Acme Corp", Companies: []domain.Company{{ID: "42", Name: "Acme Corp"}}}, t0)
	assert.Equal(t, intake.AwaitingAmount, c.State)
	assert.Equal(t, intake.PromptAmount, lastText(t, c))

	c, _, err = m.Receive(c, "50000", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingStage, c.State)
	assert.Equal(t, intake.PromptStage, lastText(t, c))

	c, _, err = m.Receive(c, "proposal", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingCloseDate, c.State)
	assert.Equal(t, intake.PromptCloseDate, lastText(t, c))

	c, _, err = m.Receive(c, "2025-03-31", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingContacts, c.State)
	assert.Equal(t, intake.PromptContacts, lastText(t, c))
}

func TestMachineCompanyMatchIgnoresCase(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c, _, err := m.Receive(m.Start(t0), "Deal", t0)
	require.NoError(t, err)

	c, _, err = m.Receive(c, "acme corp", t0)
	require.NoError(t, err)
	got := m.ResolveLookup(c, intake.LookupResult{
		Query:     "acme corp",
		Companies: []domain.Company{{ID: "1", Name: "Acme Corporation"}, {ID: "7", Name: "Acme Corp"}},
	}, t0)

	assert.Equal(t, intake.AwaitingAmount, got.State)
	assert.Equal(t, domain.CompanyRef("7"), got.Draft.Company)
}

func TestMachineCompanyMissStaysAndCounts(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c, _, err := m.Receive(m.Start(t0), "Deal", t0)
	require.NoError(t, err)

	c, _, err = m.Receive(c, "beta", t0)
	require.NoError(t, err)
	c = m.ResolveLookup(c, intake.LookupResult{
		Query:     "beta",
		Companies: []domain.Company{{ID: "3", Name: "Beta Industries"}},
	}, t0)

	assert.Equal(t, intake.AwaitingCompany, c.State)
	assert.Equal(t, intake.MsgCompanyNotFound, lastText(t, c))
	assert.Equal(t, 1, c.CompanyMisses)
	assert.False(t, c.AwaitingResponse)
	assert.Empty(t, c.Draft.Company)
}

func TestMachineLookupErrorStays(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c, _, _ := m.Receive(m.Start(t0), "Deal", t0)
	c, _, _ = m.Receive(c, "acme", t0)

	c = m.ResolveLookup(c, intake.LookupResult{Query: "acme", Err: errors.New("dial tcp: refused")}, t0)
	assert.Equal(t, intake.AwaitingCompany, c.State)
	assert.Equal(t, intake.MsgLookupError, lastText(t, c))
	assert.Zero(t, c.CompanyMisses)
}

func TestMachineRejectsTurnWhileAwaitingResponse(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c, _, _ := m.Receive(m.Start(t0), "Deal", t0)
	c, _, _ = m.Receive(c, "acme", t0)
	before := len(c.Transcript)

	got, eff, err := m.Receive(c, "another", t0)
	assert.ErrorIs(t, err, intake.ErrAwaitingResponse)
	assert.Nil(t, eff)
	assert.Len(t, got.Transcript, before)
}

func TestMachineEmptyInputReprompts(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c, eff, err := m.Receive(m.Start(t0), "   ", t0)
	require.NoError(t, err)
	assert.Nil(t, eff)
	assert.Equal(t, intake.AwaitingTitle, c.State)
	assert.Equal(t, intake.MsgTitleEmpty, lastText(t, c))
	require.Len(t, c.Transcript, 3, "user turn is recorded even when blank")
	assert.Equal(t, domain.SpeakerUser, c.Transcript[1].Speaker)
}

func TestMachineAmountPolicy(t *testing.T) {
	strict := intake.NewMachine(intake.DefaultPolicy())
	c, _, _ := strict.Receive(strict.Start(t0), "Deal", t0)
	c, _, _ = strict.Receive(c, "acme", t0)
	c = strict.ResolveLookup(c, intake.LookupResult{Query: "acme", Companies: []domain.Company{{ID: "1", Name: "ACME"}}}, t0)

	got, _, err := strict.Receive(c, "no numbers here", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingAmount, got.State)
	assert.Equal(t, intake.MsgAmountInvalid, lastText(t, got))

	got, _, err = strict.Receive(c, "$12,345.67 please", t0)
	require.NoError(t, err)
	require.NotNil(t, got.Draft.Amount)
	assert.InDelta(t, 12345.67, *got.Draft.Amount, 1e-9)

	lenient := intake.NewMachine(intake.Policy{})
	got, _, err = lenient.Receive(c, "no numbers here", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingStage, got.State)
	require.NotNil(t, got.Draft.Amount)
	assert.False(t, intake.IsFiniteAmount(*got.Draft.Amount))
}

func TestMachineStageAndDatePolicy(t *testing.T) {
	m := intake.NewMachine(intake.Policy{
		StrictAmount:      true,
		ValidateCloseDate: true,
		Stages:            []string{"Qualified", "Proposal"},
	})
	c, _, _ := m.Receive(m.Start(t0), "Deal", t0)
	c, _, _ = m.Receive(c, "acme", t0)
	c = m.ResolveLookup(c, intake.LookupResult{Query: "acme", Companies: []domain.Company{{ID: "1", Name: "acme"}}}, t0)
	c, _, _ = m.Receive(c, "100", t0)

	c, _, err := m.Receive(c, "won", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingStage, c.State)
	assert.Contains(t, lastText(t, c), "Qualified, Proposal")

	c, _, err = m.Receive(c, "proposal", t0)
	require.NoError(t, err)
	assert.Equal(t, "Proposal", c.Draft.Stage)

	c, _, err = m.Receive(c, "soon", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingCloseDate, c.State)
	assert.Equal(t, intake.MsgCloseDateInvalid, lastText(t, c))

	c, _, err = m.Receive(c, "2025-06-30", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingContacts, c.State)
}

func TestMachineSubmitBuildsRequest(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c := fillToContacts(t, m)

	c, eff, err := m.Receive(c, "3, 7, nine, 12", t0)
	require.NoError(t, err)
	submit, ok := eff.(intake.SubmitDeal)
	require.True(t, ok)

	assert.Equal(t, intake.Submitting, c.State)
	assert.Equal(t, intake.MsgCreating, lastText(t, c))
	assert.Equal(t, domain.DealRequest{
		Title:     "Q3 renewal",
		Company:   "42",
		Amount:    12000,
		Stage:     "proposal",
		CloseDate: "2025-03-31",
		Contacts:  []int{3, 7, 12},
	}, submit.Request)
}

func TestMachineSubmissionFailureKeepsDraft(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c := fillToContacts(t, m)
	draft := c.Draft

	c, _, err := m.Receive(c, "", t0)
	require.NoError(t, err)
	c = m.ResolveSubmission(c, intake.SubmissionResult{Err: errors.New("500")}, t0)

	assert.Equal(t, intake.AwaitingContacts, c.State)
	assert.Equal(t, intake.MsgCreateFailed, lastText(t, c))
	assert.Equal(t, draft, c.Draft)
	assert.Equal(t, 1, c.SubmitFailures)

	c, eff, err := m.Receive(c, "5", t0)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, eff.(intake.SubmitDeal).Request.Contacts)
}

func TestMachineSubmissionSuccessStartsOver(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c := fillToContacts(t, m)

	c, _, err := m.Receive(c, "", t0)
	require.NoError(t, err)
	c = m.ResolveSubmission(c, intake.SubmissionResult{Deal: &domain.CreatedDeal{ID: "99", Title: "Q3 renewal"}}, t0)

	assert.Equal(t, intake.Done, c.State)
	assert.Equal(t, intake.MsgCreated, lastText(t, c))
	assert.Equal(t, domain.DealDraft{}, c.Draft)

	c, _, err = m.Receive(c, "Next deal", t0)
	require.NoError(t, err)
	assert.Equal(t, intake.AwaitingCompany, c.State)
	assert.Equal(t, "Next deal", c.Draft.Title)
}

func TestMachineStateMatchesDraftAfterEveryTurn(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c := m.Start(t0)
	inputs := []string{"", "Deal", "", "acme", "abc", "10", "", "qualified", "", "2025-01-01", "1,2"}

	for _, in := range inputs {
		var (
			eff intake.Effect
			err error
		)
		c, eff, err = m.Receive(c, in, t0)
		require.NoError(t, err)
		switch e := eff.(type) {
		case intake.LookupCompany:
			c = m.ResolveLookup(c, intake.LookupResult{Query: e.Query, Companies: []domain.Company{{ID: "1", Name: "ACME"}}}, t0)
		case intake.SubmitDeal:
			c = m.ResolveSubmission(c, intake.SubmissionResult{Deal: &domain.CreatedDeal{ID: "1"}}, t0)
		}
		if c.State == intake.Done {
			assert.Equal(t, intake.AwaitingTitle, intake.StateFor(c.Draft), "after %q", in)
			continue
		}
		assert.Equal(t, intake.StateFor(c.Draft), c.State, "after %q", in)
	}
	assert.Equal(t, intake.Done, c.State)
}

func TestMachineReceiveLeavesInputUntouched(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c := m.Start(t0)
	before := len(c.Transcript)

	_, _, err := m.Receive(c, "Deal", t0)
	require.NoError(t, err)
	assert.Len(t, c.Transcript, before)
	assert.Equal(t, intake.AwaitingTitle, c.State)
}

func TestMachineResetBumpsGeneration(t *testing.T) {
	m := intake.NewMachine(intake.DefaultPolicy())
	c := fillToContacts(t, m)

	r := m.Reset(c, t0)
	assert.Equal(t, c.Generation+1, r.Generation)
	assert.Equal(t, intake.AwaitingTitle, r.State)
	assert.Equal(t, domain.DealDraft{}, r.Draft)
	require.Len(t, r.Transcript, 1)

	// A stale lookup result for a conversation not awaiting one is ignored.
	assert.Equal(t, r, m.ResolveLookup(r, intake.LookupResult{Query: "acme"}, t0))
}

func TestParseStateRoundTrip(t *testing.T) {
	for _, s := range intake.States() {
		got, ok := intake.ParseState(s.String())
		require.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := intake.ParseState("bogus")
	assert.False(t, ok)
}
