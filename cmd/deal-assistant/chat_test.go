package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/deal-assistant/internal/app/intake"
	"github.com/PabloGalante/deal-assistant/internal/app/sessions"
	"github.com/PabloGalante/deal-assistant/internal/config"
	"github.com/PabloGalante/deal-assistant/internal/domain"
)

type directory []domain.Company

func (d directory) SearchCompanies(context.Context, string) ([]domain.Company, error) {
	return d, nil
}

type creator struct{}

func (creator) CreateDeal(_ context.Context, req domain.DealRequest) (*domain.CreatedDeal, error) {
	return &domain.CreatedDeal{ID: "77", Title: req.Title}, nil
}

func TestChatLoopCreatesDeal(t *testing.T) {
	svc := sessions.NewService(sessions.Deps{
		Companies: directory{{ID: "1", Name: "Acme"}},
		Deals:     creator{},
	})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader("Renewal\nacme\n5000\nproposal\n2025-06-30\n\n/quit\n"))
	cmd.SetOut(&out)

	require.NoError(t, chatLoop(cmd, svc, "cli", domain.VariantLocal))

	text := out.String()
	assert.Contains(t, text, intake.PromptTitle)
	assert.Contains(t, text, intake.PromptContacts)
	assert.Contains(t, text, intake.MsgCreated)
	assert.Contains(t, text, "(deal 77)")
	assert.NotContains(t, text, "Renewal\n", "user turns are not echoed")
}

func TestChatLoopReset(t *testing.T) {
	svc := sessions.NewService(sessions.Deps{Companies: directory{}, Deals: creator{}})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader("Renewal\n/reset\n"))
	cmd.SetOut(&out)

	require.NoError(t, chatLoop(cmd, svc, "cli", domain.VariantLocal))
	assert.Equal(t, 2, strings.Count(out.String(), intake.PromptTitle))
}

func TestBuildAppInMemory(t *testing.T) {
	cfg := config.Default()
	cfg.StateSecret = "secret"
	cfg.Speech = config.SpeechOff

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	assert.NotNil(t, a.hosted)
	out, err := a.sessions.StartSession(context.Background(), sessions.StartSessionInput{UserID: "u", Variant: domain.VariantDelegated})
	require.NoError(t, err)
	require.Len(t, out.Turns, 1)
	assert.Equal(t, intake.PromptTitle, out.Turns[0].Text)
}

func TestBuildAppSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageSQLite
	cfg.Storage.SQLite = ":memory:"

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Close())
}
