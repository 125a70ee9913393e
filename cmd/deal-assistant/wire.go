package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PabloGalante/deal-assistant/internal/adapters/chatapi"
	"github.com/PabloGalante/deal-assistant/internal/adapters/crmapi"
	"github.com/PabloGalante/deal-assistant/internal/adapters/speech"
	firestorestore "github.com/PabloGalante/deal-assistant/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/deal-assistant/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/deal-assistant/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/deal-assistant/internal/app/dealchat"
	"github.com/PabloGalante/deal-assistant/internal/app/intake"
	"github.com/PabloGalante/deal-assistant/internal/app/relay"
	"github.com/PabloGalante/deal-assistant/internal/app/sessions"
	"github.com/PabloGalante/deal-assistant/internal/config"
	"github.com/PabloGalante/deal-assistant/internal/domain"
	"github.com/PabloGalante/deal-assistant/internal/observability"
)

// app holds everything built from the config.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	sessions *sessions.Service
	// hosted is nil when no state secret is configured.
	hosted *dealchat.Service

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, log: observability.Setup(cfg.LogLevel)}
	metrics := observability.NewMetrics()

	crmOpts := []func(*crmapi.Client){crmapi.WithTimeout(cfg.CallTimeout)}
	if cfg.CRM.Token != "" {
		crmOpts = append(crmOpts, crmapi.WithToken(cfg.CRM.Token))
	}
	crm := crmapi.NewClient(cfg.CRM.BaseURL, crmOpts...)
	a.log.Info("crm client configured", "base_url", cfg.CRM.BaseURL)

	policy := intake.Policy{
		StrictAmount:      !cfg.Policy.LenientAmount,
		ValidateCloseDate: cfg.Policy.ValidateCloseDate,
		Stages:            cfg.Policy.Stages,
	}

	if cfg.StateSecret != "" {
		hosted, err := dealchat.NewService(crm, crm, []byte(cfg.StateSecret),
			dealchat.WithPolicy(policy),
			dealchat.WithStateTTL(cfg.StateTTL),
			dealchat.WithCallTimeout(cfg.CallTimeout),
			dealchat.WithMetrics(metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("deal chat: %w", err)
		}
		a.hosted = hosted
		a.log.Info("hosted deal chat enabled", "state_ttl", cfg.StateTTL)
	}

	var chat domain.ChatExchanger
	switch {
	case cfg.Chat.URL != "":
		chatOpts := []func(*chatapi.Client){chatapi.WithTimeout(cfg.CallTimeout)}
		if cfg.Chat.Token != "" {
			chatOpts = append(chatOpts, chatapi.WithToken(cfg.Chat.Token))
		}
		chat = chatapi.NewClient(cfg.Chat.URL, chatOpts...)
		a.log.Info("delegated variant uses remote chat", "url", cfg.Chat.URL)
	case a.hosted != nil:
		chat = a.hosted
		a.log.Info("delegated variant uses in-process chat")
	default:
		a.log.Warn("delegated variant disabled: set chat.url or state_secret")
	}

	recognizer, err := buildRecognizer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	archive, funnel, err := a.buildStorage(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.sessions = sessions.NewService(sessions.Deps{
		Companies:  crm,
		Deals:      crm,
		Chat:       chat,
		Recognizer: recognizer,
		Archive:    archive,
		Funnel:     funnel,
	},
		sessions.WithSessionTTL(cfg.SessionTTL),
		sessions.WithMetrics(metrics),
		sessions.WithIntakeOptions(intake.WithPolicy(policy), intake.WithCallTimeout(cfg.CallTimeout)),
		sessions.WithRelayOptions(relay.WithCallTimeout(cfg.CallTimeout)),
	)
	return a, nil
}

func buildRecognizer(ctx context.Context, cfg *config.Config) (domain.SpeechRecognizer, error) {
	switch cfg.Speech {
	case config.SpeechGemini:
		rec, err := speech.NewGeminiRecognizer(ctx, cfg.GCP.ProjectID, cfg.GCP.Location, cfg.GCP.ModelName)
		if err != nil {
			return nil, fmt.Errorf("error initializing Gemini recognizer: %w", err)
		}
		return rec, nil
	case config.SpeechMock:
		// Echoes the audio body as its transcript.
		return speech.NewStaticRecognizer(""), nil
	default:
		return nil, nil
	}
}

func (a *app) buildStorage(ctx context.Context, cfg *config.Config) (domain.ArchiveStore, domain.FunnelStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageFirestore:
		a.log.Info("using firestore storage", "project", cfg.GCP.ProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCP.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("error initializing Firestore store: %w", err)
		}
		a.closers = append(a.closers, fs.Close)
		// 1 store, implements 2 interfaces
		return fs, fs, nil

	case config.StorageSQLite:
		a.log.Info("using sqlite storage", "dsn", cfg.Storage.SQLite)
		db, err := sqlitestore.Open(cfg.Storage.SQLite)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening sqlite store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return db, db, nil

	default:
		a.log.Info("using in-memory storage")
		return memstore.NewArchiveStore(), memstore.NewFunnelStore(), nil
	}
}
