package domain

import (
	"context"
	"encoding/json"
)

// CompanyDirectory searches CRM companies by a name fragment.
type CompanyDirectory interface {
	SearchCompanies(ctx context.Context, query string) ([]Company, error)
}

// DealCreator submits a complete deal to the CRM.
type DealCreator interface {
	CreateDeal(ctx context.Context, req DealRequest) (*CreatedDeal, error)
}

// ChatExchanger relays one delegated chat exchange. State is opaque to the
// caller and must be echoed back unmodified on the next call.
type ChatExchanger interface {
	Exchange(ctx context.Context, message string, state json.RawMessage) (*ChatReply, error)
}

// ChatReply is the remote side of one delegated exchange.
type ChatReply struct {
	AssistantMessage string
	State            json.RawMessage
}

// Audio is one captured utterance.
type Audio struct {
	Data     []byte
	MIMEType string // e.g., "audio/webm", "audio/wav"
}

// SpeechRecognizer turns a single utterance into its final transcript.
type SpeechRecognizer interface {
	Recognize(ctx context.Context, audio Audio) (string, error)
}

// ArchiveStore keeps transcripts of conversations that produced a deal.
type ArchiveStore interface {
	AppendArchiveEntry(ctx context.Context, entry *ArchiveEntry) error
	ListArchiveByUser(ctx context.Context, userID UserID, limit int) ([]*ArchiveEntry, error)
}

// FunnelStore counts how many sessions reached each conversation state.
type FunnelStore interface {
	Hit(ctx context.Context, sessionID SessionID, state string) error
	Counts(ctx context.Context) (map[string]int, error)
}
