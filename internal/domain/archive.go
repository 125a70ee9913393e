package domain

import "time"

// ArchiveEntryID identifies an archived conversation
type ArchiveEntryID string

// ArchiveEntry is the record kept after a conversation created a deal.
type ArchiveEntry struct {
	ID        ArchiveEntryID `json:"id"`
	SessionID SessionID      `json:"session_id"`
	UserID    UserID         `json:"user_id"`
	Variant   Variant        `json:"variant"`

	// Identifier returned by the CRM for the created deal
	DealID    string `json:"deal_id"`
	DealTitle string `json:"deal_title"`

	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}
