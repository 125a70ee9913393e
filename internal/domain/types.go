package domain

import "time"

type SessionID string
type UserID string

// CompanyRef is the backend identifier of a company, kept as text.
// Numeric ids are stored in their decimal form.
type CompanyRef string

type Speaker string

const (
	SpeakerAssistant Speaker = "assistant"
	SpeakerUser      Speaker = "user"
)

// Variant selects where slot-filling logic runs.
type Variant string

const (
	VariantLocal     Variant = "local"     // slot logic in-process
	VariantDelegated Variant = "delegated" // slot logic behind a remote chat endpoint
)

type Timestamp = time.Time
