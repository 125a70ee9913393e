package domain

import "slices"

// Turn is one message in a conversation. Turns are never mutated once appended.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt Timestamp `json:"created_at"`
}

// Transcript is an append-only, ordered sequence of turns.
type Transcript []Turn

// Append returns a new transcript with t added. The receiver is left untouched,
// even when its backing array has spare capacity.
func (tr Transcript) Append(t ...Turn) Transcript {
	out := make(Transcript, 0, len(tr)+len(t))
	out = append(out, tr...)
	return append(out, t...)
}

// Since returns the turns appended after the first n.
func (tr Transcript) Since(n int) []Turn {
	if n >= len(tr) {
		return nil
	}
	return slices.Clone(tr[n:])
}

// Last returns the most recent turn, if any.
func (tr Transcript) Last() (Turn, bool) {
	if len(tr) == 0 {
		return Turn{}, false
	}
	return tr[len(tr)-1], true
}
