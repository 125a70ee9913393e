package speech

import (
	"context"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

// StaticRecognizer is a local recognizer for development. It returns Text
// for every clip, or the clip bytes themselves when Text is empty, which
// lets a client "speak" by posting plain text as audio.
type StaticRecognizer struct {
	Text string
}

func NewStaticRecognizer(text string) *StaticRecognizer {
	return &StaticRecognizer{Text: text}
}

func (s *StaticRecognizer) Recognize(_ context.Context, audio domain.Audio) (string, error) {
	if s.Text != "" {
		return s.Text, nil
	}
	return CleanTranscript(string(audio.Data)), nil
}
