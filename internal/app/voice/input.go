package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/PabloGalante/deal-assistant/internal/domain"
	"github.com/PabloGalante/deal-assistant/internal/observability"
)

var (
	// ErrUnsupported means no speech recognizer is configured.
	ErrUnsupported = errors.New("voice: speech recognition not available")
	// ErrAlreadyListening is returned when a capture is already running.
	ErrAlreadyListening = errors.New("voice: already listening")
	// ErrNoSpeech means recognition produced an empty transcript.
	ErrNoSpeech = errors.New("voice: no speech recognized")
	// ErrBusy means an exchange was in flight; the transcript was dropped.
	ErrBusy = errors.New("voice: exchange in flight, transcript dropped")
)

// Target receives recognized transcripts as if they were typed.
type Target interface {
	Busy() bool
	SubmitText(ctx context.Context, text string) error
}

// Input runs single-shot recognitions for one conversation.
type Input struct {
	recognizer domain.SpeechRecognizer
	listening  atomic.Bool
}

// NewInput returns an Input. A nil recognizer makes every Capture fail with
// ErrUnsupported.
func NewInput(r domain.SpeechRecognizer) *Input {
	return &Input{recognizer: r}
}

func (in *Input) Supported() bool {
	return in.recognizer != nil
}

// Listening reports whether a recognition is running.
func (in *Input) Listening() bool {
	return in.listening.Load()
}

// Capture recognizes audio and submits the final transcript to target. The
// listening flag covers recognition only and never touches the conversation.
func (in *Input) Capture(ctx context.Context, audio domain.Audio, target Target) (string, error) {
	if in.recognizer == nil {
		return "", ErrUnsupported
	}
	if !in.listening.CompareAndSwap(false, true) {
		return "", ErrAlreadyListening
	}

	log := observability.LoggerFromContext(ctx)
	log.Info("voice capture started", "mime_type", audio.MIMEType, "bytes", len(audio.Data))

	transcript, err := in.recognizer.Recognize(ctx, audio)
	in.listening.Store(false)
	if err != nil {
		log.Error("speech recognition failed", "error", err)
		return "", fmt.Errorf("voice: recognize: %w", err)
	}

	if strings.TrimSpace(transcript) == "" {
		log.Info("voice capture produced no speech")
		return "", ErrNoSpeech
	}
	if target.Busy() {
		log.Info("voice transcript dropped, exchange in flight")
		return transcript, ErrBusy
	}
	if err := target.SubmitText(ctx, transcript); err != nil {
		return transcript, err
	}
	return transcript, nil
}
