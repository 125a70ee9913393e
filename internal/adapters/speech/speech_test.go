package speech_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/deal-assistant/internal/adapters/speech"
	"github.com/PabloGalante/deal-assistant/internal/domain"
)

func TestCleanTranscript(t *testing.T) {
	assert.Equal(t, "Acme Corp", speech.CleanTranscript("  \"Acme Corp\"\n"))
	assert.Equal(t, "first line", speech.CleanTranscript("first line\nsecond line"))
	assert.Equal(t, "", speech.CleanTranscript("   "))
}

func TestStaticRecognizer(t *testing.T) {
	fixed := speech.NewStaticRecognizer("proposal")
	got, err := fixed.Recognize(context.Background(), domain.Audio{Data: []byte("ignored")})
	require.NoError(t, err)
	assert.Equal(t, "proposal", got)

	echo := speech.NewStaticRecognizer("")
	got, err = echo.Recognize(context.Background(), domain.Audio{Data: []byte(" 2025-03-31 \n")})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-31", got)
}

func TestNewGeminiRecognizerNeedsProject(t *testing.T) {
	_, err := speech.NewGeminiRecognizer(context.Background(), "", "us-central1", "")
	assert.Error(t, err)
}

func TestRecognizersSatisfyPort(t *testing.T) {
	var _ domain.SpeechRecognizer = (*speech.GeminiRecognizer)(nil)
	var _ domain.SpeechRecognizer = (*speech.StaticRecognizer)(nil)
}
