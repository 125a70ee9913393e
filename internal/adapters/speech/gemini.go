package speech

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

const defaultModel = "gemini-2.5-flash"

// GeminiRecognizer transcribes one audio clip with Gemini on Vertex AI.
type GeminiRecognizer struct {
	client    *genai.Client
	modelName string
}

// NewGeminiRecognizer creates a recognizer backed by Vertex AI.
func NewGeminiRecognizer(ctx context.Context, project, location, model string) (*GeminiRecognizer, error) {
	if project == "" || location == "" {
		return nil, fmt.Errorf("gcp project and location must be set for gemini speech")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &GeminiRecognizer{
		client:    client,
		modelName: model,
	}, nil
}

// Recognize implements domain.SpeechRecognizer. Only the final transcript
// is returned; there are no interim results.
func (g *GeminiRecognizer) Recognize(ctx context.Context, audio domain.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("empty audio clip")
	}
	mime := audio.MIMEType
	if mime == "" {
		mime = "audio/webm"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribeInstruction),
			genai.NewPartFromBytes(audio.Data, mime),
		}, genai.RoleUser),
	}

	temp := float32(0)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 512,
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}
	return CleanTranscript(res.Text()), nil
}
