package speech

import "strings"

const transcribeInstruction = `
Transcribe the speech in this audio clip exactly as spoken.

Rules:
- Output only the transcript, on a single line.
- Do not add quotes, labels, punctuation that was not spoken, or commentary.
- Keep numbers, dates and names as the speaker said them (e.g. "12,000", "2025-03-31").
- If there is no intelligible speech, output nothing.
`

// CleanTranscript trims model output down to a single transcript line.
func CleanTranscript(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"“”")
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
