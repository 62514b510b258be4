package scanning

import (
	"fmt"
	"strings"
)

// transcriptionPrompt is the shared prompt used by all LLM providers for
// transcribing receipts
const transcriptionPrompt = `You are transcribing a scanned utility payment receipt. The text is mostly Ukrainian (Cyrillic) with some English labels.

Reproduce ALL text in the image exactly as printed:
- Keep the original language, spelling, punctuation and digits; do not translate.
- Keep one printed line per output line, in reading order.
- Keep labels and their values on the same line, e.g. "Сума: 150,50 UAH".
- Do not summarize, explain or add anything that is not printed.
- Do not use markdown code blocks.`

// parseTranscript cleans the raw text returned by a vision model
func parseTranscript(text string) (string, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```plaintext")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return "", fmt.Errorf("empty transcription")
	}
	return text, nil
}
