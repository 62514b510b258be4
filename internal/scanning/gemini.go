package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiOCR implements OCR by asking Google Gemini to transcribe the image
type GeminiOCR struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiOCR creates a new GeminiOCR instance
func NewGeminiOCR(apiKey string, modelName string) (*GeminiOCR, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	var temperature float32
	model.Temperature = &temperature

	return &GeminiOCR{
		client: client,
		model:  model,
	}, nil
}

// Recognize transcribes the receipt image. The model reads every script it
// knows, so languages only steer the prompt.
func (g *GeminiOCR) Recognize(ctx context.Context, pngData []byte, languages []string) (string, error) {
	prompt := transcriptionPrompt
	if len(languages) > 0 {
		prompt += "\nExpected languages (tesseract codes): " + strings.Join(languages, ", ")
	}

	// genai.ImageData expects just the format suffix (e.g., "png")
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(prompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return parseTranscript(responseText.String())
}

// Close closes the Gemini client
func (g *GeminiOCR) Close() error {
	return g.client.Close()
}
