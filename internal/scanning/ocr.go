package scanning

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguages are the OCR languages for Ukrainian receipts with English labels
var DefaultLanguages = []string{"ukr", "eng"}

// OCR recognizes text in a PNG image
type OCR interface {
	Recognize(ctx context.Context, pngData []byte, languages []string) (string, error)
}

// Tesseract implements OCR with a local tesseract installation. Calls are
// serialized since the underlying library is not reentrant.
type Tesseract struct {
	mu          sync.Mutex
	tessdataDir string
}

// NewTesseract creates a Tesseract engine. An empty tessdataDir uses the
// installation default.
func NewTesseract(tessdataDir string) *Tesseract {
	return &Tesseract{tessdataDir: tessdataDir}
}

// Recognize runs tesseract over the image
func (t *Tesseract) Recognize(ctx context.Context, pngData []byte, languages []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if t.tessdataDir != "" {
		if err := client.SetTessdataPrefix(t.tessdataDir); err != nil {
			return "", fmt.Errorf("setting tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(languages...); err != nil {
		return "", fmt.Errorf("setting languages: %w", err)
	}
	if err := client.SetImageFromBytes(pngData); err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return text, nil
}
