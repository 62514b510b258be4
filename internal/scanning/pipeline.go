package scanning

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrNoText is returned when no text could be recovered from a document
var ErrNoText = errors.New("no text extracted")

// Extractor recovers raw text from a document on disk
type Extractor interface {
	Extract(ctx context.Context, path string) string
}

// Pipeline implements Scanner: text extraction, field extraction and
// identity resolution. It holds no per-call state and may be shared between
// goroutines.
type Pipeline struct {
	extractor Extractor
	fields    *FieldExtractor
}

// NewPipeline creates a Pipeline. A nil fields extractor selects DefaultRules.
func NewPipeline(extractor Extractor, fields *FieldExtractor) *Pipeline {
	if fields == nil {
		fields = defaultExtractor
	}
	return &Pipeline{extractor: extractor, fields: fields}
}

// Scan extracts receipt data from the document at path
func (p *Pipeline) Scan(ctx context.Context, path string) (*ReceiptData, error) {
	text := p.extractor.Extract(ctx, path)
	data, err := p.ParseText(text)
	if err != nil {
		slog.Warn("No text extracted", "path", path)
		return nil, err
	}
	data.SourcePath = path

	slog.Info("Extracted receipt",
		"path", path,
		"chars", len(text),
		"sample", sample(text, 100),
		"receipt_number", data.ReceiptNumber,
		"service_type", data.ServiceType,
	)
	return data, nil
}

// ParseText builds a receipt from already extracted text
func (p *Pipeline) ParseText(text string) (*ReceiptData, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}
	data := p.fields.Extract(text)
	data.ReceiptNumber = ResolveIdentity(data, text)
	return data, nil
}

func sample(text string, n int) string {
	r := []rune(strings.ReplaceAll(text, "\n", " "))
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
