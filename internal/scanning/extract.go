package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Extension kinds understood by the TextExtractor
const (
	kindPDF   = "pdf"
	kindImage = "image"
)

var supportedExtensions = map[string]string{
	".pdf":  kindPDF,
	".jpg":  kindImage,
	".jpeg": kindImage,
	".png":  kindImage,
	".heic": kindImage,
	".heif": kindImage,
}

// IsSupported reports whether files with this name can be scanned
func IsSupported(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ExtractorConfig configures a TextExtractor
type ExtractorConfig struct {
	// Languages passed to the OCR engine, DefaultLanguages when empty
	Languages []string
	// DPI used to render scanned PDF pages, 300 when zero
	DPI float64
	// MaxPages caps how many pages of a scanned PDF are OCRed, 0 = all
	MaxPages int
}

// TextExtractor recovers raw text from receipt documents: the embedded PDF
// text layer first, OCR otherwise.
type TextExtractor struct {
	ocr OCR
	cfg ExtractorConfig
}

// NewTextExtractor creates a TextExtractor. A nil OCR disables image
// recognition; such documents yield no text.
func NewTextExtractor(ocr OCR, cfg ExtractorConfig) *TextExtractor {
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultLanguages
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &TextExtractor{ocr: ocr, cfg: cfg}
}

// Extract returns the text of the document at path, or "" when nothing could
// be recovered. Errors are logged, never returned.
func (e *TextExtractor) Extract(ctx context.Context, path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	kind, ok := supportedExtensions[ext]
	if !ok {
		slog.Debug("Unsupported file extension", "path", path, "ext", ext)
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read document", "path", path, "error", err)
		return ""
	}

	var text string
	switch kind {
	case kindPDF:
		text, err = e.extractPDF(ctx, path, data)
	default:
		text, err = e.extractImage(ctx, data)
	}
	if err != nil {
		slog.Error("Failed to extract text", "path", path, "kind", kind, "error", err)
		return ""
	}
	return text
}

func (e *TextExtractor) extractPDF(ctx context.Context, path string, data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	text, err := pdfText(doc)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	slog.Info("No text layer found, falling back to OCR", "path", path, "pages", doc.NumPage())
	if e.ocr == nil {
		return "", nil
	}

	pages, err := pdfPagesToPNG(doc, e.cfg.DPI, e.cfg.MaxPages)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, page := range pages {
		pageText, err := e.ocr.Recognize(ctx, page, e.cfg.Languages)
		if err != nil {
			slog.Warn("OCR of page failed", "path", path, "page", i+1, "error", err)
			continue
		}
		if pageText != "" {
			b.WriteString(pageText)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func (e *TextExtractor) extractImage(ctx context.Context, data []byte) (string, error) {
	if e.ocr == nil {
		return "", fmt.Errorf("no OCR engine configured")
	}

	pngData, err := prepareImageData(data)
	if err != nil {
		return "", err
	}

	text, err := e.ocr.Recognize(ctx, pngData, e.cfg.Languages)
	if err != nil {
		return "", fmt.Errorf("OCR: %w", err)
	}
	return text, nil
}
