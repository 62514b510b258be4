package scanning

import (
	"fmt"
)

// Engine names accepted by NewOCR
const (
	EngineTesseract = "tesseract"
	EngineGemini    = "gemini"
	EngineOllama    = "ollama"
	EngineNone      = "none"
)

// EngineConfig selects and configures the OCR engine
type EngineConfig struct {
	Engine string

	TessdataDir string

	GeminiKey   string
	GeminiModel string

	OllamaURL   string
	OllamaModel string
}

// NewOCR builds the configured OCR engine. EngineNone returns a nil OCR,
// which limits extraction to PDF text layers.
func NewOCR(cfg EngineConfig) (OCR, error) {
	switch cfg.Engine {
	case EngineTesseract, "":
		return NewTesseract(cfg.TessdataDir), nil
	case EngineGemini:
		return NewGeminiOCR(cfg.GeminiKey, cfg.GeminiModel)
	case EngineOllama:
		return NewOllamaOCR(cfg.OllamaURL, cfg.OllamaModel)
	case EngineNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q (valid: tesseract, gemini, ollama, none)", cfg.Engine)
	}
}

// NewScanner builds the standard pipeline around ocr
func NewScanner(ocr OCR, cfg ExtractorConfig) (*Pipeline, error) {
	fields, err := NewFieldExtractor(DefaultRules(), NewClassifier(DefaultBuckets()))
	if err != nil {
		return nil, fmt.Errorf("building field extractor: %w", err)
	}
	return NewPipeline(NewTextExtractor(ocr, cfg), fields), nil
}
