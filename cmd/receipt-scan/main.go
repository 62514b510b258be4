package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/komunalka/internal/scanning"
)

// result is printed for every scanned file
type result struct {
	Path    string                `json:"path"`
	Receipt *scanning.ReceiptData `json:"receipt,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func main() {
	fs := ff.NewFlagSet("receipt-scan")
	var (
		ocrEngine    = fs.StringLong("ocr", scanning.EngineTesseract, "OCR engine: 'tesseract', 'gemini', 'ollama' or 'none'")
		ocrLanguages = fs.StringLong("ocr-languages", strings.Join(scanning.DefaultLanguages, ","), "Comma-separated OCR languages")
		tessdata     = fs.StringLong("tessdata", "", "Tesseract tessdata directory")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		verbose      = fs.BoolLong("verbose", "Log extraction details to stderr")
	)

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("KOMUNALKA")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	paths := fs.GetArgs()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "usage: receipt-scan [flags] FILE...\n")
		os.Exit(2)
	}

	key := *geminiKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	ocr, err := scanning.NewOCR(scanning.EngineConfig{
		Engine:      *ocrEngine,
		TessdataDir: *tessdata,
		GeminiKey:   key,
		GeminiModel: *geminiModel,
		OllamaURL:   *ollamaURL,
		OllamaModel: *ollamaModel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closer, ok := ocr.(io.Closer); ok {
		defer closer.Close()
	}

	var languages []string
	for _, l := range strings.Split(*ocrLanguages, ",") {
		if l = strings.TrimSpace(l); l != "" {
			languages = append(languages, l)
		}
	}

	scanner, err := scanning.NewScanner(ocr, scanning.ExtractorConfig{Languages: languages})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if !scanAll(context.Background(), scanner, paths, os.Stdout) {
		os.Exit(1)
	}
}

// scanAll writes one JSON result per path and reports whether every file
// produced a receipt
func scanAll(ctx context.Context, scanner scanning.Scanner, paths []string, w io.Writer) bool {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	ok := true
	for _, path := range paths {
		r := result{Path: path}
		data, err := scanner.Scan(ctx, path)
		switch {
		case errors.Is(err, scanning.ErrNoText):
			r.Error = "no text could be extracted"
			ok = false
		case err != nil:
			r.Error = err.Error()
			ok = false
		default:
			r.Receipt = data
		}
		if err := enc.Encode(r); err != nil {
			slog.Error("Error encoding result", "path", path, "error", err)
			return false
		}
	}
	return ok
}
