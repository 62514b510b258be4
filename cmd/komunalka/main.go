package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/komunalka/internal/mail"
	"github.com/zombor/komunalka/internal/notify"
	"github.com/zombor/komunalka/internal/receipt"
	"github.com/zombor/komunalka/internal/scanning"
	"github.com/zombor/komunalka/internal/scheduler"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("komunalka")
	var (
		port        = fs.IntLong("port", 8000, "HTTP server port")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		dbDriver    = fs.StringLong("db-driver", "sqlite", "Database driver: 'sqlite' or 'bolt'")
		dbPath      = fs.StringLong("db", "komunalka.db", "Database file path")
		storagePath = fs.StringLong("attachments", "./attachments", "Attachments directory path")
		retention   = fs.DurationLong("retention", receipt.DefaultRetention, "Delete receipts paid longer ago than this")
		scanHour    = fs.IntLong("scan-hour", 0, "Hour of the daily mailbox scan")
		scanMinute  = fs.IntLong("scan-minute", 0, "Minute of the daily mailbox scan")
		noSchedule  = fs.BoolLong("no-schedule", "Disable the daily mailbox scan")

		ocrEngine    = fs.StringLong("ocr", scanning.EngineTesseract, "OCR engine: 'tesseract', 'gemini', 'ollama' or 'none'")
		ocrLanguages = fs.StringLong("ocr-languages", strings.Join(scanning.DefaultLanguages, ","), "Comma-separated OCR languages")
		tessdata     = fs.StringLong("tessdata", "", "Tesseract tessdata directory (installation default when empty)")
		pdfDPI       = fs.Float64Long("pdf-dpi", 300, "Resolution used to render scanned PDF pages")
		pdfMaxPages  = fs.IntLong("pdf-max-pages", 0, "Maximum scanned PDF pages to OCR (0 = all)")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")

		mailQuery        = fs.StringLong("mail-query", mail.Query, "Mailbox search expression")
		minAttachment    = fs.StringLong("min-attachment-size", "10kB", "Skip attachments smaller than this (e.g. 10kB, 1MB)")
		gmailCredentials = fs.StringLong("gmail-credentials", "credentials.json", "Gmail OAuth client credentials file")
		gmailToken       = fs.StringLong("gmail-token", "token.json", "Gmail OAuth user token file")
		nylasKey         = fs.StringLong("nylas-api-key", "", "Nylas API key (or set NYLAS_API_KEY env var)")
		nylasGrant       = fs.StringLong("nylas-grant-id", "", "Nylas grant id (or set NYLAS_GRANT_ID env var)")
		nylasURI         = fs.StringLong("nylas-api-uri", "", "Nylas API URI (or set NYLAS_API_URI env var)")

		tgToken  = fs.StringLong("telegram-token", "", "Telegram bot token (or set TG_TOKEN env var)")
		tgChatID = fs.StringLong("telegram-chat-id", "", "Telegram chat id (or set TG_CHAT_ID env var)")

		authUser = fs.StringLong("auth-user", "", "Basic auth username (or set APP_USERNAME env var, default admin)")
		authPass = fs.StringLong("auth-pass", "", "Basic auth password (or set APP_PASSWORD env var, default admin)")

		_           = fs.StringLong("config", "", "Config file (flag per line)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("KOMUNALKA"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(os.Stderr, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	minSize, err := units.FromHumanSize(*minAttachment)
	if err != nil {
		slog.Error("Invalid minimum attachment size", "value", *minAttachment, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...", "driver", *dbDriver, "path", *dbPath)
	db, err := openDB(*dbDriver, *dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize OCR engine and scanner
	slog.Info("Initializing OCR engine...", "engine", *ocrEngine)
	ocr, err := scanning.NewOCR(scanning.EngineConfig{
		Engine:      *ocrEngine,
		TessdataDir: *tessdata,
		GeminiKey:   fallback(*geminiKey, "GEMINI_API_KEY", ""),
		GeminiModel: *geminiModel,
		OllamaURL:   *ollamaURL,
		OllamaModel: *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize OCR engine", "error", err)
		os.Exit(1)
	}
	if closer, ok := ocr.(io.Closer); ok {
		defer closer.Close()
	}

	scanner, err := scanning.NewScanner(ocr, scanning.ExtractorConfig{
		Languages: splitList(*ocrLanguages),
		DPI:       *pdfDPI,
		MaxPages:  *pdfMaxPages,
	})
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		os.Exit(1)
	}

	// Initialize mail source
	var source receipt.MailSource
	mailSource, err := mail.New(ctx, mail.Config{
		NylasAPIKey:      fallback(*nylasKey, "NYLAS_API_KEY", ""),
		NylasGrantID:     fallback(*nylasGrant, "NYLAS_GRANT_ID", ""),
		NylasAPIURI:      fallback(*nylasURI, "NYLAS_API_URI", mail.DefaultNylasURI),
		GmailCredentials: *gmailCredentials,
		GmailToken:       *gmailToken,
		Options:          mail.Options{Query: *mailQuery, MinSize: minSize},
	}, store)
	if err != nil {
		slog.Warn("Mail source unavailable, mailbox scans disabled", "error", err)
	} else {
		source = mailSource
	}

	notifier := notify.New(fallback(*tgToken, "TG_TOKEN", ""), fallback(*tgChatID, "TG_CHAT_ID", ""))

	// Initialize service
	receiptService := receipt.NewService(db, scanner, store, source, notifier)
	receiptService.SetRetention(*retention)

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: fallback(*authUser, "APP_USERNAME", "admin"),
		Password: fallback(*authPass, "APP_PASSWORD", "admin"),
	}
	server := receipt.NewServer(receiptService, basicAuth)

	if !*noSchedule {
		daily := scheduler.Midnight("daily-scan", receiptService.DailyScan)
		daily.Hour = *scanHour
		daily.Minute = *scanMinute
		go func() {
			if err := daily.Run(ctx); err != nil {
				slog.Error("Scheduler failed", "error", err)
			}
		}()
		slog.Info("Background scheduler started", "hour", *scanHour, "minute", *scanMinute)
	}

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "user", basicAuth.Username)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

func openDB(driver, path string) (receipt.DB, error) {
	switch driver {
	case "sqlite":
		return receipt.NewSQLiteDB(path)
	case "bolt":
		return receipt.NewBoltDB(path)
	default:
		return nil, fmt.Errorf("invalid database driver %q (valid: sqlite, bolt)", driver)
	}
}

// fallback returns value, else the named legacy environment variable, else def
func fallback(value, env, def string) string {
	if value != "" {
		return value
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setupLogging(w io.Writer, level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})))
	return nil
}
