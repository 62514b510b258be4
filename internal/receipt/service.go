package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/komunalka/internal/scanning"
)

// DefaultRetention is how long receipts are kept after their payment date
const DefaultRetention = 365 * 24 * time.Hour

var (
	// ErrUnsupportedFile is returned when an uploaded file cannot be scanned
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrExpired is the skip reason for receipts older than the retention period
	ErrExpired = errors.New("receipt is past the retention period")
)

// IDGenerator generates unique prefixes for uploaded file names
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// MailSource downloads receipt attachments and returns their local paths
type MailSource interface {
	Fetch(ctx context.Context) ([]string, error)
}

// Notifier is told about every newly stored receipt
type Notifier interface {
	NewReceipt(ctx context.Context, data *scanning.ReceiptData) error
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

type nopNotifier struct{}

func (nopNotifier) NewReceipt(context.Context, *scanning.ReceiptData) error { return nil }

// Service handles receipt operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	mail        MailSource
	notifier    Notifier
	idGenerator IDGenerator
	timeSource  TimeSource
	retention   time.Duration

	// mu makes the duplicate check and the insert atomic
	mu sync.Mutex
}

// NewService creates a new Service with default ID generator and time source.
// mail and notifier may be nil.
func NewService(db DB, scanner scanning.Scanner, storage Storage, mail MailSource, notifier Notifier) *Service {
	return NewServiceWithDeps(db, scanner, storage, mail, notifier, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, mail MailSource, notifier Notifier, idGen IDGenerator, timeSrc TimeSource) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		mail:        mail,
		notifier:    notifier,
		idGenerator: idGen,
		timeSource:  timeSrc,
		retention:   DefaultRetention,
	}
}

// SetRetention changes how long receipts are kept by Cleanup
func (s *Service) SetRetention(d time.Duration) {
	if d > 0 {
		s.retention = d
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	// Remove special characters, keep only alphanumeric, spaces, hyphens, and underscores
	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = strings.TrimSpace(reg.ReplaceAllString(base, " "))

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// Ingest scans the document at path and stores it unless its receipt number
// is already known. Documents without text and receipts paid before the
// retention cutoff are skipped. Only storage failures are returned as errors.
func (s *Service) Ingest(ctx context.Context, path string) (IngestResult, error) {
	result := IngestResult{Path: path}

	data, err := s.scanner.Scan(ctx, path)
	if err != nil {
		if !errors.Is(err, scanning.ErrNoText) {
			slog.Error("Failed to scan receipt", "path", path, "error", err)
		}
		slog.Warn("Could not extract data", "path", path)
		result.Outcome = OutcomeSkipped
		result.Reason = err.Error()
		return result, nil
	}
	result.ReceiptNumber = data.ReceiptNumber

	if s.expired(data) {
		slog.Info("Receipt is past retention", "receipt_number", data.ReceiptNumber, "paid", data.PaymentDateTime)
		result.Outcome = OutcomeSkipped
		result.Reason = ErrExpired.Error()
		return result, nil
	}

	added, err := s.insert(path, data)
	if err != nil {
		return result, err
	}
	if !added {
		slog.Info("Receipt already exists", "receipt_number", data.ReceiptNumber, "path", path)
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	slog.Info("Receipt stored",
		"receipt_number", data.ReceiptNumber,
		"service_type", data.ServiceType,
		"total_amount", formatAmount(data.TotalAmount),
	)
	result.Outcome = OutcomeAdded

	// Notification failures never undo the insert
	if err := s.notifier.NewReceipt(ctx, data); err != nil {
		slog.Error("Failed to send notification", "receipt_number", data.ReceiptNumber, "error", err)
	}
	return result, nil
}

// expired reports whether Cleanup would delete the receipt right away
func (s *Service) expired(data *scanning.ReceiptData) bool {
	if data.PaymentDateTime == nil {
		return false
	}
	return data.PaymentDateTime.Before(s.cutoff(s.timeSource.Now()))
}

func (s *Service) cutoff(now time.Time) time.Time {
	return now.Add(-s.retention).UTC()
}

func (s *Service) insert(path string, data *scanning.ReceiptData) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.db.HasReceipt(data.ReceiptNumber)
	if err != nil {
		return false, fmt.Errorf("checking receipt %s: %w", data.ReceiptNumber, err)
	}
	if exists {
		return false, nil
	}

	receipt := &Receipt{
		ReceiptData:   *data,
		PaymentStatus: StatusSuccessful,
		ExtractedAt:   s.timeSource.Now().UTC(),
	}
	receipt.SourcePath = path

	if err := s.db.SaveReceipt(receipt); err != nil {
		return false, fmt.Errorf("saving receipt to database: %w", err)
	}
	return true, nil
}

// IngestFiles ingests every path in order
func (s *Service) IngestFiles(ctx context.Context, paths []string) (*ScanResult, error) {
	result := &ScanResult{Results: make([]IngestResult, 0, len(paths))}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		slog.Info("Analyzing file", "path", path)
		r, err := s.Ingest(ctx, path)
		if err != nil {
			return result, err
		}
		result.record(r)
	}
	return result, nil
}

// ScanMailbox downloads receipt attachments from the mail source and ingests them
func (s *Service) ScanMailbox(ctx context.Context) (*ScanResult, error) {
	if s.mail == nil {
		return nil, fmt.Errorf("no mail source configured")
	}

	paths, err := s.mail.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching mail: %w", err)
	}
	slog.Info("Fetched attachments", "count", len(paths))

	return s.IngestFiles(ctx, paths)
}

// ScanDirectory ingests every supported document already in storage
func (s *Service) ScanDirectory(ctx context.Context) (*ScanResult, error) {
	all, err := s.storage.List()
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}

	paths := make([]string, 0, len(all))
	for _, p := range all {
		if scanning.IsSupported(p) {
			paths = append(paths, p)
		}
	}

	return s.IngestFiles(ctx, paths)
}

// Upload stores an uploaded document under a unique name and ingests it. The
// stored copy is removed again unless the receipt was added.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (IngestResult, error) {
	if !scanning.IsSupported(filename) {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(filename))
	}

	name := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename))
	path, err := s.storage.Save(name, data)
	if err != nil {
		return IngestResult{}, fmt.Errorf("saving file: %w", err)
	}

	result, err := s.Ingest(ctx, path)
	if err != nil || result.Outcome != OutcomeAdded {
		if delErr := s.storage.Delete(name); delErr != nil {
			slog.Warn("Failed to delete file", "filename", name, "error", delErr)
		}
	}
	return result, err
}

// Cleanup deletes receipts paid longer than the retention period before now
func (s *Service) Cleanup(now time.Time) (int, error) {
	cutoff := s.cutoff(now)
	deleted, err := s.db.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old receipts: %w", err)
	}
	if deleted > 0 {
		slog.Info("Deleted old receipts", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// DailyScan scans the mailbox and then removes expired receipts. Cleanup
// runs even when the mailbox scan fails.
func (s *Service) DailyScan(ctx context.Context) error {
	slog.Info("Starting daily background scan")

	var scanErr error
	result, err := s.ScanMailbox(ctx)
	if err != nil {
		scanErr = fmt.Errorf("scanning mailbox: %w", err)
	} else {
		slog.Info("Daily scan finished", "added", result.Added, "duplicates", result.Duplicates, "skipped", result.Skipped)
	}

	_, cleanupErr := s.Cleanup(s.timeSource.Now())
	return errors.Join(scanErr, cleanupErr)
}

// GetReceipt retrieves a receipt by receipt number
func (s *Service) GetReceipt(number string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(number)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, newest payment first and undated last
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		a, b := receipts[i].PaymentDateTime, receipts[j].PaymentDateTime
		switch {
		case a == nil && b == nil:
			return receipts[i].ReceiptNumber < receipts[j].ReceiptNumber
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return receipts[i].ReceiptNumber < receipts[j].ReceiptNumber
		}
		return a.After(*b)
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(number string) error {
	receipt, err := s.db.GetReceipt(number)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if name := receipt.FileName(); name != "" && s.storage.Exists(name) {
		if err := s.storage.Delete(name); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", name, "error", err)
		}
	}

	if err := s.db.DeleteReceipt(number); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the document a receipt was scanned from and its file name
func (s *Service) GetReceiptFile(number string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(number)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	name := receipt.FileName()
	if name == "" {
		return nil, "", fmt.Errorf("receipt %s has no file", number)
	}

	data, err := s.storage.Get(name)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, name, nil
}

// Summary totals the stored receipts overall and per service type
func (s *Service) Summary() (*Summary, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	summary := &Summary{
		TotalSpent: decimal.Zero,
		Count:      len(receipts),
		Addresses:  []string{},
		ByType:     map[scanning.ServiceType]decimal.Decimal{},
	}

	seen := map[string]bool{}
	for _, r := range receipts {
		if r.TotalAmount.Valid {
			summary.TotalSpent = summary.TotalSpent.Add(r.TotalAmount.Decimal)
			summary.ByType[r.ServiceType] = summary.ByType[r.ServiceType].Add(r.TotalAmount.Decimal)
		}
		if r.Address != "" && !seen[r.Address] {
			seen[r.Address] = true
			summary.Addresses = append(summary.Addresses, r.Address)
		}
	}
	sort.Strings(summary.Addresses)

	return summary, nil
}

func formatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
