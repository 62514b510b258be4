package receipt

import (
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/komunalka/internal/scanning"
)

// StatusSuccessful is the payment status recorded for every ingested receipt
const StatusSuccessful = "successful"

// Receipt is a persisted utility payment receipt
type Receipt struct {
	scanning.ReceiptData

	PaymentStatus string    `json:"payment_status"`
	ExtractedAt   time.Time `json:"extracted_at"`
}

// FileName returns the attachment file name the receipt was scanned from
func (r *Receipt) FileName() string {
	if r.SourcePath == "" {
		return ""
	}
	return filepath.Base(r.SourcePath)
}

// Summary aggregates the stored receipts for the dashboard
type Summary struct {
	TotalSpent decimal.Decimal                          `json:"total_spent"`
	Count      int                                      `json:"count"`
	Addresses  []string                                 `json:"addresses"`
	ByType     map[scanning.ServiceType]decimal.Decimal `json:"by_type"`
}

// Outcome describes what happened to a single ingested document
type Outcome string

const (
	OutcomeAdded     Outcome = "added"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
)

// IngestResult is the result of ingesting one document
type IngestResult struct {
	Path          string  `json:"path"`
	Outcome       Outcome `json:"outcome"`
	ReceiptNumber string  `json:"receipt_number,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// ScanResult is the result of ingesting a batch of documents
type ScanResult struct {
	Added      int            `json:"added"`
	Duplicates int            `json:"duplicates"`
	Skipped    int            `json:"skipped"`
	Results    []IngestResult `json:"results"`
}

func (s *ScanResult) record(r IngestResult) {
	switch r.Outcome {
	case OutcomeAdded:
		s.Added++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeSkipped:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}
