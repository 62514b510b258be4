package scanning

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceType is the utility category a payment belongs to
type ServiceType string

const (
	Electricity ServiceType = "electricity"
	Gas         ServiceType = "gas"
	Water       ServiceType = "water"
	Heating     ServiceType = "heating"
	Rent        ServiceType = "rent"
	Internet    ServiceType = "internet"
	Other       ServiceType = "other"
)

// ReceiptData contains the fields extracted from a payment receipt
type ReceiptData struct {
	ReceiptNumber     string              `json:"receipt_number"`
	PaymentDateTime   *time.Time          `json:"payment_datetime"`
	TotalAmount       decimal.NullDecimal `json:"total_amount"`
	TransferredAmount decimal.NullDecimal `json:"transferred_amount"`
	Commission        decimal.NullDecimal `json:"commission"`
	ServiceProvider   string              `json:"service_provider,omitempty"`
	ServiceType       ServiceType         `json:"service_type"`
	PayerName         string              `json:"payer_name,omitempty"`
	Address           string              `json:"address,omitempty"`
	BankTerminal      string              `json:"bank_terminal,omitempty"`
	SourcePath        string              `json:"source_path,omitempty"`
}

// Scanner turns a receipt document on disk into structured data
type Scanner interface {
	// Scan extracts receipt data from the file at path. It returns ErrNoText
	// when no text could be recovered from the document.
	Scan(ctx context.Context, path string) (*ReceiptData, error)
}
