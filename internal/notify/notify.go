// Package notify tells the household about newly stored receipts.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/komunalka/internal/scanning"
)

// Notifier announces a newly stored receipt
type Notifier interface {
	NewReceipt(ctx context.Context, data *scanning.ReceiptData) error
}

// Nop discards notifications
type Nop struct{}

// NewReceipt does nothing
func (Nop) NewReceipt(context.Context, *scanning.ReceiptData) error { return nil }

// New returns a Telegram notifier, or Nop when the bot is not configured
func New(token, chatID string) Notifier {
	if token == "" || chatID == "" {
		slog.Warn("Telegram token or chat id not provided, notifications disabled")
		return Nop{}
	}
	telegram, err := NewTelegram(token, chatID)
	if err != nil {
		slog.Warn("Telegram bot could not be created, notifications disabled", "error", err)
		return Nop{}
	}
	return telegram
}

const notAvailable = "N/A"

// FormatMessage renders the announcement for a new receipt
func FormatMessage(data *scanning.ReceiptData) string {
	provider := data.ServiceProvider
	if provider == "" {
		provider = notAvailable
	}

	amount := notAvailable
	if data.TotalAmount.Valid {
		amount = data.TotalAmount.Decimal.StringFixed(2)
	}

	paid := notAvailable
	if data.PaymentDateTime != nil {
		paid = data.PaymentDateTime.Format("2006-01-02 15:04:05")
	}

	return fmt.Sprintf("✅ Нова квитанція оброблена:\n🏢 Надавач: %s\n💰 Сума: %s UAH\n📅 Дата: %s",
		provider, amount, paid)
}
