package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/zombor/komunalka/internal/scanning"
)

// DefaultTelegramURL is the Bot API endpoint
const DefaultTelegramURL = "https://api.telegram.org"

// Telegram sends notifications through a Telegram bot
type Telegram struct {
	bot    *bot.Bot
	chatID string
}

// NewTelegram creates a Telegram notifier for the public Bot API
func NewTelegram(token, chatID string) (*Telegram, error) {
	return NewTelegramWithClient(DefaultTelegramURL, token, chatID, &http.Client{Timeout: 30 * time.Second})
}

// NewTelegramWithClient creates a Telegram notifier against a custom endpoint.
// No request is made until the first message is sent.
func NewTelegramWithClient(baseURL, token, chatID string, client *http.Client) (*Telegram, error) {
	b, err := bot.New(token,
		bot.WithServerURL(strings.TrimSuffix(baseURL, "/")),
		bot.WithHTTPClient(client.Timeout, client),
		bot.WithSkipGetMe(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

// NewReceipt sends the receipt announcement to the configured chat
func (t *Telegram) NewReceipt(ctx context.Context, data *scanning.ReceiptData) error {
	return t.Send(ctx, FormatMessage(data))
}

// Send posts text to the configured chat
func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	slog.Info("Telegram notification sent", "chat_id", t.chatID)
	return nil
}
