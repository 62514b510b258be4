// Package mail downloads receipt attachments from a mailbox into the
// attachments directory.
package mail

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
)

// Query selects messages that are likely to carry receipts
const Query = "квитанція OR receipt OR платіж"

// DefaultMinSize is the size below which attachments are taken for logos and icons
const DefaultMinSize = 10000

// Source fetches receipt attachments and returns their local paths
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// Store is where downloaded attachments are kept
type Store interface {
	Exists(filename string) bool
	Save(filename string, data []byte) (string, error)
	Path(filename string) string
}

// Options tune which messages and attachments are fetched
type Options struct {
	// Query is the provider search expression, Query when empty
	Query string
	// MinSize skips attachments with a known size below it, DefaultMinSize when zero
	MinSize int64
}

func (o Options) withDefaults() Options {
	if o.Query == "" {
		o.Query = Query
	}
	if o.MinSize == 0 {
		o.MinSize = DefaultMinSize
	}
	return o
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
}

// wanted reports whether an attachment looks like a receipt document. A
// size of zero means unknown and is accepted.
func wanted(filename string, size, minSize int64) bool {
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return false
	}
	return size <= 0 || size >= minSize
}

// uniqueName prefixes filename with the start of the message id so that
// identically named attachments of different messages do not collide
func uniqueName(msgID, filename string) string {
	prefix := msgID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return prefix + "_" + filepath.Base(filename)
}

// Config selects and configures a mail provider
type Config struct {
	NylasAPIKey  string
	NylasGrantID string
	NylasAPIURI  string

	GmailCredentials string
	GmailToken       string

	Options Options
}

// ErrNotConfigured is returned when no provider can be built from the config
var ErrNotConfigured = errors.New("no mail provider configured")

// New returns the Nylas source when both its API key and grant id are set,
// the Gmail source otherwise
func New(ctx context.Context, cfg Config, store Store) (Source, error) {
	if cfg.NylasAPIKey != "" && cfg.NylasGrantID != "" {
		slog.Info("Using Nylas mail source", "api_uri", cfg.NylasAPIURI)
		return NewNylas(cfg.NylasAPIURI, cfg.NylasAPIKey, cfg.NylasGrantID, store, cfg.Options), nil
	}
	if cfg.GmailCredentials == "" {
		return nil, ErrNotConfigured
	}
	slog.Info("Using Gmail mail source", "credentials", cfg.GmailCredentials)
	return NewGmail(ctx, cfg.GmailCredentials, cfg.GmailToken, store, cfg.Options)
}
