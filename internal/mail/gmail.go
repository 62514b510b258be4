package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// Gmail fetches attachments through the Gmail API
type Gmail struct {
	svc   *gmail.Service
	store Store
	opts  Options
}

// NewGmail authorizes with the OAuth client in credentialsPath and the user
// token in tokenPath. Refreshed tokens are written back to tokenPath.
func NewGmail(ctx context.Context, credentialsPath, tokenPath string, store Store, opts Options) (*Gmail, error) {
	credentials, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	config, err := google.ConfigFromJSON(credentials, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	token, err := loadToken(tokenPath)
	if err != nil {
		return nil, err
	}

	ts := &savingTokenSource{
		base: config.TokenSource(ctx, token),
		path: tokenPath,
		last: token.AccessToken,
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return NewGmailWithService(svc, store, opts), nil
}

// NewGmailWithService creates a Gmail source from a prepared service
func NewGmailWithService(svc *gmail.Service, store Store, opts Options) *Gmail {
	return &Gmail{svc: svc, store: store, opts: opts.withDefaults()}
}

// Fetch downloads the attachments of all matching messages
func (g *Gmail) Fetch(ctx context.Context) ([]string, error) {
	var ids []string
	err := g.svc.Users.Messages.List(gmailUser).Q(g.opts.Query).Pages(ctx, func(page *gmail.ListMessagesResponse) error {
		for _, m := range page.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	var paths []string
	for _, id := range ids {
		msg, err := g.svc.Users.Messages.Get(gmailUser, id).Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return paths, ctx.Err()
			}
			slog.Error("Error getting message", "message_id", id, "error", err)
			continue
		}

		for _, part := range attachmentParts(msg.Payload) {
			if !wanted(part.Filename, part.Body.Size, g.opts.MinSize) {
				continue
			}

			name := uniqueName(id, part.Filename)
			if g.store.Exists(name) {
				slog.Info("Attachment already exists, skipping download", "filename", name)
				paths = append(paths, g.store.Path(name))
				continue
			}

			slog.Info("Downloading attachment", "filename", name, "size", part.Body.Size)
			data, err := g.download(ctx, id, part.Body.AttachmentId)
			if err != nil {
				slog.Error("Error downloading attachment", "filename", name, "error", err)
				continue
			}

			path, err := g.store.Save(name, data)
			if err != nil {
				return paths, fmt.Errorf("saving attachment %s: %w", name, err)
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (g *Gmail) download(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := g.svc.Users.Messages.Attachments.Get(gmailUser, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting attachment: %w", err)
	}
	if att.Data == "" {
		return nil, errors.New("attachment has no data")
	}
	return decodeBase64URL(att.Data)
}

// attachmentParts walks the MIME tree and returns the parts that carry a
// named attachment
func attachmentParts(part *gmail.MessagePart) []*gmail.MessagePart {
	if part == nil {
		return nil
	}
	var parts []*gmail.MessagePart
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		parts = append(parts, part)
	}
	for _, child := range part.Parts {
		parts = append(parts, attachmentParts(child)...)
	}
	return parts
}

// decodeBase64URL accepts padded and unpadded URL-safe base64
func decodeBase64URL(s string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("decoding attachment: %w", err)
	}
	return data, nil
}

// tokenFile accepts both oauth2.Token JSON and google-auth authorized user
// files, which name the access token "token"
type tokenFile struct {
	oauth2.Token
	LegacyToken string `json:"token"`
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	token := tf.Token
	if token.AccessToken == "" {
		token.AccessToken = tf.LegacyToken
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("token %s has neither access nor refresh token", path)
	}
	return &token, nil
}

// savingTokenSource persists every newly issued access token
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken

	data, err := json.Marshal(token)
	if err != nil {
		slog.Warn("Error marshaling refreshed token", "error", err)
		return token, nil
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		slog.Warn("Error saving refreshed token", "path", s.path, "error", err)
	}
	return token, nil
}
