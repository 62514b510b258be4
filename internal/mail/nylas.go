package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultNylasURI is the US region of the Nylas v3 API
const DefaultNylasURI = "https://api.us.nylas.com"

// Nylas fetches attachments through the Nylas v3 REST API
type Nylas struct {
	baseURL string
	apiKey  string
	grantID string
	client  *http.Client
	store   Store
	opts    Options
}

// NewNylas creates a Nylas source. An empty baseURL uses DefaultNylasURI.
func NewNylas(baseURL, apiKey, grantID string, store Store, opts Options) *Nylas {
	return NewNylasWithClient(baseURL, apiKey, grantID, store, opts, &http.Client{Timeout: 60 * time.Second})
}

// NewNylasWithClient creates a Nylas source with a custom HTTP client
func NewNylasWithClient(baseURL, apiKey, grantID string, store Store, opts Options, client *http.Client) *Nylas {
	if baseURL == "" {
		baseURL = DefaultNylasURI
	}
	return &Nylas{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		grantID: grantID,
		client:  client,
		store:   store,
		opts:    opts.withDefaults(),
	}
}

type nylasAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type nylasMessage struct {
	ID          string            `json:"id"`
	Subject     string            `json:"subject"`
	Attachments []nylasAttachment `json:"attachments"`
}

type nylasMessagesResponse struct {
	RequestID  string         `json:"request_id"`
	Data       []nylasMessage `json:"data"`
	NextCursor string         `json:"next_cursor"`
}

type nylasErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch downloads the attachments of all matching messages
func (n *Nylas) Fetch(ctx context.Context) ([]string, error) {
	messages, err := n.listMessages(ctx)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, msg := range messages {
		for _, att := range msg.Attachments {
			if att.ID == "" || att.Filename == "" {
				continue
			}
			if !wanted(att.Filename, att.Size, n.opts.MinSize) {
				continue
			}

			name := uniqueName(msg.ID, att.Filename)
			if n.store.Exists(name) {
				slog.Info("Attachment already exists, skipping download", "filename", name)
				paths = append(paths, n.store.Path(name))
				continue
			}

			slog.Info("Downloading attachment", "filename", name, "size", att.Size)
			data, err := n.download(ctx, msg.ID, att.ID)
			if err != nil {
				slog.Error("Error downloading attachment", "filename", name, "error", err)
				continue
			}

			path, err := n.store.Save(name, data)
			if err != nil {
				return paths, fmt.Errorf("saving attachment %s: %w", name, err)
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (n *Nylas) listMessages(ctx context.Context) ([]nylasMessage, error) {
	var messages []nylasMessage
	cursor := ""
	for {
		q := url.Values{}
		q.Set("search_query_native", n.opts.Query)
		if cursor != "" {
			q.Set("page_token", cursor)
		}
		endpoint := fmt.Sprintf("%s/v3/grants/%s/messages?%s", n.baseURL, url.PathEscape(n.grantID), q.Encode())

		body, err := n.get(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}

		var page nylasMessagesResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling messages: %w", err)
		}
		messages = append(messages, page.Data...)

		if page.NextCursor == "" {
			return messages, nil
		}
		cursor = page.NextCursor
	}
}

func (n *Nylas) download(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	q := url.Values{}
	q.Set("message_id", messageID)
	endpoint := fmt.Sprintf("%s/v3/grants/%s/attachments/%s/download?%s",
		n.baseURL, url.PathEscape(n.grantID), url.PathEscape(attachmentID), q.Encode())
	return n.get(ctx, endpoint)
}

func (n *Nylas) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr nylasErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("nylas returned status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("nylas returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
