// Package telegram is a minimal Bot API client for pushing notifications to
// a channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

const defaultBaseURL = "https://api.telegram.org"

// Client posts to one chat with one bot token. Messages are sent with HTML
// parse mode.
type Client struct {
	token   string
	chatID  int64
	baseURL string
	http    *http.Client
}

func New(token string, chatID int64) *Client {
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithURL points the client at a different API host, for tests.
func NewWithURL(token string, chatID int64, baseURL string) *Client {
	c := New(token, chatID)
	c.baseURL = baseURL
	return c
}

// Configured reports whether the client has credentials to send with.
func (c *Client) Configured() bool {
	return c.token != "" && c.chatID != 0
}

func (c *Client) SendMessage(ctx context.Context, html string) error {
	return c.post(ctx, "sendMessage", map[string]any{
		"chat_id":    c.chatID,
		"text":       html,
		"parse_mode": "HTML",
	})
}

func (c *Client) post(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: telegram %s: %v", core.ErrExternalFailure, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: telegram %s returned %d: %s",
			core.ErrExternalFailure, method, resp.StatusCode, detail)
	}
	return nil
}
