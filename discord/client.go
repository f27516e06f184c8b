// Package discord provides a REST client for the Discord bot API and the
// interaction wire types for the HTTP interactions endpoint.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxResponseSize limits API response bodies.
const maxResponseSize = 8 * 1024 * 1024 // 8MB

// maxAttempts bounds retries on rate limits and server errors.
const maxAttempts = 3

// ErrUnknownMessage is returned when a message no longer exists.
var ErrUnknownMessage = errors.New("unknown message")

// Client is a Discord bot REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(u string) ClientOption {
	return func(client *Client) {
		client.baseURL = u
	}
}

// NewClient creates a Discord client authenticating with the given bot token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: "https://discord.com/api/v10",
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateMessage posts a message to a channel and returns it.
func (c *Client) CreateMessage(ctx context.Context, channelID string, msg MessagePayload) (*Message, error) {
	var created Message
	err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", msg, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteMessage removes a message. Deleting a message that is already gone
// returns ErrUnknownMessage.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID+"/messages/"+messageID, nil, nil)
}

// Messages returns up to limit recent messages from a channel, newest first.
func (c *Client) Messages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	path := "/channels/" + channelID + "/messages?limit=" + url.QueryEscape(strconv.Itoa(limit))
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// FollowUp sends a followup message for a deferred or completed interaction.
func (c *Client) FollowUp(ctx context.Context, applicationID, token string, msg MessagePayload) error {
	return c.do(ctx, http.MethodPost, "/webhooks/"+applicationID+"/"+token, msg, nil)
}

// EditOriginal edits the original response of an interaction. Used to fill
// in a deferred response once the work completes.
func (c *Client) EditOriginal(ctx context.Context, applicationID, token string, msg MessagePayload) error {
	return c.do(ctx, http.MethodPatch, "/webhooks/"+applicationID+"/"+token+"/messages/@original", msg, nil)
}

// do executes a request, retrying on rate limits and server errors.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryAfter, err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if retryAfter <= 0 || attempt == maxAttempts {
			return err
		}

		c.logger.Debug("Discord request rate limited or failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt,
			"retry_after", retryAfter,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
	}

	return lastErr
}

// doOnce executes a single request. A positive retryAfter indicates the
// request may be retried after that delay.
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) (time.Duration, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create HTTP request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Second, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return time.Second, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent:
		// fall through to decode below

	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s %s", ErrUnknownMessage, method, path)

	case resp.StatusCode == http.StatusTooManyRequests:
		return rateLimitDelay(resp, respBody), fmt.Errorf("discord rate limited: %s", truncateBody(respBody))

	case resp.StatusCode >= 500:
		return time.Second, fmt.Errorf("discord API error (status %d): %s", resp.StatusCode, truncateBody(respBody))

	default:
		return 0, fmt.Errorf("discord API error (status %d): %s", resp.StatusCode, truncateBody(respBody))
	}

	if out == nil {
		return 0, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return 0, nil
}

// rateLimitDelay extracts the wait hint from a 429 response.
func rateLimitDelay(resp *http.Response, body []byte) time.Duration {
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}

func truncateBody(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
