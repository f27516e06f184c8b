// Package intercom provides a client for the Intercom conversations API
// with retry support, plus the webhook notification types.
package intercom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// maxResponseSize limits API response bodies to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// openConversationsPerPage is the page size for listing open conversations.
const openConversationsPerPage = 50

// RetryConfig shapes the exponential backoff applied to transient request
// failures. Fatal errors bypass the loop entirely.
type RetryConfig struct {
	// MaxAttempts bounds how many times a single request is tried.
	MaxAttempts int

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration

	// BackoffMultiplier grows the delay between successive retries.
	BackoffMultiplier float64

	// MaxBackoff caps the delay regardless of attempt count.
	MaxBackoff time.Duration
}

// DefaultRetryConfig keeps a webhook handler from stalling for long: three
// attempts within roughly three seconds, with headroom up to fifteen for
// callers that raise MaxAttempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        15 * time.Second,
	}
}

// Client is an Intercom conversations API client with retry support.
type Client struct {
	baseURL     string
	accessToken string
	adminID     string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	converter   *md.Converter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
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
		client.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAdminID sets the admin that replies and closes are attributed to.
func WithAdminID(id string) ClientOption {
	return func(client *Client) {
		client.adminID = id
	}
}

// NewClient creates a new Intercom client.
func NewClient(accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     "https://api.intercom.io",
		accessToken: accessToken,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    slog.Default(),
		converter: md.NewConverter("", true, nil),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Conversation fetches a conversation by ID.
func (c *Client) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := c.get(ctx, "/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// OpenConversations lists all open conversations, following pagination.
func (c *Client) OpenConversations(ctx context.Context) ([]Conversation, error) {
	params := url.Values{
		"open":     {"true"},
		"per_page": {fmt.Sprintf("%d", openConversationsPerPage)},
	}

	var all []Conversation
	path := "/conversations"
	for {
		var page conversationList
		if err := c.get(ctx, path, params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Conversations...)

		next := page.Pages.Next
		if next == "" {
			return all, nil
		}

		// pages.next is an absolute URL; strip it back to a path so the
		// request goes through the configured base URL.
		u, err := url.Parse(next)
		if err != nil {
			return nil, NewFatalError(fmt.Errorf("parse next page URL %q: %w", next, err))
		}
		path = u.Path
		params = u.Query()
	}
}

// Reply posts an admin comment to a conversation.
func (c *Client) Reply(ctx context.Context, conversationID, body string) error {
	payload := map[string]any{
		"message_type": "comment",
		"type":         "admin",
		"body":         body,
	}
	if c.adminID != "" {
		payload["admin_id"] = c.adminID
	}
	return c.post(ctx, "/conversations/"+url.PathEscape(conversationID)+"/reply", payload, nil)
}

// Close closes a conversation.
func (c *Client) Close(ctx context.Context, conversationID string) error {
	payload := map[string]any{
		"message_type": "close",
		"type":         "admin",
	}
	if c.adminID != "" {
		payload["admin_id"] = c.adminID
	}
	return c.post(ctx, "/conversations/"+url.PathEscape(conversationID)+"/reply", payload, nil)
}

// Assign assigns a conversation to an admin.
func (c *Client) Assign(ctx context.Context, conversationID, adminID string) error {
	payload := map[string]any{
		"message_type": "assignment",
		"type":         "admin",
		"admin_id":     adminID,
	}
	return c.post(ctx, "/conversations/"+url.PathEscape(conversationID)+"/reply", payload, nil)
}

// Parts returns all messages of a conversation.
func (c *Client) Parts(ctx context.Context, conversationID string) ([]Part, error) {
	var resp partsResponse
	if err := c.get(ctx, "/conversations/"+url.PathEscape(conversationID)+"/parts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.ConversationParts, nil
}

// IsFresh reports whether a conversation has no admin replies yet.
func (c *Client) IsFresh(ctx context.Context, conversationID string) (bool, error) {
	parts, err := c.Parts(ctx, conversationID)
	if err != nil {
		return false, err
	}

	for _, part := range parts {
		if part.PartType == "comment" && part.Author.Type == "admin" {
			return false, nil
		}
	}
	return true, nil
}

// Summary fetches a conversation and condenses it for display. The initial
// message body is converted from Intercom's HTML to Markdown.
func (c *Client) Summary(ctx context.Context, conversationID string) (*Summary, error) {
	conv, err := c.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	fresh, err := c.IsFresh(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return &Summary{
		ID:        conv.ID.String(),
		Status:    conv.State,
		Subject:   conv.ConversationMessage.Subject,
		Body:      c.htmlToMarkdown(conv.ConversationMessage.Body),
		User:      conv.User,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Fresh:     fresh,
	}, nil
}

// htmlToMarkdown converts an Intercom HTML body for Discord display.
// Conversion failures fall back to the raw body.
func (c *Client) htmlToMarkdown(body string) string {
	if body == "" {
		return ""
	}
	out, err := c.converter.ConvertString(body)
	if err != nil {
		c.logger.Debug("HTML conversion failed, using raw body", "error", err)
		return body
	}
	return strings.TrimSpace(out)
}

// get performs a GET request with retry and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.doWithRetry(ctx, http.MethodGet, path, params, nil, out)
}

// post performs a POST request with retry.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return NewFatalError(fmt.Errorf("marshal request body: %w", err))
	}
	return c.doWithRetry(ctx, http.MethodPost, path, nil, body, out)
}

// doWithRetry attempts a request with retry logic.
func (c *Client) doWithRetry(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		err := c.doRequest(ctx, method, path, params, body, out)
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't retry fatal errors
		if IsFatal(err) || !IsTransient(err) {
			return err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("Intercom request failed, retrying",
				"method", method,
				"path", path,
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return fmt.Errorf("intercom %s %s: %w", method, path, ctx.Err())
			case <-time.After(backoff):
				// Continue to retry
			}
		}
	}

	return fmt.Errorf("intercom %s %s: %w", method, path, lastErr)
}

// calculateBackoff computes exponential backoff duration with jitter.
// Jitter prevents thundering herd when multiple requests retry simultaneously.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP request against the Intercom API.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors are transient
		return NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return classifyHTTPError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return NewFatalError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("intercom API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusNotFound:
		return NewFatalError(fmt.Errorf("%w: %s", ErrNotFound, bodyStr))
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		// Remaining 4xx errors indicate a bad request or credentials;
		// retrying won't help.
		return NewFatalError(err)
	}
}
