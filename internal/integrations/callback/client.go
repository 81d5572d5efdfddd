// Package callback reports concluded scam sessions to the external
// case-management system.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"honeypot-agent/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Payload is the final report for one session.
type Payload struct {
	SessionID              string                 `json:"sessionId"`
	ScamDetected           bool                   `json:"scamDetected"`
	TotalMessagesExchanged int                    `json:"totalMessagesExchanged"`
	ExtractedIntelligence  domain.IntelligenceSet `json:"extractedIntelligence"`
	AgentNotes             string                 `json:"agentNotes"`
}

// ErrNotScam is returned when asked to report a session without a confirmed scam.
var ErrNotScam = errors.New("callback: refusing to report a session without a confirmed scam")

// StatusError captures a non-200 response from the callback endpoint.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("callback: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts final reports to a webhook.
type Client struct {
	url        string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client posting to url.
func NewClient(url string, opts ...Option) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("callback: url must not be empty")
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Notify sends p and reports whether the endpoint accepted it. Only an HTTP
// 200 counts as success.
func (c *Client) Notify(ctx context.Context, p Payload) (bool, error) {
	if !p.ScamDetected {
		return false, ErrNotScam
	}

	body, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("callback: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("callback: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("callback: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return false, &StatusError{StatusCode: res.StatusCode, URL: c.url, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
	return true, nil
}
