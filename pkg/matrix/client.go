// Package matrix is a thin hand-written client for the Matrix
// client-server API, covering exactly what the triage flow needs: sending
// formatted messages and reactions, redacting events, downloading media,
// and the long-poll /sync stream the ingestor consumes.
package matrix

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
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/medops-br/triagebot/pkg/config"
)

// Client talks to one homeserver with one access token.
type Client struct {
	httpClient    *http.Client
	homeserverURL string
	accessToken   string
	botUserID     string
	logger        *slog.Logger

	// Observe, when set, is called once per API call with the operation
	// name and "success"/"error". Installed by the metrics wiring.
	Observe func(operation, outcome string)

	txnCounter atomic.Int64
}

// NewClient creates a client from the Matrix settings.
func NewClient(cfg config.MatrixConfig) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: cfg.SyncTimeout + 30*time.Second},
		homeserverURL: strings.TrimRight(cfg.HomeserverURL, "/"),
		accessToken:   cfg.AccessToken,
		botUserID:     cfg.BotUserID,
		logger:        slog.With("component", "matrix"),
	}
}

// BotUserID returns the user id this client authenticates as.
func (c *Client) BotUserID() string {
	return c.botUserID
}

// APIError is a non-2xx response from the homeserver. The body is kept
// verbatim so rate-limit metadata can be recovered from it.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("matrix API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether the homeserver asked us to back off.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

var retryAfterPattern = regexp.MustCompile(`"retry_after_ms"\s*:\s*([0-9]+)`)

// RetryAfter extracts the retry_after_ms hint from a rate-limit body.
// Returns zero when the body carries none.
func (e *APIError) RetryAfter() time.Duration {
	match := retryAfterPattern.FindStringSubmatch(e.Body)
	if match == nil {
		return 0
	}
	ms, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// SendMessage posts an m.room.message with a plaintext body and an HTML
// formatted body, returning the event id.
func (c *Client) SendMessage(ctx context.Context, roomID, body, htmlBody string) (string, error) {
	content := map[string]any{
		"msgtype": "m.text",
		"body":    body,
	}
	if htmlBody != "" {
		content["format"] = "org.matrix.custom.html"
		content["formatted_body"] = htmlBody
	}
	return c.sendEvent(ctx, "send_message", roomID, "m.room.message", content)
}

// SendReaction annotates an existing event with a reaction key.
func (c *Client) SendReaction(ctx context.Context, roomID, targetEventID, key string) (string, error) {
	content := map[string]any{
		"m.relates_to": map[string]any{
			"rel_type": "m.annotation",
			"event_id": targetEventID,
			"key":      key,
		},
	}
	return c.sendEvent(ctx, "send_reaction", roomID, "m.reaction", content)
}

// RedactEvent removes an event's content for everyone.
func (c *Client) RedactEvent(ctx context.Context, roomID, eventID, reason string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%d",
		url.PathEscape(roomID), url.PathEscape(eventID), c.nextTxnID())
	payload := map[string]any{}
	if reason != "" {
		payload["reason"] = reason
	}
	var response struct {
		EventID string `json:"event_id"`
	}
	return c.do(ctx, "redact_event", http.MethodPut, path, payload, &response)
}

// DownloadMedia fetches the bytes behind an mxc:// URL through the
// authenticated media endpoint.
func (c *Client) DownloadMedia(ctx context.Context, mxcURL string) ([]byte, error) {
	server, mediaID, err := splitMxcURL(mxcURL)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/_matrix/client/v1/media/download/%s/%s",
		url.PathEscape(server), url.PathEscape(mediaID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.homeserverURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("download_media", "error")
		return nil, fmt.Errorf("download media %s: %w", mxcURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("download_media", "error")
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.observe("download_media", "error")
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	c.observe("download_media", "success")
	return raw, nil
}

// Whoami verifies the access token and returns the authenticated user id.
func (c *Client) Whoami(ctx context.Context) (string, error) {
	var response struct {
		UserID string `json:"user_id"`
	}
	err := c.do(ctx, "whoami", http.MethodGet, "/_matrix/client/v3/account/whoami", nil, &response)
	if err != nil {
		return "", err
	}
	return response.UserID, nil
}

// Sync long-polls the event stream. An empty since token performs the
// initial sync, whose events the ingestor skips.
func (c *Client) Sync(ctx context.Context, since string, timeout time.Duration) (*SyncResponse, error) {
	query := url.Values{}
	query.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	if since != "" {
		query.Set("since", since)
	}
	var response SyncResponse
	err := c.do(ctx, "sync", http.MethodGet, "/_matrix/client/v3/sync?"+query.Encode(), nil, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) sendEvent(ctx context.Context, operation, roomID, eventType string, content map[string]any) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%d",
		url.PathEscape(roomID), url.PathEscape(eventType), c.nextTxnID())
	var response struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, operation, http.MethodPut, path, content, &response); err != nil {
		return "", err
	}
	return response.EventID, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.homeserverURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, "error")
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(operation, "error")
		return fmt.Errorf("read %s response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(operation, "error")
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			c.observe(operation, "error")
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	c.observe(operation, "success")
	return nil
}

func (c *Client) observe(operation, outcome string) {
	if c.Observe != nil {
		c.Observe(operation, outcome)
	}
}

// nextTxnID yields process-unique transaction ids so homeserver-side
// deduplication never collides within one run.
func (c *Client) nextTxnID() int64 {
	return time.Now().UnixMilli()*1000 + c.txnCounter.Add(1)%1000
}

func splitMxcURL(mxcURL string) (server, mediaID string, err error) {
	trimmed, ok := strings.CutPrefix(mxcURL, "mxc://")
	if !ok {
		return "", "", fmt.Errorf("not an mxc URL: %q", mxcURL)
	}
	server, mediaID, ok = strings.Cut(trimmed, "/")
	if !ok || server == "" || mediaID == "" {
		return "", "", fmt.Errorf("malformed mxc URL: %q", mxcURL)
	}
	return server, mediaID, nil
}

// RetryAfterFromError extracts the rate-limit hint from any error chain.
func RetryAfterFromError(err error) (time.Duration, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsRateLimited() {
		return 0, false
	}
	return apiErr.RetryAfter(), true
}
