package matrix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.MatrixConfig{
		HomeserverURL: server.URL,
		BotUserID:     "@triagebot:example.org",
		AccessToken:   "token-123",
		SyncTimeout:   5 * time.Second,
		PollInterval:  time.Second,
	})
}

func TestSendMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotContent map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotContent))
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "$ev1"})
	})

	eventID, err := client.SendMessage(context.Background(), "!room:example.org", "hello", "<b>hello</b>")
	require.NoError(t, err)
	assert.Equal(t, "$ev1", eventID)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.True(t, strings.HasPrefix(gotPath, "/_matrix/client/v3/rooms/"))
	assert.Contains(t, gotPath, "/send/m.room.message/")
	assert.Equal(t, "m.text", gotContent["msgtype"])
	assert.Equal(t, "hello", gotContent["body"])
	assert.Equal(t, "org.matrix.custom.html", gotContent["format"])
	assert.Equal(t, "<b>hello</b>", gotContent["formatted_body"])
}

func TestRedactEvent(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "$redaction"})
	})

	err := client.RedactEvent(context.Background(), "!room:example.org", "$target", "retention")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Contains(t, gotPath, "/redact/")
	assert.Contains(t, gotPath, "%24target")
}

func TestRateLimitError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errcode":"M_LIMIT_EXCEEDED","retry_after_ms":500}`))
	})

	_, err := client.SendMessage(context.Background(), "!room:example.org", "hello", "")
	require.Error(t, err)

	retryAfter, rateLimited := RetryAfterFromError(err)
	assert.True(t, rateLimited)
	assert.Equal(t, 500*time.Millisecond, retryAfter)
}

func TestNonRateLimitErrorIsNotRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errcode":"M_FORBIDDEN"}`))
	})

	err := client.RedactEvent(context.Background(), "!room:example.org", "$target", "")
	require.Error(t, err)
	_, rateLimited := RetryAfterFromError(err)
	assert.False(t, rateLimited)
}

func TestDownloadMedia(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_matrix/client/v1/media/download/example.org/media123", r.URL.Path)
		_, _ = w.Write([]byte("%PDF-1.7 payload"))
	})

	raw, err := client.DownloadMedia(context.Background(), "mxc://example.org/media123")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 payload", string(raw))
}

func TestDownloadMediaRejectsNonMxcURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.DownloadMedia(context.Background(), "https://example.org/file.pdf")
	assert.Error(t, err)
}

func TestSyncPassesSinceAndTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "batch-1", r.URL.Query().Get("since"))
		assert.Equal(t, "5000", r.URL.Query().Get("timeout"))
		_ = json.NewEncoder(w).Encode(map[string]any{"next_batch": "batch-2"})
	})

	response, err := client.Sync(context.Background(), "batch-1", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "batch-2", response.NextBatch)
}
