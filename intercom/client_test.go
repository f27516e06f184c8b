package intercom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps retry tests quick.
var fastRetry = RetryConfig{
	MaxAttempts:       3,
	BackoffBase:       time.Millisecond,
	BackoffMultiplier: 1.0,
	MaxBackoff:        5 * time.Millisecond,
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token",
		WithBaseURL(srv.URL),
		WithRetryConfig(fastRetry),
		WithAdminID("admin-1"),
	)
}

func TestClient_Conversation(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/conversations/123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    123,
			"state": "open",
			"conversation_message": map[string]any{
				"subject": "Help",
				"body":    "<p>My order is missing</p>",
			},
			"user":       map[string]any{"name": "Ada", "email": "ada@example.com"},
			"created_at": 1700000000,
		})
	}))

	conv, err := c.Conversation(context.Background(), "123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "123", conv.ID.String()) // numeric ID accepted
	assert.Equal(t, "open", conv.State)
	assert.Equal(t, "Help", conv.ConversationMessage.Subject)
	assert.Equal(t, "Ada", conv.User.Name)
}

func TestClient_ConversationNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error.list"}`, http.StatusNotFound)
	}))

	_, err := c.Conversation(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsFatal(err))
}

func TestClient_OpenConversationsPagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			assert.Equal(t, "true", r.URL.Query().Get("open"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"conversations": []map[string]any{{"id": "1"}, {"id": "2"}},
				"pages":         map[string]any{"next": srvURL + "/conversations?page=2"},
			})
		case "2":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"conversations": []map[string]any{{"id": "3"}},
				"pages":         map[string]any{},
			})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c := NewClient("tok", WithBaseURL(srv.URL), WithRetryConfig(fastRetry))
	convs, err := c.OpenConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "3", convs[2].ID.String())
}

func TestClient_ReplyPayload(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/55/reply", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.Reply(context.Background(), "55", "On it!"))

	assert.Equal(t, "comment", got["message_type"])
	assert.Equal(t, "admin", got["type"])
	assert.Equal(t, "On it!", got["body"])
	assert.Equal(t, "admin-1", got["admin_id"])
}

func TestClient_ClosePayload(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.Close(context.Background(), "55"))

	assert.Equal(t, "close", got["message_type"])
	assert.Equal(t, "admin", got["type"])
	assert.NotContains(t, got, "body")
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "1"})
	}))

	conv, err := c.Conversation(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "1", conv.ID.String())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryFatalErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))

	_, err := c.Conversation(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_IsFresh(t *testing.T) {
	tests := []struct {
		name  string
		parts []map[string]any
		fresh bool
	}{
		{
			name:  "no parts",
			parts: nil,
			fresh: true,
		},
		{
			name: "only user comments",
			parts: []map[string]any{
				{"part_type": "comment", "author": map[string]any{"type": "user"}},
			},
			fresh: true,
		},
		{
			name: "admin comment",
			parts: []map[string]any{
				{"part_type": "comment", "author": map[string]any{"type": "user"}},
				{"part_type": "comment", "author": map[string]any{"type": "admin"}},
			},
			fresh: false,
		},
		{
			name: "admin non-comment part does not count",
			parts: []map[string]any{
				{"part_type": "assignment", "author": map[string]any{"type": "admin"}},
			},
			fresh: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"conversation_parts": tt.parts})
			}))

			fresh, err := c.IsFresh(context.Background(), "1")
			require.NoError(t, err)
			assert.Equal(t, tt.fresh, fresh)
		})
	}
}

func TestClient_SummaryConvertsHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations/7", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    7,
			"state": "open",
			"conversation_message": map[string]any{
				"subject": "Order",
				"body":    "<p>Hello <b>there</b></p>",
			},
		})
	})
	mux.HandleFunc("/conversations/7/parts", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"conversation_parts": []any{}})
	})

	c := newTestClient(t, mux)
	summary, err := c.Summary(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, "7", summary.ID)
	assert.True(t, summary.Fresh)
	assert.Equal(t, "Hello **there**", summary.Body)
}

func TestID_UnmarshalJSON(t *testing.T) {
	var v struct {
		ID ID `json:"id"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"id": "abc"}`), &v))
	assert.Equal(t, "abc", v.ID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"id": 42}`), &v))
	assert.Equal(t, "42", v.ID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"id": null}`), &v))
	assert.Equal(t, "", v.ID.String())
}

func TestNotification_ConversationID(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(`{"topic":"conversation.user.created","data":{"item":{"id":99}}}`), &n))
	assert.Equal(t, "99", n.ConversationID())

	// Older envelope shape with the ID directly on data.
	var legacy Notification
	require.NoError(t, json.Unmarshal([]byte(`{"topic":"conversation.user.replied","data":{"id":"7"}}`), &legacy))
	assert.Equal(t, "7", legacy.ConversationID())
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"topic":"ping"}`)
	sig := Sign("secret", body)

	assert.True(t, VerifySignature("secret", body, sig))
	assert.True(t, VerifySignature("secret", body, "sha256="+sig))
	assert.False(t, VerifySignature("secret", body, Sign("other", body)))
	assert.False(t, VerifySignature("secret", []byte("tampered"), sig))
	assert.False(t, VerifySignature("secret", body, "not-hex"))
}
