package webhook

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/ticketbridge/discord"
	"github.com/copperline/ticketbridge/intercom"
)

type fakePublisher struct {
	published []intercom.Notification
	err       error
	connected bool
}

func (f *fakePublisher) PublishNotification(_ context.Context, n intercom.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, n)
	return nil
}

func (f *fakePublisher) Connected() bool { return f.connected }

type fakeInteractions struct {
	last *discord.Interaction
	resp *discord.InteractionResponse
}

func (f *fakeInteractions) HandleInteraction(_ context.Context, ix *discord.Interaction) *discord.InteractionResponse {
	f.last = ix
	if f.resp != nil {
		return f.resp
	}
	return &discord.InteractionResponse{Type: discord.ResponseTypePong}
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type testServer struct {
	mux          *http.ServeMux
	publisher    *fakePublisher
	interactions *fakeInteractions
	pinger       *fakePinger
	privKey      ed25519.PrivateKey
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verifier, err := discord.NewInteractionVerifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	ts := &testServer{
		mux:          http.NewServeMux(),
		publisher:    &fakePublisher{connected: true},
		interactions: &fakeInteractions{},
		pinger:       &fakePinger{},
		privKey:      priv,
	}

	srv := NewServer(Options{
		Publisher:     ts.publisher,
		Interactions:  ts.interactions,
		Store:         ts.pinger,
		Verifier:      verifier,
		WebhookSecret: secret,
		Gatherer:      prometheus.NewRegistry(),
		Logger:        slog.New(slog.DiscardHandler),
	})
	srv.RegisterHTTPHandlers("webhook", ts.mux)
	return ts
}

func notificationBody(t *testing.T, topic, conversationID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":    "notif_1",
		"topic": topic,
		"data": map[string]any{
			"item": map[string]any{"id": conversationID},
		},
	})
	require.NoError(t, err)
	return body
}

func TestIntercomWebhookQueuesNotification(t *testing.T) {
	ts := newTestServer(t, "")
	body := notificationBody(t, "conversation.user.created", "42")

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"queued"}`, rec.Body.String())

	require.Len(t, ts.publisher.published, 1)
	assert.Equal(t, "conversation.user.created", ts.publisher.published[0].Topic)
	assert.Equal(t, "42", ts.publisher.published[0].ConversationID())
}

func TestIntercomWebhookVerifiesSignature(t *testing.T) {
	const secret = "hush"
	ts := newTestServer(t, secret)
	body := notificationBody(t, "conversation.user.created", "42")

	// No signature.
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong signature.
	req := httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader(body))
	req.Header.Set(intercom.SignatureHeader, "sha256=deadbeef")
	rec = httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid signature.
	req = httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader(body))
	req.Header.Set(intercom.SignatureHeader, intercom.Sign(secret, body))
	rec = httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.publisher.published, 1)
}

func TestIntercomWebhookRejectsBadJSON(t *testing.T) {
	ts := newTestServer(t, "")

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader([]byte("{not json"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntercomWebhookInvalidDataNotRetried(t *testing.T) {
	ts := newTestServer(t, "")

	// Missing topic: answered 200 so Intercom gives up on the delivery.
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader([]byte(`{"id":"n1"}`))))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid webhook data"}`, rec.Body.String())
	assert.Empty(t, ts.publisher.published)

	// Missing conversation ID.
	body := []byte(`{"id":"n1","topic":"conversation.user.created","data":{}}`)
	rec = httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid webhook data"}`, rec.Body.String())
}

func TestIntercomWebhookPingNeedsNoConversation(t *testing.T) {
	ts := newTestServer(t, "")

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader([]byte(`{"id":"n1","topic":"ping"}`))))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.publisher.published, 1)
}

func TestIntercomWebhookPublishFailure(t *testing.T) {
	ts := newTestServer(t, "")
	ts.publisher.err = errors.New("stream unavailable")

	body := notificationBody(t, "conversation.user.created", "42")
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/intercom", bytes.NewReader(body)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIntercomWebhookMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, "")

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/intercom", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func (ts *testServer) signedDiscordRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	timestamp := "1700000000"
	sig := ed25519.Sign(ts.privKey, append([]byte(timestamp), body...))

	req := httptest.NewRequest(http.MethodPost, "/webhook/discord", bytes.NewReader(body))
	req.Header.Set(discord.TimestampHeader, timestamp)
	req.Header.Set(discord.SignatureHeader, hex.EncodeToString(sig))
	return req
}

func TestDiscordEndpointDispatchesInteraction(t *testing.T) {
	ts := newTestServer(t, "")
	body, err := json.Marshal(discord.Interaction{Type: discord.InteractionTypePing})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, ts.signedDiscordRequest(t, body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp discord.InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, discord.ResponseTypePong, resp.Type)
	require.NotNil(t, ts.interactions.last)
	assert.Equal(t, discord.InteractionTypePing, ts.interactions.last.Type)
}

func TestDiscordEndpointRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t, "")
	body, err := json.Marshal(discord.Interaction{Type: discord.InteractionTypePing})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook/discord", bytes.NewReader(body))
	req.Header.Set(discord.TimestampHeader, "1700000000")
	req.Header.Set(discord.SignatureHeader, hex.EncodeToString(make([]byte, ed25519.SignatureSize)))

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, ts.interactions.last)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, "")

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthzDegraded(t *testing.T) {
	ts := newTestServer(t, "")
	ts.publisher.connected = false
	ts.pinger.err = errors.New("database is locked")

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bus":"disconnected"`)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
