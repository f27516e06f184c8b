// Package webhook serves the HTTP surface of the bridge: the Intercom
// webhook receiver, the Discord interactions endpoint, health and metrics.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copperline/ticketbridge/discord"
	"github.com/copperline/ticketbridge/intercom"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Publisher hands incoming notifications to the event stream.
type Publisher interface {
	PublishNotification(ctx context.Context, n intercom.Notification) error
	Connected() bool
}

// InteractionHandler dispatches Discord interactions.
type InteractionHandler interface {
	HandleInteraction(ctx context.Context, ix *discord.Interaction) *discord.InteractionResponse
}

// Pinger checks that the ticket store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server carries the HTTP handlers.
type Server struct {
	publisher    Publisher
	interactions InteractionHandler
	store        Pinger
	verifier     *discord.InteractionVerifier
	// webhookSecret signs Intercom deliveries. Empty disables verification.
	webhookSecret string
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
}

// Options configures a Server.
type Options struct {
	Publisher     Publisher
	Interactions  InteractionHandler
	Store         Pinger
	Verifier      *discord.InteractionVerifier
	WebhookSecret string
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		publisher:     opts.Publisher,
		interactions:  opts.Interactions,
		store:         opts.Store,
		verifier:      opts.Verifier,
		webhookSecret: opts.WebhookSecret,
		gatherer:      opts.Gatherer,
		logger:        logger,
	}
}

// RegisterHTTPHandlers registers all bridge HTTP handlers under the given
// prefix. The prefix should be the path segment without a trailing slash
// (e.g. "webhook"). Handlers are registered as:
//
//	POST <prefix>/intercom
//	POST <prefix>/discord
//	GET  /healthz
//	GET  /metrics
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	// Normalise: ensure leading slash and trailing slash.
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"intercom", s.handleIntercom)
	mux.HandleFunc(prefix+"discord", s.handleDiscord)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// ----------------------------------------------------------------------------
// POST /webhook/intercom
// ----------------------------------------------------------------------------

// handleIntercom receives Intercom webhook deliveries and queues them on the
// event stream. Malformed payloads are answered with 200 so Intercom does not
// retry them; they can never succeed.
func (s *Server) handleIntercom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if s.webhookSecret != "" {
		signature := r.Header.Get(intercom.SignatureHeader)
		if !intercom.VerifySignature(s.webhookSecret, body, signature) {
			s.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var n intercom.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if n.Topic == "" || (n.Topic != intercom.TopicPing && n.ConversationID() == "") {
		writeJSON(w, http.StatusOK, map[string]string{"error": "Invalid webhook data"})
		return
	}

	if err := s.publisher.PublishNotification(r.Context(), n); err != nil {
		s.logger.Error("could not queue notification", "topic", n.Topic, "error", err)
		http.Error(w, "Failed to queue event", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// ----------------------------------------------------------------------------
// POST /webhook/discord
// ----------------------------------------------------------------------------

// handleDiscord receives interaction callbacks from Discord. Every request
// must carry a valid Ed25519 signature; Discord sends deliberately bad
// signatures during endpoint verification and expects a 401.
func (s *Server) handleDiscord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(discord.SignatureHeader)
	timestamp := r.Header.Get(discord.TimestampHeader)
	if !s.verifier.Verify(timestamp, body, signature) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var ix discord.Interaction
	if err := json.Unmarshal(body, &ix); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	resp := s.interactions.HandleInteraction(r.Context(), &ix)
	writeJSON(w, http.StatusOK, resp)
}

// ----------------------------------------------------------------------------
// GET /healthz
// ----------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type health struct {
		Status string `json:"status"`
		Bus    string `json:"bus"`
		Store  string `json:"store"`
	}

	h := health{Status: "ok", Bus: "connected", Store: "ok"}
	code := http.StatusOK

	if !s.publisher.Connected() {
		h.Status = "degraded"
		h.Bus = "disconnected"
		code = http.StatusServiceUnavailable
	}
	if err := s.store.Ping(r.Context()); err != nil {
		h.Status = "degraded"
		h.Store = err.Error()
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, h)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; log only.
		_ = err
	}
}
