// Package bridge implements the ticket processor connecting Intercom
// conversations to Discord messages.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copperline/ticketbridge/config"
	"github.com/copperline/ticketbridge/discord"
	"github.com/copperline/ticketbridge/intercom"
	"github.com/copperline/ticketbridge/storage"
)

// DefaultCleanupAge is how old tickets must be before cleanup removes them.
const DefaultCleanupAge = 30 * 24 * time.Hour

// IntercomAPI is the slice of the Intercom client the bridge uses.
type IntercomAPI interface {
	Summary(ctx context.Context, conversationID string) (*intercom.Summary, error)
	OpenConversations(ctx context.Context) ([]intercom.Conversation, error)
	IsFresh(ctx context.Context, conversationID string) (bool, error)
	Reply(ctx context.Context, conversationID, body string) error
	Close(ctx context.Context, conversationID string) error
}

// DiscordAPI is the slice of the Discord client the bridge uses.
type DiscordAPI interface {
	CreateMessage(ctx context.Context, channelID string, msg discord.MessagePayload) (*discord.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	Messages(ctx context.Context, channelID string, limit int) ([]discord.Message, error)
	FollowUp(ctx context.Context, applicationID, token string, msg discord.MessagePayload) error
	EditOriginal(ctx context.Context, applicationID, token string, msg discord.MessagePayload) error
}

// TicketStore is the slice of the ticket store the bridge uses.
type TicketStore interface {
	Add(ctx context.Context, t *storage.Ticket) error
	UpdateStatus(ctx context.Context, id string, status storage.Status) error
	Get(ctx context.Context, id string) (*storage.Ticket, error)
	GetByConversation(ctx context.Context, conversationID string) (*storage.Ticket, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]storage.Ticket, error)
	CountByStatus(ctx context.Context) (map[storage.Status]int, error)
	PruneOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Bridge processes conversation events and Discord interactions.
type Bridge struct {
	intercom      IntercomAPI
	discord       DiscordAPI
	store         TicketStore
	channelID     string
	applicationID string
	logger        *slog.Logger
	metrics       *Metrics

	// quickReplies is swapped wholesale on config reload.
	mu           sync.RWMutex
	quickReplies []config.QuickReply

	// baseCtx bounds background work spawned outside any single request,
	// such as the deferred sync. Defaults to context.Background.
	baseCtx context.Context

	webhookActive bool
}

// Options configures a Bridge.
type Options struct {
	Intercom      IntercomAPI
	Discord       DiscordAPI
	Store         TicketStore
	ChannelID     string
	ApplicationID string
	QuickReplies  []config.QuickReply
	Logger        *slog.Logger
	// Registerer receives the bridge metrics. Nil disables registration.
	Registerer prometheus.Registerer
}

// New creates a Bridge.
func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		intercom:      opts.Intercom,
		discord:       opts.Discord,
		store:         opts.Store,
		channelID:     opts.ChannelID,
		applicationID: opts.ApplicationID,
		quickReplies:  opts.QuickReplies,
		logger:        logger,
		metrics:       NewMetrics(opts.Registerer),
	}
}

// SetBaseContext ties background work to ctx so process shutdown cancels
// it. Called once from serve before interactions are accepted.
func (b *Bridge) SetBaseContext(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseCtx = ctx
}

func (b *Bridge) baseContext() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.baseCtx == nil {
		return context.Background()
	}
	return b.baseCtx
}

// SetQuickReplies swaps the quick-reply set. Called by the config watcher.
func (b *Bridge) SetQuickReplies(replies []config.QuickReply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quickReplies = replies
}

// QuickReplies returns the current quick-reply set.
func (b *Bridge) QuickReplies() []config.QuickReply {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.quickReplies
}

// quickReply looks up a canned response by key.
func (b *Bridge) quickReply(key string) (config.QuickReply, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, qr := range b.quickReplies {
		if qr.Key == key {
			return qr, true
		}
	}
	return config.QuickReply{}, false
}

// SetWebhookActive records whether the webhook server is serving, for the
// status command.
func (b *Bridge) SetWebhookActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.webhookActive = active
}

// WebhookActive reports whether the webhook server is serving.
func (b *Bridge) WebhookActive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.webhookActive
}

// AnnounceStartup posts the startup embed to the ticket channel.
func (b *Bridge) AnnounceStartup(ctx context.Context) error {
	_, err := b.discord.CreateMessage(ctx, b.channelID, discord.MessagePayload{
		Embeds: []discord.Embed{discord.StartupEmbed()},
	})
	return err
}
