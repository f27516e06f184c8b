package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/copperline/ticketbridge/discord"
	"github.com/copperline/ticketbridge/intercom"
	"github.com/copperline/ticketbridge/storage"
)

// HandleNotification processes one Intercom webhook notification. Errors
// returned from it are classified by the consumer: transient errors are
// redelivered, everything else is acked and dropped.
func (b *Bridge) HandleNotification(ctx context.Context, n intercom.Notification) error {
	b.metrics.NotificationsTotal.WithLabelValues(n.Topic).Inc()

	if n.Topic == intercom.TopicPing {
		b.logger.Debug("webhook ping received", "notification_id", n.ID)
		return nil
	}

	conversationID := n.ConversationID()
	if conversationID == "" {
		b.metrics.HandlerErrors.Inc()
		return fmt.Errorf("notification %s (%s): missing conversation id", n.ID, n.Topic)
	}

	logger := b.logger.With("topic", n.Topic, "conversation_id", conversationID)

	var err error
	switch n.Topic {
	case intercom.TopicUserCreated:
		err = b.handleNewTicket(ctx, conversationID)
	case intercom.TopicUserReplied:
		err = b.handleConversationUpdate(ctx, conversationID, storage.StatusUserReplied, true)
	case intercom.TopicAdminReplied:
		err = b.handleConversationUpdate(ctx, conversationID, storage.StatusAdminReplied, true)
	case intercom.TopicAdminClosed:
		err = b.handleConversationUpdate(ctx, conversationID, storage.StatusClosed, true)
	case intercom.TopicAdminAssigned:
		err = b.handleConversationUpdate(ctx, conversationID, storage.StatusAssigned, false)
	default:
		logger.Info("unhandled webhook topic")
		return nil
	}

	if err != nil {
		b.metrics.HandlerErrors.Inc()
		logger.Error("notification handling failed", "error", err)
		return err
	}
	return nil
}

// handleNewTicket posts a fresh conversation to the ticket channel and
// records it. Conversations that already have an admin reply are skipped.
func (b *Bridge) handleNewTicket(ctx context.Context, conversationID string) error {
	summary, err := b.intercom.Summary(ctx, conversationID)
	if err != nil {
		if errors.Is(err, intercom.ErrNotFound) {
			b.logger.Warn("conversation not found, dropping", "conversation_id", conversationID)
			return nil
		}
		return fmt.Errorf("fetch conversation summary: %w", err)
	}

	if !summary.Fresh {
		b.logger.Info("ticket already has admin replies, skipping",
			"conversation_id", conversationID)
		return nil
	}

	return b.postTicket(ctx, summary)
}

// postTicket sends the ticket embed with its action buttons and upserts the
// ticket row.
func (b *Bridge) postTicket(ctx context.Context, summary *intercom.Summary) error {
	msg, err := b.discord.CreateMessage(ctx, b.channelID, discord.MessagePayload{
		Embeds:     []discord.Embed{discord.TicketEmbed(summary)},
		Components: discord.TicketComponents(b.QuickReplies(), summary.ID),
	})
	if err != nil {
		return fmt.Errorf("post ticket to discord: %w", err)
	}

	if err := b.store.Add(ctx, &storage.Ticket{
		ID:               summary.ID,
		DiscordMessageID: msg.ID,
		Status:           storage.StatusOpen,
		ConversationID:   summary.ID,
	}); err != nil {
		return fmt.Errorf("record ticket: %w", err)
	}

	b.metrics.TicketsCreated.Inc()
	b.logger.Info("new ticket posted", "conversation_id", summary.ID, "message_id", msg.ID)
	return nil
}

// handleConversationUpdate transitions a known ticket to the given status,
// removing its channel message first when the ticket is no longer fresh.
func (b *Bridge) handleConversationUpdate(ctx context.Context, conversationID string, status storage.Status, deleteMessage bool) error {
	ticket, err := b.store.GetByConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.logger.Info("ticket not tracked, ignoring", "conversation_id", conversationID)
			return nil
		}
		return fmt.Errorf("look up ticket: %w", err)
	}

	if deleteMessage {
		b.deleteTicketMessage(ctx, ticket.DiscordMessageID)
	}

	if err := b.store.UpdateStatus(ctx, ticket.ID, status); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("update ticket status: %w", err)
	}

	if status == storage.StatusClosed {
		b.metrics.TicketsClosed.Inc()
	}
	return nil
}

// deleteTicketMessage removes a ticket message from the channel. A message
// deleted out of band is not an error.
func (b *Bridge) deleteTicketMessage(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	err := b.discord.DeleteMessage(ctx, b.channelID, messageID)
	if err != nil && !errors.Is(err, discord.ErrUnknownMessage) {
		b.logger.Warn("could not delete ticket message", "message_id", messageID, "error", err)
	}
}
