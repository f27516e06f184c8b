package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/copperline/ticketbridge/discord"
	"github.com/copperline/ticketbridge/storage"
)

// Slash command names.
const (
	CommandTickets    = "tickets"
	SubcommandSync    = "sync"
	SubcommandStatus  = "status"
	SubcommandCleanup = "cleanup"
)

// HandleInteraction dispatches a Discord interaction and returns the
// response to write back. It always produces a response; internal failures
// become ephemeral error messages so the invoking user sees something.
func (b *Bridge) HandleInteraction(ctx context.Context, ix *discord.Interaction) *discord.InteractionResponse {
	switch ix.Type {
	case discord.InteractionTypePing:
		return &discord.InteractionResponse{Type: discord.ResponseTypePong}
	case discord.InteractionTypeApplicationCommand:
		return b.handleCommand(ctx, ix)
	case discord.InteractionTypeMessageComponent:
		return b.handleComponent(ctx, ix)
	case discord.InteractionTypeModalSubmit:
		return b.handleModalSubmit(ctx, ix)
	default:
		b.logger.Warn("unsupported interaction type", "type", ix.Type)
		return discord.EphemeralErrorf("Unsupported interaction.")
	}
}

func (b *Bridge) handleComponent(ctx context.Context, ix *discord.Interaction) *discord.InteractionResponse {
	action, args := discord.ParseCustomID(ix.Data.CustomID)
	b.metrics.InteractionsTotal.WithLabelValues(action).Inc()

	switch action {
	case discord.ActionQuickReply:
		if len(args) < 2 {
			return discord.EphemeralErrorf("Malformed button. Try `/tickets sync` to refresh the channel.")
		}
		return b.handleQuickReply(ctx, ix, args[0], args[1])
	case discord.ActionCustomReply:
		if len(args) < 1 {
			return discord.EphemeralErrorf("Malformed button. Try `/tickets sync` to refresh the channel.")
		}
		return &discord.InteractionResponse{
			Type: discord.ResponseTypeModal,
			Data: discord.ReplyModal(args[0]),
		}
	case discord.ActionCloseTicket:
		if len(args) < 1 {
			return discord.EphemeralErrorf("Malformed button. Try `/tickets sync` to refresh the channel.")
		}
		return b.handleClose(ctx, ix, args[0])
	default:
		b.logger.Warn("unknown component action", "custom_id", ix.Data.CustomID)
		return discord.EphemeralErrorf("Unknown button action.")
	}
}

// handleQuickReply sends a canned response to the conversation behind a
// ticket button.
func (b *Bridge) handleQuickReply(ctx context.Context, ix *discord.Interaction, key, ticketID string) *discord.InteractionResponse {
	qr, ok := b.quickReply(key)
	if !ok {
		// The button predates a config reload that removed this reply.
		return discord.EphemeralErrorf("This quick reply is no longer configured. Use `/tickets sync` to refresh the channel.")
	}

	if err := b.intercom.Reply(ctx, ticketID, qr.Reply); err != nil {
		b.metrics.HandlerErrors.Inc()
		b.logger.Error("quick reply failed", "ticket_id", ticketID, "key", key, "error", err)
		return discord.EphemeralErrorf("Failed to send reply to Intercom. Please try again.")
	}

	if err := b.store.UpdateStatus(ctx, ticketID, storage.StatusReplied); err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.logger.Warn("could not update ticket status", "ticket_id", ticketID, "error", err)
	}

	if qr.CloseTicket {
		return b.closeTicket(ctx, ix, ticketID,
			fmt.Sprintf("✅ Reply sent and ticket closed.\n\n**Reply:** %s", qr.Reply))
	}

	return discord.EphemeralResponse(
		fmt.Sprintf("✅ Reply sent successfully!\n\n**Reply:** %s", qr.Reply),
		discord.ReplyEmbed(qr.Reply, ticketID),
	)
}

func (b *Bridge) handleClose(ctx context.Context, ix *discord.Interaction, ticketID string) *discord.InteractionResponse {
	return b.closeTicket(ctx, ix, ticketID, "✅ Ticket closed successfully!")
}

// closeTicket closes the Intercom conversation, removes the channel message
// and marks the ticket closed.
func (b *Bridge) closeTicket(ctx context.Context, ix *discord.Interaction, ticketID, confirmation string) *discord.InteractionResponse {
	if err := b.intercom.Close(ctx, ticketID); err != nil {
		b.metrics.HandlerErrors.Inc()
		b.logger.Error("close conversation failed", "ticket_id", ticketID, "error", err)
		return discord.EphemeralErrorf("Failed to close ticket in Intercom. Please try again.")
	}

	if err := b.store.UpdateStatus(ctx, ticketID, storage.StatusClosed); err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.logger.Warn("could not update ticket status", "ticket_id", ticketID, "error", err)
	}

	if ix.Message != nil {
		b.deleteTicketMessage(ctx, ix.Message.ID)
	}

	b.metrics.TicketsClosed.Inc()
	return discord.EphemeralResponse(confirmation)
}

// handleModalSubmit sends the custom reply typed into the modal.
func (b *Bridge) handleModalSubmit(ctx context.Context, ix *discord.Interaction) *discord.InteractionResponse {
	b.metrics.InteractionsTotal.WithLabelValues("modal").Inc()

	action, args := discord.ParseCustomID(ix.Data.CustomID)
	if action != discord.ActionCustomReply || len(args) < 1 {
		return discord.EphemeralErrorf("Unexpected modal submission.")
	}
	ticketID := args[0]

	replyText := ix.Data.TextInputValue(discord.ReplyInputID)
	if replyText == "" {
		return discord.EphemeralErrorf("Reply text is empty.")
	}

	if err := b.intercom.Reply(ctx, ticketID, replyText); err != nil {
		b.metrics.HandlerErrors.Inc()
		b.logger.Error("custom reply failed", "ticket_id", ticketID, "error", err)
		return discord.EphemeralErrorf("Failed to send reply to Intercom. Please try again.")
	}

	if err := b.store.UpdateStatus(ctx, ticketID, storage.StatusReplied); err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.logger.Warn("could not update ticket status", "ticket_id", ticketID, "error", err)
	}

	return discord.EphemeralResponse(
		fmt.Sprintf("✅ Custom reply sent successfully!\n\n**Reply:** %s", replyText),
		discord.ReplyEmbed(replyText, ticketID),
	)
}

func (b *Bridge) handleCommand(ctx context.Context, ix *discord.Interaction) *discord.InteractionResponse {
	if ix.Data.Name != CommandTickets {
		return discord.EphemeralErrorf("Unknown command: %s", ix.Data.Name)
	}

	sub := ix.Data.Subcommand()
	b.metrics.InteractionsTotal.WithLabelValues("command_" + sub).Inc()

	switch sub {
	case SubcommandStatus:
		return b.handleStatusCommand(ctx)
	case SubcommandCleanup:
		if !ix.Member.HasAdministrator() {
			return discord.EphemeralErrorf("You need administrator permissions to use this command.")
		}
		return b.handleCleanupCommand(ctx)
	case SubcommandSync:
		if !ix.Member.HasAdministrator() {
			return discord.EphemeralErrorf("You need administrator permissions to use this command.")
		}
		// Syncing purges the channel and reposts every fresh ticket, which
		// blows through the three-second response deadline. Acknowledge now
		// and report the result through the interaction token.
		go b.completeSync(ix)
		return &discord.InteractionResponse{Type: discord.ResponseTypeDeferredMessage}
	default:
		return discord.EphemeralErrorf("Unknown subcommand: %s", sub)
	}
}

func (b *Bridge) handleStatusCommand(ctx context.Context) *discord.InteractionResponse {
	status, err := b.Status(ctx)
	if err != nil {
		b.logger.Error("status command failed", "error", err)
		return discord.EphemeralErrorf("Error getting status: %v", err)
	}

	return &discord.InteractionResponse{
		Type: discord.ResponseTypeChannelMessage,
		Data: &discord.InteractionResponseData{
			Embeds: []discord.Embed{
				discord.StatusEmbed(status.Total, status.Open, status.Replied, status.Closed, status.WebhookActive),
			},
		},
	}
}

func (b *Bridge) handleCleanupCommand(ctx context.Context) *discord.InteractionResponse {
	removed, err := b.Cleanup(ctx, DefaultCleanupAge)
	if err != nil {
		b.logger.Error("cleanup command failed", "error", err)
		return discord.EphemeralErrorf("Error cleaning up tickets: %v", err)
	}
	return discord.EphemeralResponse(
		fmt.Sprintf("✅ Cleaned up %d tickets older than 30 days!", removed))
}

// interactionTokenTTL is how long Discord honors an interaction token after
// the deferred acknowledgement.
const interactionTokenTTL = 15 * time.Minute

// completeSync runs the channel sync in the background and reports the
// outcome through the deferred interaction response. The sync is bounded by
// the interaction token lifetime and by the bridge base context, so process
// shutdown cancels it rather than leaving it running mid-purge.
func (b *Bridge) completeSync(ix *discord.Interaction) {
	ctx, cancel := context.WithTimeout(b.baseContext(), interactionTokenTTL)
	defer cancel()

	posted, err := b.Sync(ctx)

	var msg discord.MessagePayload
	if err != nil {
		b.logger.Error("sync failed", "error", err)
		msg.Content = fmt.Sprintf("❌ Error syncing tickets: %v", err)
	} else {
		msg.Content = fmt.Sprintf("✅ Synced %d fresh tickets!", posted)
	}

	if err := b.discord.EditOriginal(ctx, b.applicationID, ix.Token, msg); err != nil {
		b.logger.Error("could not report sync result", "error", err)
	}
}
