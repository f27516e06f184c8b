package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/copperline/ticketbridge/storage"
)

// purgeLimit caps how many channel messages a sync removes.
const purgeLimit = 100

// StatusReport summarizes tracked tickets for the status command.
type StatusReport struct {
	Total         int
	Open          int
	Replied       int
	Closed        int
	WebhookActive bool
}

// Sync reposts every fresh open Intercom conversation to the ticket channel.
// Existing channel messages are purged first so the channel mirrors the
// current queue. It returns the number of tickets posted.
func (b *Bridge) Sync(ctx context.Context) (int, error) {
	conversations, err := b.intercom.OpenConversations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open conversations: %w", err)
	}

	fresh := conversations[:0]
	for _, conv := range conversations {
		isFresh, err := b.intercom.IsFresh(ctx, conv.ID.String())
		if err != nil {
			b.logger.Warn("could not check freshness, skipping",
				"conversation_id", conv.ID.String(), "error", err)
			continue
		}
		if isFresh {
			fresh = append(fresh, conv)
		}
	}

	if err := b.purgeChannel(ctx); err != nil {
		return 0, fmt.Errorf("purge ticket channel: %w", err)
	}

	posted := 0
	for _, conv := range fresh {
		summary, err := b.intercom.Summary(ctx, conv.ID.String())
		if err != nil {
			b.logger.Warn("could not summarize conversation, skipping",
				"conversation_id", conv.ID.String(), "error", err)
			continue
		}
		if err := b.postTicket(ctx, summary); err != nil {
			b.logger.Warn("could not post ticket, skipping",
				"conversation_id", conv.ID.String(), "error", err)
			continue
		}
		posted++
	}

	b.logger.Info("sync complete", "fresh", len(fresh), "posted", posted)
	return posted, nil
}

// purgeChannel deletes recent messages from the ticket channel.
func (b *Bridge) purgeChannel(ctx context.Context) error {
	messages, err := b.discord.Messages(ctx, b.channelID, purgeLimit)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		b.deleteTicketMessage(ctx, msg.ID)
	}
	return nil
}

// Status returns ticket counts for the status command. Replied aggregates
// tickets answered from Discord and tickets answered directly in Intercom.
func (b *Bridge) Status(ctx context.Context) (*StatusReport, error) {
	counts, err := b.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}

	report := &StatusReport{
		Open:          counts[storage.StatusOpen],
		Replied:       counts[storage.StatusReplied] + counts[storage.StatusAdminReplied],
		Closed:        counts[storage.StatusClosed],
		WebhookActive: b.WebhookActive(),
	}
	for _, n := range counts {
		report.Total += n
	}
	return report, nil
}

// Cleanup removes tickets not updated within age and returns how many rows
// were pruned. A zero or negative age falls back to the default retention
// window.
func (b *Bridge) Cleanup(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		age = DefaultCleanupAge
	}
	removed, err := b.store.PruneOlderThan(ctx, age)
	if err != nil {
		return 0, fmt.Errorf("prune old tickets: %w", err)
	}
	b.logger.Info("cleanup complete", "age", age, "removed", removed)
	return removed, nil
}
