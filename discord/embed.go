package discord

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/copperline/ticketbridge/intercom"
)

// Embed colors used by the bridge.
const (
	ColorNewTicket = 0x00ff00
	ColorReply     = 0x0099ff
)

const footerText = "Intercom Ticket Bridge"

// TicketEmbed builds the embed posted for a fresh ticket.
func TicketEmbed(summary *intercom.Summary) Embed {
	subject := summary.Subject
	if subject == "" {
		subject = "No Subject"
	}
	body := summary.Body
	if body == "" {
		body = "No message content"
	}

	embed := Embed{
		Title:       "🎫 New Ticket: " + subject,
		Description: Truncate(body, EmbedDescriptionLimit),
		Color:       ColorNewTicket,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: footerText},
	}

	if summary.User.Name != "" || summary.User.Email != "" {
		name := summary.User.Name
		if name == "" {
			name = "Unknown"
		}
		email := summary.User.Email
		if email == "" {
			email = "No email"
		}
		embed.Fields = append(embed.Fields, EmbedField{
			Name:   "👤 User",
			Value:  Truncate(fmt.Sprintf("%s (%s)", name, email), EmbedFieldValueLimit),
			Inline: true,
		})
	}

	embed.Fields = append(embed.Fields,
		EmbedField{Name: "🆔 Conversation ID", Value: summary.ID, Inline: true},
		EmbedField{Name: "📊 Status", Value: orUnknown(summary.Status), Inline: true},
	)

	return embed
}

// ReplyEmbed builds the confirmation embed shown after a reply is sent.
func ReplyEmbed(replyText, conversationID string) Embed {
	return Embed{
		Title:       "💬 Reply Sent",
		Description: Truncate(replyText, EmbedDescriptionLimit),
		Color:       ColorReply,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []EmbedField{
			{Name: "🆔 Conversation ID", Value: conversationID},
		},
		Footer: &EmbedFooter{Text: footerText},
	}
}

// StartupEmbed builds the message announcing the bridge is online.
func StartupEmbed() Embed {
	return Embed{
		Title:       "🤖 Bridge Started",
		Description: "Intercom ticket bridge is online and listening for webhooks.",
		Color:       ColorNewTicket,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []EmbedField{
			{Name: "Commands", Value: "`/tickets sync`, `/tickets status`, `/tickets cleanup`"},
		},
		Footer: &EmbedFooter{Text: footerText},
	}
}

// StatusEmbed builds the ticket-count summary for the status command.
func StatusEmbed(total, open, replied, closed int, webhookActive bool) Embed {
	webhook := "🔴 Inactive"
	if webhookActive {
		webhook = "🟢 Active"
	}
	return Embed{
		Title:     "🤖 Bridge Status",
		Color:     ColorNewTicket,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields: []EmbedField{
			{Name: "📊 Total Tickets", Value: fmt.Sprintf("%d", total), Inline: true},
			{Name: "🆕 Open Tickets", Value: fmt.Sprintf("%d", open), Inline: true},
			{Name: "💬 Replied Tickets", Value: fmt.Sprintf("%d", replied), Inline: true},
			{Name: "✅ Closed Tickets", Value: fmt.Sprintf("%d", closed), Inline: true},
			{Name: "🌐 Webhook Status", Value: webhook, Inline: true},
		},
		Footer: &EmbedFooter{Text: footerText},
	}
}

// Truncate shortens s to at most limit bytes, marking the cut with an
// ellipsis the way the Discord client renders truncated content. The cut
// always lands on a rune boundary so multibyte content stays valid UTF-8.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return truncateRunes(s, limit)
	}
	return truncateRunes(s, limit-3) + "..."
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
