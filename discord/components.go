package discord

import (
	"fmt"
	"strings"

	"github.com/copperline/ticketbridge/config"
)

// Custom ID actions for ticket message components.
const (
	ActionQuickReply  = "quick"
	ActionCustomReply = "custom"
	ActionCloseTicket = "close"
)

// ReplyInputID is the custom ID of the text input inside the reply modal.
const ReplyInputID = "reply_text"

// buttonsPerRow is the Discord limit on buttons in one action row.
const buttonsPerRow = 5

// BuildCustomID encodes an action and its arguments into a component custom ID.
func BuildCustomID(action string, args ...string) string {
	return strings.Join(append([]string{action}, args...), ":")
}

// ParseCustomID splits a component custom ID into action and arguments.
func ParseCustomID(customID string) (action string, args []string) {
	parts := strings.Split(customID, ":")
	return parts[0], parts[1:]
}

// TicketComponents builds the action rows attached to a ticket message:
// one button per quick reply, a custom-reply button, and a close button.
func TicketComponents(quickReplies []config.QuickReply, ticketID string) []Component {
	buttons := make([]Component, 0, len(quickReplies)+2)

	for _, qr := range quickReplies {
		buttons = append(buttons, Component{
			Type:     ComponentTypeButton,
			Style:    ButtonStylePrimary,
			Label:    Truncate(qr.Label, 80),
			CustomID: BuildCustomID(ActionQuickReply, qr.Key, ticketID),
		})
	}

	buttons = append(buttons,
		Component{
			Type:     ComponentTypeButton,
			Style:    ButtonStyleSecondary,
			Label:    "✏️ Custom Reply",
			CustomID: BuildCustomID(ActionCustomReply, ticketID),
		},
		Component{
			Type:     ComponentTypeButton,
			Style:    ButtonStyleDanger,
			Label:    "Close Ticket",
			CustomID: BuildCustomID(ActionCloseTicket, ticketID),
		},
	)

	var rows []Component
	for len(buttons) > 0 {
		n := min(buttonsPerRow, len(buttons))
		rows = append(rows, Component{
			Type:       ComponentTypeActionRow,
			Components: buttons[:n],
		})
		buttons = buttons[n:]
	}
	return rows
}

// ReplyModal builds the modal shown by the custom-reply button.
func ReplyModal(ticketID string) *InteractionResponseData {
	return &InteractionResponseData{
		CustomID: BuildCustomID(ActionCustomReply, ticketID),
		Title:    "Custom Reply",
		Components: []Component{
			{
				Type: ComponentTypeActionRow,
				Components: []Component{
					{
						Type:        ComponentTypeTextInput,
						Style:       TextInputStyleParagraph,
						CustomID:    ReplyInputID,
						Label:       "Your Reply",
						Placeholder: "Type your reply message here...",
						Required:    true,
						MaxLength:   1000,
					},
				},
			},
		},
	}
}

// EphemeralResponse builds a channel-message response only the invoking
// user can see.
func EphemeralResponse(content string, embeds ...Embed) *InteractionResponse {
	return &InteractionResponse{
		Type: ResponseTypeChannelMessage,
		Data: &InteractionResponseData{
			Content: content,
			Embeds:  embeds,
			Flags:   MessageFlagEphemeral,
		},
	}
}

// EphemeralErrorf builds an ephemeral error response.
func EphemeralErrorf(format string, args ...any) *InteractionResponse {
	return EphemeralResponse("❌ " + fmt.Sprintf(format, args...))
}
