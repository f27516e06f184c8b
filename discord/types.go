package discord

import "strconv"

// Interaction types (Discord developer docs, "interaction object").
const (
	InteractionTypePing               = 1
	InteractionTypeApplicationCommand = 2
	InteractionTypeMessageComponent   = 3
	InteractionTypeModalSubmit        = 5
)

// Interaction response types.
const (
	ResponseTypePong            = 1
	ResponseTypeChannelMessage  = 4
	ResponseTypeDeferredMessage = 5
	ResponseTypeModal           = 9
)

// Component types.
const (
	ComponentTypeActionRow = 1
	ComponentTypeButton    = 2
	ComponentTypeTextInput = 4
)

// Button styles.
const (
	ButtonStylePrimary   = 1
	ButtonStyleSecondary = 2
	ButtonStyleDanger    = 4
)

// Text input styles.
const (
	TextInputStyleShort     = 1
	TextInputStyleParagraph = 2
)

// MessageFlagEphemeral makes a response visible only to the invoking user.
const MessageFlagEphemeral = 1 << 6

// PermissionAdministrator is the administrator bit in a permission set.
const PermissionAdministrator = 1 << 3

// Embed limits enforced by the Discord API.
const (
	EmbedDescriptionLimit = 4096
	EmbedFieldValueLimit  = 1024
)

// Embed is a Discord message embed.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField is a named value inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the footer line of an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// Component is a message component: an action row, button, or text input.
type Component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Components []Component `json:"components,omitempty"`

	// Text input fields (modal components).
	Placeholder string `json:"placeholder,omitempty"`
	MinLength   int    `json:"min_length,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Value       string `json:"value,omitempty"`
}

// MessagePayload is the body for creating or editing a message.
type MessagePayload struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []Component `json:"components,omitempty"`
	Flags      int         `json:"flags,omitempty"`
}

// Message is a Discord message as returned by the API.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// Member is the guild member who triggered an interaction.
type Member struct {
	// Permissions is the member's computed permission bitfield, serialized
	// as a decimal string.
	Permissions string `json:"permissions"`
	User        User   `json:"user"`
}

// User is a Discord user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// HasAdministrator reports whether the member holds the administrator bit.
func (m *Member) HasAdministrator() bool {
	if m == nil {
		return false
	}
	perms, err := strconv.ParseUint(m.Permissions, 10, 64)
	if err != nil {
		return false
	}
	return perms&PermissionAdministrator != 0
}

// Interaction is an incoming interaction payload.
type Interaction struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Type          int             `json:"type"`
	Token         string          `json:"token"`
	Member        *Member         `json:"member"`
	Message       *Message        `json:"message"`
	Data          InteractionData `json:"data"`
}

// InteractionData carries the type-specific interaction payload.
type InteractionData struct {
	// CustomID is set for component and modal interactions.
	CustomID string `json:"custom_id"`
	// Name is the invoked command for application commands.
	Name string `json:"name"`
	// ComponentType is set for component interactions.
	ComponentType int `json:"component_type"`
	// Components holds submitted modal rows.
	Components []Component `json:"components"`
	// Options holds subcommands and arguments for application commands.
	Options []CommandOption `json:"options"`
}

// CommandOption is a slash-command subcommand or argument.
type CommandOption struct {
	Name    string          `json:"name"`
	Type    int             `json:"type"`
	Options []CommandOption `json:"options,omitempty"`
}

// Subcommand returns the name of the invoked subcommand, or "" when the
// command was invoked bare.
func (d InteractionData) Subcommand() string {
	if len(d.Options) == 0 {
		return ""
	}
	return d.Options[0].Name
}

// TextInputValue extracts the value of the modal text input with the given
// custom ID, searching submitted action rows.
func (d InteractionData) TextInputValue(customID string) string {
	for _, row := range d.Components {
		for _, comp := range row.Components {
			if comp.CustomID == customID {
				return comp.Value
			}
		}
	}
	return ""
}

// InteractionResponse is the body written back to Discord for an interaction.
type InteractionResponse struct {
	Type int                      `json:"type"`
	Data *InteractionResponseData `json:"data,omitempty"`
}

// InteractionResponseData is the message or modal attached to a response.
type InteractionResponseData struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []Component `json:"components,omitempty"`
	Flags      int         `json:"flags,omitempty"`

	// Modal fields.
	CustomID string `json:"custom_id,omitempty"`
	Title    string `json:"title,omitempty"`
}
