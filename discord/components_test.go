package discord

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/ticketbridge/config"
)

func TestBuildAndParseCustomID(t *testing.T) {
	id := BuildCustomID(ActionQuickReply, "out_of_stock", "12345")
	assert.Equal(t, "quick:out_of_stock:12345", id)

	action, args := ParseCustomID(id)
	assert.Equal(t, ActionQuickReply, action)
	assert.Equal(t, []string{"out_of_stock", "12345"}, args)

	action, args = ParseCustomID("close:99")
	assert.Equal(t, ActionCloseTicket, action)
	assert.Equal(t, []string{"99"}, args)
}

func TestTicketComponents_RowChunking(t *testing.T) {
	// Four quick replies + custom + close = six buttons = two rows.
	rows := TicketComponents(config.DefaultQuickReplies(), "t1")
	require.Len(t, rows, 2)
	assert.Len(t, rows[0].Components, 5)
	assert.Len(t, rows[1].Components, 1)

	for _, row := range rows {
		assert.Equal(t, ComponentTypeActionRow, row.Type)
	}

	first := rows[0].Components[0]
	assert.Equal(t, ComponentTypeButton, first.Type)
	assert.Equal(t, ButtonStylePrimary, first.Style)
	assert.Equal(t, "quick:no_robux:t1", first.CustomID)

	last := rows[1].Components[0]
	assert.Equal(t, ButtonStyleDanger, last.Style)
	assert.Equal(t, "close:t1", last.CustomID)
}

func TestReplyModal(t *testing.T) {
	modal := ReplyModal("t1")
	assert.Equal(t, "custom:t1", modal.CustomID)
	require.Len(t, modal.Components, 1)

	input := modal.Components[0].Components[0]
	assert.Equal(t, ComponentTypeTextInput, input.Type)
	assert.Equal(t, TextInputStyleParagraph, input.Style)
	assert.Equal(t, ReplyInputID, input.CustomID)
	assert.True(t, input.Required)
	assert.Equal(t, 1000, input.MaxLength)
}

func TestInteractionData_TextInputValue(t *testing.T) {
	data := InteractionData{
		Components: []Component{
			{
				Type: ComponentTypeActionRow,
				Components: []Component{
					{Type: ComponentTypeTextInput, CustomID: ReplyInputID, Value: "typed reply"},
				},
			},
		},
	}
	assert.Equal(t, "typed reply", data.TextInputValue(ReplyInputID))
	assert.Equal(t, "", data.TextInputValue("other"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	long := strings.Repeat("x", 5000)
	got := Truncate(long, EmbedDescriptionLimit)
	assert.Len(t, got, EmbedDescriptionLimit)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestTruncateMultibyte(t *testing.T) {
	// The cut must land on a rune boundary, never inside a multibyte
	// sequence.
	assert.Equal(t, "ab", Truncate("abé", 3))

	accented := strings.Repeat("é", 3000)
	got := Truncate(accented, EmbedDescriptionLimit)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), EmbedDescriptionLimit)
	assert.True(t, strings.HasSuffix(got, "..."))

	// Tiny limits still respect rune boundaries.
	for limit := 0; limit <= 4; limit++ {
		short := Truncate("héllo", limit)
		assert.True(t, utf8.ValidString(short), "limit %d", limit)
		assert.LessOrEqual(t, len(short), limit, "limit %d", limit)
	}
}

func TestInteractionVerifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	v, err := NewInteractionVerifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	body := []byte(`{"type":1}`)
	timestamp := "1700000000"
	sig := ed25519.Sign(priv, append([]byte(timestamp), body...))

	assert.True(t, v.Verify(timestamp, body, hex.EncodeToString(sig)))
	assert.False(t, v.Verify("1700000001", body, hex.EncodeToString(sig)))
	assert.False(t, v.Verify(timestamp, []byte("tampered"), hex.EncodeToString(sig)))
	assert.False(t, v.Verify(timestamp, body, "zz"))
}

func TestNewInteractionVerifier_BadKey(t *testing.T) {
	_, err := NewInteractionVerifier("not-hex")
	assert.Error(t, err)

	_, err = NewInteractionVerifier("abcd")
	assert.Error(t, err)
}

func TestTicketEmbed_Defaults(t *testing.T) {
	embed := TicketEmbed(&summaryFixture)
	assert.Equal(t, "🎫 New Ticket: Order issue", embed.Title)
	assert.Equal(t, ColorNewTicket, embed.Color)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "Ada (ada@example.com)", embed.Fields[0].Value)
	assert.Equal(t, "123", embed.Fields[1].Value)
	assert.Equal(t, "open", embed.Fields[2].Value)
}
