package intercom

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an Intercom object identifier. The API serializes IDs as strings in
// some payloads and as bare numbers in others, so it unmarshals from either.
type ID string

// UnmarshalJSON accepts both "123" and 123.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// User is the end user who opened a conversation.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ConversationMessage is the initial message of a conversation.
type ConversationMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Conversation is an Intercom conversation as returned by the API.
type Conversation struct {
	ID                  ID                  `json:"id"`
	State               string              `json:"state"`
	ConversationMessage ConversationMessage `json:"conversation_message"`
	User                User                `json:"user"`
	CreatedAt           int64               `json:"created_at"`
	UpdatedAt           int64               `json:"updated_at"`
}

// Part is a single message within a conversation.
type Part struct {
	PartType string `json:"part_type"`
	Body     string `json:"body"`
	Author   Author `json:"author"`
}

// Author identifies who wrote a conversation part.
type Author struct {
	Type string `json:"type"` // "user", "admin", "bot"
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// conversationList is the response shape of GET /conversations.
type conversationList struct {
	Conversations []Conversation `json:"conversations"`
	Pages         struct {
		Next string `json:"next"`
	} `json:"pages"`
}

// partsResponse is the response shape of GET /conversations/{id}/parts.
type partsResponse struct {
	ConversationParts []Part `json:"conversation_parts"`
}

// Summary condenses a conversation for display.
type Summary struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Subject string `json:"subject"`
	// Body is the initial message converted from Intercom HTML to Markdown.
	Body      string `json:"body"`
	User      User   `json:"user"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	// Fresh is true when no admin has replied yet.
	Fresh bool `json:"is_fresh"`
}

// Webhook topics the bridge subscribes to.
const (
	TopicUserCreated   = "conversation.user.created"
	TopicUserReplied   = "conversation.user.replied"
	TopicAdminReplied  = "conversation.admin.replied"
	TopicAdminClosed   = "conversation.admin.closed"
	TopicAdminAssigned = "conversation.admin.assigned"
	TopicPing          = "ping"
)

// Notification is an Intercom webhook notification envelope.
type Notification struct {
	// ID is the delivery ID (notif_...), unique per delivery attempt group.
	ID string `json:"id"`
	// Topic names the event, e.g. "conversation.user.created".
	Topic string `json:"topic"`
	// Data carries the conversation the event refers to.
	Data NotificationData `json:"data"`
}

// NotificationData is the data block of a webhook notification. Production
// payloads nest the conversation under "item"; older webhook formats put the
// ID directly on "data", so both are accepted.
type NotificationData struct {
	ID   ID               `json:"id"`
	Item NotificationItem `json:"item"`
}

// NotificationItem identifies the conversation an event refers to.
type NotificationItem struct {
	ID ID `json:"id"`
}

// ConversationID returns the conversation the notification refers to.
func (n Notification) ConversationID() string {
	if n.Data.Item.ID != "" {
		return n.Data.Item.ID.String()
	}
	return n.Data.ID.String()
}
