package domain

import (
	"slices"
	"time"
)

const (
	// PlaceholderTitle is shown until a conversation receives its first message.
	PlaceholderTitle = "New Conversation"

	maxTitleRunes = 30
	titleEllipsis = "..."
)

// Message is one entry of a client-side conversation. Messages are never
// edited once appended.
type Message struct {
	IsUser bool   `json:"isUser"`
	Text   string `json:"text"`
}

// Conversation is the client-side record kept in the durable slot.
type Conversation struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	Messages              []Message `json:"messages"`
	CreatedAt             time.Time `json:"createdAt"`
	BackendConversationID string    `json:"backend_conversation_id,omitempty"`
}

// Clone returns a copy that shares no message storage with c, so appending to
// the copy never shows through to another holder of c.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = slices.Clone(c.Messages)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out
}

// TitleFromText derives a conversation title from the first message text,
// truncating to 30 runes with a trailing ellipsis.
func TitleFromText(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return string(runes[:maxTitleRunes-len(titleEllipsis)]) + titleEllipsis
}

// Answer is the result of a successful question-answering call.
type Answer struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversationId"`
}
