package conversation

// Package conversation holds the core records of the linking subsystem:
// conversations, their messages and the per-conversation context
// configuration, plus the Store contract they are persisted through.
//
// Conversations do not embed their links. The links package owns the link
// collection; keeping the two collections separate avoids having to keep both
// sides of the relationship in sync inside the conversation record.

import (
	"time"
)

// Conversation is a thread of messages captured from the chat interface or
// created by forking/continuing another conversation.
type Conversation struct {
	ID        ConversationID `json:"id" yaml:"id"`
	Title     string         `json:"title" yaml:"title"`
	Model     string         `json:"model" yaml:"model"`
	CreatedAt time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"updatedAt"`

	Messages []*Message `json:"messages" yaml:"messages"`

	FolderID   string `json:"folderId,omitempty" yaml:"folderId,omitempty"`
	IsArchived bool   `json:"isArchived,omitempty" yaml:"isArchived,omitempty"`
	IsFavorite bool   `json:"isFavorite,omitempty" yaml:"isFavorite,omitempty"`
}

// New creates an empty conversation with a fresh id.
func New(title string, model string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        NewConversationID(),
		Title:     title,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MessageIndex returns the position of the message with the given id, or -1.
func (c *Conversation) MessageIndex(id MessageID) int {
	for i, m := range c.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// GetMessage returns the message with the given id.
func (c *Conversation) GetMessage(id MessageID) (*Message, bool) {
	idx := c.MessageIndex(id)
	if idx < 0 {
		return nil, false
	}
	return c.Messages[idx], true
}

// Clone returns a deep copy of the conversation. Message ids are preserved so
// that fork points recorded against the source remain resolvable against the
// copy.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = CloneMessages(c.Messages)
	return &clone
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []*Message) []*Message {
	if msgs == nil {
		return nil
	}
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
