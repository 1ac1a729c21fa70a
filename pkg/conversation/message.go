package conversation

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message represents a single turn in a conversation. Messages are owned
// exclusively by their conversation and are never shared between
// conversations; copies made during forking are deep copies.
type Message struct {
	ID   MessageID `json:"id" yaml:"id"`
	Role Role      `json:"role" yaml:"role"`
	Text string    `json:"text" yaml:"text"`
	Time time.Time `json:"time" yaml:"time"`

	// Tokens is a precomputed token estimate for Text. Zero means unknown;
	// consumers fall back to counting on demand.
	Tokens int `json:"tokens,omitempty" yaml:"tokens,omitempty"`

	// Streaming marks a message whose text is still being received.
	Streaming bool `json:"streaming,omitempty" yaml:"streaming,omitempty"`
}

type MessageOption func(*Message)

func WithID(id MessageID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func WithTokens(tokens int) MessageOption {
	return func(m *Message) {
		m.Tokens = tokens
	}
}

func NewChatMessage(role Role, text string, options ...MessageOption) *Message {
	ret := &Message{
		ID:   NewMessageID(),
		Role: role,
		Text: text,
		Time: time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Clone returns an independent copy of the message.
func (m *Message) Clone() *Message {
	clone := *m
	return &clone
}

func (m *Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Text, "\n"))
}
