package contextload

import (
	"github.com/vmanoilov/bettergpt/pkg/conversation"
)

// Source describes one conversation's contribution to an assembled context,
// for display next to the composer.
type Source struct {
	ConversationID conversation.ConversationID `json:"conversationId" yaml:"conversationId"`
	Title          string                      `json:"title" yaml:"title"`
	MessageCount   int                         `json:"messageCount" yaml:"messageCount"`
	Tokens         int                         `json:"tokens" yaml:"tokens"`
}

// Result is the assembled context for a conversation. Its shape is the
// contract handed to rendering code and should be treated as stable.
type Result struct {
	Messages         []*conversation.Message `json:"messages" yaml:"messages"`
	Sources          []Source                `json:"sources" yaml:"sources"`
	TotalTokens      int                     `json:"totalTokens" yaml:"totalTokens"`
	Truncated        bool                    `json:"truncated" yaml:"truncated"`
	TruncationReason string                  `json:"truncationReason,omitempty" yaml:"truncationReason,omitempty"`
}

// candidate is a source conversation with per-message token costs.
type candidate struct {
	conv   *conversation.Conversation
	tokens []int
	total  int
}

func (c *candidate) messageCount() int {
	return len(c.conv.Messages)
}
