package links

import (
	"time"

	"github.com/pkg/errors"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
)

// LinkType is the closed set of relationships between two conversations.
type LinkType string

const (
	// LinkTypeFork marks a conversation created as a truncated copy of
	// another, up to a specific message.
	LinkTypeFork LinkType = "fork"
	// LinkTypeContinuation marks a conversation that logically follows the
	// whole of another conversation.
	LinkTypeContinuation LinkType = "continuation"
	// LinkTypeReference is a non-hierarchical annotation between two
	// otherwise unrelated conversations.
	LinkTypeReference LinkType = "reference"
)

// ErrUnknownLinkType is returned when a persisted link carries a type outside
// the closed set. Such records are rejected at the load boundary, never
// silently coerced.
var ErrUnknownLinkType = errors.New("unknown link type")

// ParseLinkType validates a persisted type value.
func ParseLinkType(s string) (LinkType, error) {
	switch LinkType(s) {
	case LinkTypeFork, LinkTypeContinuation, LinkTypeReference:
		return LinkType(s), nil
	}
	return "", errors.Wrapf(ErrUnknownLinkType, "%q", s)
}

// MetadataKeyForkMessage stores a snapshot of the fork-point message text on
// fork links, so the UI can show it without dereferencing the source.
const MetadataKeyForkMessage = "forkMessage"

// ConversationLink is a directed, typed edge between two conversations.
// Metadata is informational only and never consulted by traversal logic.
type ConversationLink struct {
	ID       conversation.LinkID         `json:"id" yaml:"id"`
	SourceID conversation.ConversationID `json:"sourceId" yaml:"sourceId"`
	TargetID conversation.ConversationID `json:"targetId" yaml:"targetId"`
	Type     LinkType                    `json:"type" yaml:"type"`

	// MessageID is the fork point within the source conversation. Only set
	// on fork links.
	MessageID conversation.MessageID `json:"messageId,omitempty" yaml:"messageId,omitempty"`

	CreatedAt time.Time         `json:"createdAt" yaml:"createdAt"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewLink creates a link with a fresh id.
func NewLink(
	linkType LinkType,
	sourceID conversation.ConversationID,
	targetID conversation.ConversationID,
) *ConversationLink {
	return &ConversationLink{
		ID:        conversation.NewLinkID(),
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      linkType,
		CreatedAt: time.Now(),
	}
}

// Clone returns an independent copy of the link.
func (l *ConversationLink) Clone() *ConversationLink {
	clone := *l
	if l.Metadata != nil {
		clone.Metadata = make(map[string]string, len(l.Metadata))
		for k, v := range l.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// OtherEndpoint returns the endpoint of the link that is not the given
// conversation.
func (l *ConversationLink) OtherEndpoint(id conversation.ConversationID) conversation.ConversationID {
	if l.SourceID == id {
		return l.TargetID
	}
	return l.SourceID
}

// LinkSet partitions a conversation's links by direction.
type LinkSet struct {
	Outgoing []*ConversationLink `json:"outgoing" yaml:"outgoing"`
	Incoming []*ConversationLink `json:"incoming" yaml:"incoming"`
}

// All returns outgoing followed by incoming links.
func (s LinkSet) All() []*ConversationLink {
	ret := make([]*ConversationLink, 0, len(s.Outgoing)+len(s.Incoming))
	ret = append(ret, s.Outgoing...)
	ret = append(ret, s.Incoming...)
	return ret
}
