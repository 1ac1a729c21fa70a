package conversation

import (
	"github.com/pkg/errors"
)

// TruncationStrategy selects how assembled context is cut down to a token
// budget.
type TruncationStrategy string

const (
	// TruncationRecent keeps the most recent messages across all sources
	// pooled together.
	TruncationRecent TruncationStrategy = "recent"
	// TruncationRelevant is a heuristic stand-in for relevance ranking: it
	// prefers smaller sources first and recency within each source. There is
	// no embedding-based signal behind it.
	TruncationRelevant TruncationStrategy = "relevant"
	// TruncationBalanced splits the budget evenly across sources and
	// redistributes unused allocation (water-filling).
	TruncationBalanced TruncationStrategy = "balanced"
)

// ParseTruncationStrategy validates a persisted strategy value. Unknown
// values are rejected rather than coerced.
func ParseTruncationStrategy(s string) (TruncationStrategy, error) {
	switch TruncationStrategy(s) {
	case TruncationRecent, TruncationRelevant, TruncationBalanced:
		return TruncationStrategy(s), nil
	}
	return "", errors.Errorf("unknown truncation strategy %q", s)
}

// ContextConfig controls how context is assembled for one conversation.
// Created lazily with defaults on first access.
type ContextConfig struct {
	ConversationID ConversationID `json:"conversationId" yaml:"conversationId"`

	// IncludedLinks lists link ids whose other endpoint should be pulled
	// into context.
	IncludedLinks []LinkID `json:"includedLinks,omitempty" yaml:"includedLinks,omitempty"`

	// AutoLoadParent includes the immediate fork/continuation parent.
	// Single-hop only, to bound cost.
	AutoLoadParent bool `json:"autoLoadParent" yaml:"autoLoadParent"`

	// AutoLoadLinks includes every linked conversation, incoming or
	// outgoing, regardless of IncludedLinks.
	AutoLoadLinks bool `json:"autoLoadLinks" yaml:"autoLoadLinks"`

	// MaxTokens caps the context budget. Zero means derive from the model's
	// known limit.
	MaxTokens int `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`

	Strategy TruncationStrategy `json:"truncationStrategy" yaml:"truncationStrategy"`
}

// DefaultContextConfig returns the configuration used when a conversation has
// no stored config yet.
func DefaultContextConfig(id ConversationID) *ContextConfig {
	return &ContextConfig{
		ConversationID: id,
		AutoLoadParent: true,
		AutoLoadLinks:  false,
		Strategy:       TruncationBalanced,
	}
}

// Clone returns an independent copy of the config.
func (c *ContextConfig) Clone() *ContextConfig {
	clone := *c
	if c.IncludedLinks != nil {
		clone.IncludedLinks = append([]LinkID(nil), c.IncludedLinks...)
	}
	return &clone
}
