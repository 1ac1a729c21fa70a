package conversation

import (
	"context"
)

// Filter narrows a List call.
type Filter struct {
	// IncludeArchived also returns archived conversations. The default is
	// active conversations only.
	IncludeArchived bool
}

// Store is the persistence contract for conversations and their context
// configuration. Implementations must return ErrNotFound (possibly wrapped)
// for missing records and wrap infrastructure failures in a StorageError.
type Store interface {
	Get(ctx context.Context, id ConversationID) (*Conversation, error)
	List(ctx context.Context, filter Filter) ([]*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, id ConversationID) error

	// GetContextConfig returns the stored config for a conversation, or
	// ErrNotFound if none has been saved yet. Callers fall back to
	// DefaultContextConfig.
	GetContextConfig(ctx context.Context, id ConversationID) (*ContextConfig, error)
	SaveContextConfig(ctx context.Context, cfg *ContextConfig) error
	DeleteContextConfig(ctx context.Context, id ConversationID) error
}
