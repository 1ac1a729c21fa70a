package conversation

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore is an in-process Store. It backs the CLI when operating on
// snapshot files and doubles as the test store.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[ConversationID]*Conversation
	configs       map[ConversationID]*ContextConfig
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[ConversationID]*Conversation),
		configs:       make(map[ConversationID]*ContextConfig),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id ConversationID) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "conversation %s", id)
	}
	return conv.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if conv.IsArchived && !filter.IncludeArchived {
			continue
		}
		ret = append(ret, conv.Clone())
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].ID < ret[j].ID
		}
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret, nil
}

func (s *MemoryStore) Save(ctx context.Context, conv *Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conv.ID.IsZero() {
		return errors.New("conversation id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = conv.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id ConversationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, id)
	delete(s.configs, id)
	return nil
}

func (s *MemoryStore) GetContextConfig(ctx context.Context, id ConversationID) (*ContextConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "context config for %s", id)
	}
	return cfg.Clone(), nil
}

func (s *MemoryStore) SaveContextConfig(ctx context.Context, cfg *ContextConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg.ConversationID.IsZero() {
		return errors.New("context config conversation id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[cfg.ConversationID] = cfg.Clone()
	return nil
}

func (s *MemoryStore) DeleteContextConfig(ctx context.Context, id ConversationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.configs, id)
	return nil
}
