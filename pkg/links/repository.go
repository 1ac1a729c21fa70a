package links

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
)

// Repository is the sole owner of the link collection. Conversations never
// embed their links; everything goes through this contract.
//
// Implementations must return conversation.ErrNotFound (possibly wrapped) for
// missing links and wrap infrastructure failures in a
// conversation.StorageError.
type Repository interface {
	// Save upserts a link by id.
	Save(ctx context.Context, link *ConversationLink) error
	Get(ctx context.Context, id conversation.LinkID) (*ConversationLink, error)
	Delete(ctx context.Context, id conversation.LinkID) error

	// ForConversation partitions the conversation's links into outgoing
	// (conversation is the source) and incoming (conversation is the
	// target).
	ForConversation(ctx context.Context, id conversation.ConversationID) (LinkSet, error)

	// DeleteForConversation removes every link in which the conversation
	// appears as either endpoint. Used as the cascade step of conversation
	// deletion.
	DeleteForConversation(ctx context.Context, id conversation.ConversationID) error

	// All returns every stored link, ordered by creation time.
	All(ctx context.Context) ([]*ConversationLink, error)
}

// MemoryRepository is the in-process Repository used with
// conversation.MemoryStore.
type MemoryRepository struct {
	mu    sync.Mutex
	links map[conversation.LinkID]*ConversationLink
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		links: make(map[conversation.LinkID]*ConversationLink),
	}
}

func (r *MemoryRepository) Save(ctx context.Context, link *ConversationLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if link.ID.IsZero() {
		return errors.New("link id is empty")
	}
	if _, err := ParseLinkType(string(link.Type)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.links[link.ID] = link.Clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id conversation.LinkID) (*ConversationLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[id]
	if !ok {
		return nil, errors.Wrapf(conversation.ErrNotFound, "link %s", id)
	}
	return link.Clone(), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id conversation.LinkID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.links, id)
	return nil
}

func (r *MemoryRepository) ForConversation(ctx context.Context, id conversation.ConversationID) (LinkSet, error) {
	if err := ctx.Err(); err != nil {
		return LinkSet{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var set LinkSet
	for _, link := range r.links {
		switch id {
		case link.SourceID:
			set.Outgoing = append(set.Outgoing, link.Clone())
		case link.TargetID:
			set.Incoming = append(set.Incoming, link.Clone())
		}
	}
	sortLinks(set.Outgoing)
	sortLinks(set.Incoming)
	return set, nil
}

func (r *MemoryRepository) DeleteForConversation(ctx context.Context, id conversation.ConversationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for linkID, link := range r.links {
		if link.SourceID == id || link.TargetID == id {
			delete(r.links, linkID)
		}
	}
	return nil
}

func (r *MemoryRepository) All(ctx context.Context) ([]*ConversationLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := make([]*ConversationLink, 0, len(r.links))
	for _, link := range r.links {
		ret = append(ret, link.Clone())
	}
	sortLinks(ret)
	return ret, nil
}

func sortLinks(links []*ConversationLink) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].ID < links[j].ID
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
}
