package links

// Package links owns conversation-to-conversation relationships: the link
// records, their repository and the Manager that is the only component
// allowed to create or interpret links.
//
// Fork and continuation semantics live here. A fork copies the source's
// message prefix up to a fork point into a new conversation; a continuation
// starts a new conversation that logically follows the whole source,
// optionally carrying a full copy of its history. References are flat
// annotations between unrelated conversations.

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
)

// ErrSelfReference is returned when a reference link would connect a
// conversation to itself.
var ErrSelfReference = errors.New("conversation cannot link to itself")

// Seed supplies overrides for a conversation created by fork or continue.
// Unset fields default from the source conversation.
type Seed struct {
	Title string
	Model string
}

// ContinueOptions controls ContinueFrom.
type ContinueOptions struct {
	// IncludeAllMessages copies the source's full history into the new
	// conversation. This is an explicit opt-in: the copied messages live
	// inline, so the new conversation's context config disables parent
	// auto-loading to avoid counting the same content twice.
	IncludeAllMessages bool
}

// GraphOptions controls BuildGraph.
type GraphOptions struct {
	IncludeArchived bool
}

// ForkResult pairs the conversation and link created by a fork or
// continuation.
type ForkResult struct {
	Conversation *conversation.Conversation
	Link         *ConversationLink
}

// Manager is the public API for creating and reading links.
type Manager interface {
	ForkAtMessage(ctx context.Context, sourceID conversation.ConversationID, messageID conversation.MessageID, seed Seed) (*ForkResult, error)
	ContinueFrom(ctx context.Context, sourceID conversation.ConversationID, seed Seed, options ContinueOptions) (*ForkResult, error)
	AddReference(ctx context.Context, sourceID, targetID conversation.ConversationID, metadata map[string]string) (*ConversationLink, error)
	Links(ctx context.Context, id conversation.ConversationID) (LinkSet, error)
	DeleteConversation(ctx context.Context, id conversation.ConversationID) error
	BuildGraph(ctx context.Context, options GraphOptions) (*Graph, error)
	AncestorChain(ctx context.Context, id conversation.ConversationID) ([]*conversation.Conversation, error)
}

type ManagerImpl struct {
	store conversation.Store
	repo  Repository
	now   func() time.Time
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

// WithClock overrides the time source, used by tests that need deterministic
// link timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *ManagerImpl) {
		m.now = now
	}
}

func NewManager(store conversation.Store, repo Repository, options ...ManagerOption) *ManagerImpl {
	ret := &ManagerImpl{
		store: store,
		repo:  repo,
		now:   time.Now,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// ForkAtMessage creates a new conversation containing the source's messages
// up to and including messageID, and records a fork link from the source to
// the new conversation.
//
// The conversation is saved before the link so that a crash between the two
// writes can only leave an unlinked conversation, never a link pointing at a
// conversation that was never written.
func (m *ManagerImpl) ForkAtMessage(
	ctx context.Context,
	sourceID conversation.ConversationID,
	messageID conversation.MessageID,
	seed Seed,
) (*ForkResult, error) {
	source, err := m.store.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if len(source.Messages) == 0 {
		return nil, errors.Wrapf(conversation.ErrEmptyConversation, "conversation %s", sourceID)
	}

	forkIdx := source.MessageIndex(messageID)
	if forkIdx < 0 {
		return nil, errors.Wrapf(conversation.ErrNotFound, "message %s in conversation %s", messageID, sourceID)
	}
	forkMessage := source.Messages[forkIdx]

	forked := m.newChild(source, seed, " (fork)")
	forked.Messages = conversation.CloneMessages(source.Messages[:forkIdx+1])

	link := m.newLink(LinkTypeFork, sourceID, forked.ID)
	link.MessageID = messageID
	link.Metadata = map[string]string{
		MetadataKeyForkMessage: forkMessage.Text,
	}

	if err := m.store.Save(ctx, forked); err != nil {
		return nil, err
	}
	if err := m.repo.Save(ctx, link); err != nil {
		return nil, err
	}

	log.Debug().
		Str("source_id", sourceID.String()).
		Str("fork_id", forked.ID.String()).
		Str("message_id", messageID.String()).
		Int("message_count", len(forked.Messages)).
		Msg("forked conversation")

	return &ForkResult{Conversation: forked, Link: link}, nil
}

// ContinueFrom creates a new conversation that logically continues the
// source, recording a continuation link. Continuations have no fork point;
// they follow the whole conversation.
func (m *ManagerImpl) ContinueFrom(
	ctx context.Context,
	sourceID conversation.ConversationID,
	seed Seed,
	options ContinueOptions,
) (*ForkResult, error) {
	source, err := m.store.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	continued := m.newChild(source, seed, " (continued)")
	if options.IncludeAllMessages {
		continued.Messages = conversation.CloneMessages(source.Messages)
	}

	link := m.newLink(LinkTypeContinuation, sourceID, continued.ID)

	if err := m.store.Save(ctx, continued); err != nil {
		return nil, err
	}
	if err := m.repo.Save(ctx, link); err != nil {
		return nil, err
	}

	if options.IncludeAllMessages {
		// The history now lives inline; loading the parent as context on top
		// of that would double-count it.
		cfg := conversation.DefaultContextConfig(continued.ID)
		cfg.AutoLoadParent = false
		if err := m.store.SaveContextConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}

	log.Debug().
		Str("source_id", sourceID.String()).
		Str("continuation_id", continued.ID.String()).
		Bool("include_all_messages", options.IncludeAllMessages).
		Msg("continued conversation")

	return &ForkResult{Conversation: continued, Link: link}, nil
}

// AddReference records a reference link between two existing conversations.
func (m *ManagerImpl) AddReference(
	ctx context.Context,
	sourceID, targetID conversation.ConversationID,
	metadata map[string]string,
) (*ConversationLink, error) {
	if sourceID == targetID {
		return nil, errors.Wrapf(ErrSelfReference, "conversation %s", sourceID)
	}
	if _, err := m.store.Get(ctx, sourceID); err != nil {
		return nil, err
	}
	if _, err := m.store.Get(ctx, targetID); err != nil {
		return nil, err
	}

	link := m.newLink(LinkTypeReference, sourceID, targetID)
	link.Metadata = metadata
	if err := m.repo.Save(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// Links is the Manager's read API; callers never talk to the Repository
// directly.
func (m *ManagerImpl) Links(ctx context.Context, id conversation.ConversationID) (LinkSet, error) {
	return m.repo.ForConversation(ctx, id)
}

// DeleteConversation removes a conversation and cascades to every link in
// which it appears, plus its context config.
func (m *ManagerImpl) DeleteConversation(ctx context.Context, id conversation.ConversationID) error {
	if err := m.repo.DeleteForConversation(ctx, id); err != nil {
		return err
	}
	if err := m.store.DeleteContextConfig(ctx, id); err != nil {
		return err
	}
	return m.store.Delete(ctx, id)
}

// BuildGraph assembles the full conversation graph in a single pass over the
// link list. Links whose endpoints are missing from the conversation set, or
// whose type is outside the closed set, are skipped with a warning; a corrupt
// record must not take the graph down.
func (m *ManagerImpl) BuildGraph(ctx context.Context, options GraphOptions) (*Graph, error) {
	conversations, err := m.store.List(ctx, conversation.Filter{IncludeArchived: options.IncludeArchived})
	if err != nil {
		return nil, err
	}
	allLinks, err := m.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	graph := newGraph()
	for _, conv := range conversations {
		graph.addNode(conv)
	}

	for _, link := range allLinks {
		if _, err := ParseLinkType(string(link.Type)); err != nil {
			log.Warn().
				Str("link_id", link.ID.String()).
				Str("type", string(link.Type)).
				Msg("skipping link with unknown type")
			continue
		}
		sourceNode, sourceOk := graph.Nodes[link.SourceID]
		targetNode, targetOk := graph.Nodes[link.TargetID]
		if !sourceOk || !targetOk {
			log.Warn().
				Str("link_id", link.ID.String()).
				Str("source_id", link.SourceID.String()).
				Str("target_id", link.TargetID.String()).
				Msg("skipping link with missing endpoint")
			continue
		}
		sourceNode.Outgoing = append(sourceNode.Outgoing, link)
		targetNode.Incoming = append(targetNode.Incoming, link)
	}

	log.Trace().
		Int("node_count", graph.Len()).
		Int("link_count", len(allLinks)).
		Msg("built conversation graph")

	return graph, nil
}

// AncestorChain walks incoming fork/continuation links backward and returns
// the ancestors ordered nearest first, excluding the starting conversation.
//
// Fork and continue only ever point backward in time, so a cycle indicates
// corrupt data. The visited set makes the walk terminate on such data instead
// of looping; the chain is simply cut at the revisited node.
func (m *ManagerImpl) AncestorChain(ctx context.Context, id conversation.ConversationID) ([]*conversation.Conversation, error) {
	var chain []*conversation.Conversation
	visited := map[conversation.ConversationID]bool{id: true}

	current := id
	for {
		set, err := m.repo.ForConversation(ctx, current)
		if err != nil {
			return nil, err
		}

		parentID, ok := parentOf(set)
		if !ok {
			return chain, nil
		}
		if visited[parentID] {
			log.Warn().
				Str("conversation_id", id.String()).
				Str("revisited_id", parentID.String()).
				Msg("cycle in ancestor chain, stopping walk")
			return chain, nil
		}
		visited[parentID] = true

		parent, err := m.store.Get(ctx, parentID)
		if err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				log.Warn().
					Str("conversation_id", current.String()).
					Str("parent_id", parentID.String()).
					Msg("dangling parent link, stopping walk")
				return chain, nil
			}
			return nil, err
		}

		chain = append(chain, parent)
		current = parentID
	}
}

// parentOf finds the link that makes this conversation a fork or continuation
// of another. A conversation is created by at most one fork/continue
// operation; if corrupt data holds several, the oldest wins.
func parentOf(set LinkSet) (conversation.ConversationID, bool) {
	for _, link := range set.Incoming {
		if link.Type == LinkTypeFork || link.Type == LinkTypeContinuation {
			return link.SourceID, true
		}
	}
	return "", false
}

func (m *ManagerImpl) newChild(source *conversation.Conversation, seed Seed, titleSuffix string) *conversation.Conversation {
	title := seed.Title
	if title == "" {
		title = source.Title + titleSuffix
	}
	model := seed.Model
	if model == "" {
		model = source.Model
	}

	now := m.now()
	return &conversation.Conversation{
		ID:        conversation.NewConversationID(),
		Title:     title,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
		FolderID:  source.FolderID,
	}
}

func (m *ManagerImpl) newLink(linkType LinkType, sourceID, targetID conversation.ConversationID) *ConversationLink {
	link := NewLink(linkType, sourceID, targetID)
	link.CreatedAt = m.now()
	return link
}
