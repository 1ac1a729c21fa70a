package links

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
)

func TestBuildGraphIsTotalOverConversations(t *testing.T) {
	manager, store, _ := newTestManager(t)
	a := storedConversation(t, store, "a", "m0", "m1")
	b := storedConversation(t, store, "b", "m0")
	isolated := storedConversation(t, store, "isolated", "m0")

	_, err := manager.AddReference(context.Background(), a.ID, b.ID, nil)
	require.NoError(t, err)

	graph, err := manager.BuildGraph(context.Background(), GraphOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, graph.Len())

	node, ok := graph.Node(isolated.ID)
	require.True(t, ok)
	assert.Empty(t, node.Outgoing)
	assert.Empty(t, node.Incoming)
}

func TestBuildGraphPartitionsEachLinkOnce(t *testing.T) {
	manager, store, _ := newTestManager(t)
	a := storedConversation(t, store, "a", "m0", "m1")

	forked, err := manager.ForkAtMessage(context.Background(), a.ID, a.Messages[0].ID, Seed{})
	require.NoError(t, err)

	graph, err := manager.BuildGraph(context.Background(), GraphOptions{})
	require.NoError(t, err)

	sourceNode, ok := graph.Node(a.ID)
	require.True(t, ok)
	targetNode, ok := graph.Node(forked.Conversation.ID)
	require.True(t, ok)

	require.Len(t, sourceNode.Outgoing, 1)
	require.Len(t, targetNode.Incoming, 1)
	assert.Equal(t, sourceNode.Outgoing[0].ID, targetNode.Incoming[0].ID)
	assert.Empty(t, sourceNode.Incoming)
	assert.Empty(t, targetNode.Outgoing)

	allLinks := graph.Links()
	require.Len(t, allLinks, 1)
}

func TestBuildGraphSkipsArchivedByDefault(t *testing.T) {
	manager, store, _ := newTestManager(t)
	archived := conversation.New("archived", "gpt-4")
	archived.IsArchived = true
	require.NoError(t, store.Save(context.Background(), archived))
	storedConversation(t, store, "active", "m0")

	graph, err := manager.BuildGraph(context.Background(), GraphOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, graph.Len())

	graph, err = manager.BuildGraph(context.Background(), GraphOptions{IncludeArchived: true})
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Len())
}

func TestBuildGraphSkipsLinksWithMissingEndpoints(t *testing.T) {
	manager, store, repo := newTestManager(t)
	a := storedConversation(t, store, "a", "m0")

	dangling := NewLink(LinkTypeReference, a.ID, "deleted-conversation")
	require.NoError(t, repo.Save(context.Background(), dangling))

	graph, err := manager.BuildGraph(context.Background(), GraphOptions{})
	require.NoError(t, err)

	node, ok := graph.Node(a.ID)
	require.True(t, ok)
	assert.Empty(t, node.Outgoing)
}

// badTypeRepository simulates a store holding a link record with a type
// outside the closed set.
type badTypeRepository struct {
	*MemoryRepository
	bad *ConversationLink
}

func (r *badTypeRepository) All(ctx context.Context) ([]*ConversationLink, error) {
	all, err := r.MemoryRepository.All(ctx)
	if err != nil {
		return nil, err
	}
	return append(all, r.bad), nil
}

func TestBuildGraphSkipsUnknownLinkTypes(t *testing.T) {
	store := conversation.NewMemoryStore()
	a := storedConversation(t, store, "a", "m0")
	b := storedConversation(t, store, "b", "m0")

	bad := NewLink("corrupt-type", a.ID, b.ID)
	repo := &badTypeRepository{MemoryRepository: NewMemoryRepository(), bad: bad}
	manager := NewManager(store, repo)

	graph, err := manager.BuildGraph(context.Background(), GraphOptions{})
	require.NoError(t, err)

	node, ok := graph.Node(a.ID)
	require.True(t, ok)
	assert.Empty(t, node.Outgoing)
}
