package conversation

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIndex(t *testing.T) {
	conv := New("test", "gpt-4")
	m0 := NewChatMessage(RoleUser, "hello")
	m1 := NewChatMessage(RoleAssistant, "hi")
	conv.Messages = append(conv.Messages, m0, m1)

	assert.Equal(t, 0, conv.MessageIndex(m0.ID))
	assert.Equal(t, 1, conv.MessageIndex(m1.ID))
	assert.Equal(t, -1, conv.MessageIndex("missing"))
}

func TestCloneIsDeep(t *testing.T) {
	conv := New("test", "gpt-4")
	conv.Messages = append(conv.Messages, NewChatMessage(RoleUser, "hello"))

	clone := conv.Clone()
	clone.Messages[0].Text = "changed"

	assert.Equal(t, "hello", conv.Messages[0].Text)
	assert.Equal(t, conv.Messages[0].ID, clone.Messages[0].ID)
}

func TestParseTruncationStrategy(t *testing.T) {
	for _, valid := range []string{"recent", "relevant", "balanced"} {
		strategy, err := ParseTruncationStrategy(valid)
		require.NoError(t, err)
		assert.Equal(t, TruncationStrategy(valid), strategy)
	}

	_, err := ParseTruncationStrategy("smart")
	require.Error(t, err)
}

func TestDefaultContextConfig(t *testing.T) {
	cfg := DefaultContextConfig("conv-1")

	assert.True(t, cfg.AutoLoadParent)
	assert.False(t, cfg.AutoLoadLinks)
	assert.Zero(t, cfg.MaxTokens)
	assert.Equal(t, TruncationBalanced, cfg.Strategy)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	conv := New("test", "gpt-4")
	conv.Messages = append(conv.Messages, NewChatMessage(RoleUser, "hello"))

	require.NoError(t, store.Save(context.Background(), conv))

	got, err := store.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	require.Len(t, got.Messages, 1)

	// The store hands out copies; mutating a result never touches stored
	// state.
	got.Messages[0].Text = "mutated"
	again, err := store.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Text)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreListFiltersArchived(t *testing.T) {
	store := NewMemoryStore()
	active := New("active", "gpt-4")
	archived := New("archived", "gpt-4")
	archived.IsArchived = true

	require.NoError(t, store.Save(context.Background(), active))
	require.NoError(t, store.Save(context.Background(), archived))

	listed, err := store.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, active.ID, listed[0].ID)

	listed, err = store.List(context.Background(), Filter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestMemoryStoreDeleteRemovesConfig(t *testing.T) {
	store := NewMemoryStore()
	conv := New("test", "gpt-4")
	require.NoError(t, store.Save(context.Background(), conv))
	require.NoError(t, store.SaveContextConfig(context.Background(), DefaultContextConfig(conv.ID)))

	require.NoError(t, store.Delete(context.Background(), conv.ID))

	_, err := store.GetContextConfig(context.Background(), conv.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
