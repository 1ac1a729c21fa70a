package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
	"github.com/vmanoilov/bettergpt/pkg/links"
)

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestSQLiteConversationRoundTrip(t *testing.T) {
	db := openTestDB(t)

	conv := conversation.New("physics", "gpt-4")
	conv.Messages = append(conv.Messages,
		conversation.NewChatMessage(conversation.RoleUser, "hello", conversation.WithTokens(3)))
	require.NoError(t, db.Save(context.Background(), conv))

	got, err := db.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "physics", got.Title)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Text)
	assert.Equal(t, 3, got.Messages[0].Tokens)
	assert.Equal(t, conv.Messages[0].ID, got.Messages[0].ID)
}

func TestSQLiteGetMissing(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrNotFound))
}

func TestSQLiteSaveIsUpsert(t *testing.T) {
	db := openTestDB(t)

	conv := conversation.New("before", "gpt-4")
	require.NoError(t, db.Save(context.Background(), conv))
	conv.Title = "after"
	require.NoError(t, db.Save(context.Background(), conv))

	got, err := db.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)

	listed, err := db.List(context.Background(), conversation.Filter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestSQLiteListFiltersArchived(t *testing.T) {
	db := openTestDB(t)

	active := conversation.New("active", "gpt-4")
	archived := conversation.New("archived", "gpt-4")
	archived.IsArchived = true
	require.NoError(t, db.Save(context.Background(), active))
	require.NoError(t, db.Save(context.Background(), archived))

	listed, err := db.List(context.Background(), conversation.Filter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "active", listed[0].Title)

	listed, err = db.List(context.Background(), conversation.Filter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestSQLiteContextConfigRoundTrip(t *testing.T) {
	db := openTestDB(t)

	cfg := conversation.DefaultContextConfig("conv-1")
	cfg.IncludedLinks = []conversation.LinkID{"link-1", "link-2"}
	cfg.MaxTokens = 2048
	cfg.Strategy = conversation.TruncationRecent
	require.NoError(t, db.SaveContextConfig(context.Background(), cfg))

	got, err := db.GetContextConfig(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.IncludedLinks, got.IncludedLinks)
	assert.Equal(t, 2048, got.MaxTokens)
	assert.Equal(t, conversation.TruncationRecent, got.Strategy)
	assert.True(t, got.AutoLoadParent)
}

func TestSQLiteLinkRepository(t *testing.T) {
	db := openTestDB(t)
	repo := db.Links()

	link := links.NewLink(links.LinkTypeFork, "a", "b")
	link.MessageID = "m-1"
	link.CreatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	link.Metadata = map[string]string{links.MetadataKeyForkMessage: "hello"}
	require.NoError(t, repo.Save(context.Background(), link))

	got, err := repo.Get(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, links.LinkTypeFork, got.Type)
	assert.Equal(t, conversation.MessageID("m-1"), got.MessageID)
	assert.Equal(t, "hello", got.Metadata[links.MetadataKeyForkMessage])

	set, err := repo.ForConversation(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, set.Outgoing, 1)
	assert.Empty(t, set.Incoming)

	set, err = repo.ForConversation(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, set.Incoming, 1)
	assert.Empty(t, set.Outgoing)
}

func TestSQLiteDeleteLinksForConversation(t *testing.T) {
	db := openTestDB(t)
	repo := db.Links()

	require.NoError(t, repo.Save(context.Background(), links.NewLink(links.LinkTypeReference, "a", "b")))
	require.NoError(t, repo.Save(context.Background(), links.NewLink(links.LinkTypeReference, "c", "a")))
	keep := links.NewLink(links.LinkTypeReference, "b", "c")
	require.NoError(t, repo.Save(context.Background(), keep))

	require.NoError(t, repo.DeleteForConversation(context.Background(), "a"))

	all, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].ID)
}

func TestSQLiteRejectsUnknownLinkTypeOnSave(t *testing.T) {
	db := openTestDB(t)

	bad := links.NewLink("corrupt", "a", "b")
	err := db.Links().Save(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, links.ErrUnknownLinkType))
}

func TestSQLiteBulkReadsSkipCorruptTypeRows(t *testing.T) {
	db := openTestDB(t)
	repo := db.Links()

	a := conversation.New("a", "gpt-4")
	a.Messages = append(a.Messages, conversation.NewChatMessage(conversation.RoleUser, "hi"))
	b := conversation.New("b", "gpt-4")
	require.NoError(t, db.Save(context.Background(), a))
	require.NoError(t, db.Save(context.Background(), b))

	good := links.NewLink(links.LinkTypeReference, a.ID, b.ID)
	require.NoError(t, repo.Save(context.Background(), good))

	// Save rejects unknown types, so corrupt the table directly.
	_, err := db.db.ExecContext(context.Background(), `
		INSERT INTO conversation_links (id, source_id, target_id, type, message_id, created_at, metadata)
		VALUES ('corrupt-link', ?, ?, 'corrupt', '', 0, '{}')`,
		a.ID.String(), b.ID.String())
	require.NoError(t, err)

	all, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, good.ID, all[0].ID)

	set, err := repo.ForConversation(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, set.Outgoing, 1)
	assert.Equal(t, good.ID, set.Outgoing[0].ID)

	// Point reads keep the hard rejection.
	_, err = repo.Get(context.Background(), "corrupt-link")
	require.Error(t, err)
	assert.True(t, errors.Is(err, links.ErrUnknownLinkType))

	// The corrupt row must not take down graph building.
	graph, err := links.NewManager(db, repo).BuildGraph(context.Background(), links.GraphOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Len())
	node, ok := graph.Node(a.ID)
	require.True(t, ok)
	assert.Len(t, node.Outgoing, 1)
}

func TestSQLiteWorksWithManagers(t *testing.T) {
	db := openTestDB(t)
	manager := links.NewManager(db, db.Links())

	source := conversation.New("source", "gpt-4")
	source.Messages = append(source.Messages,
		conversation.NewChatMessage(conversation.RoleUser, "q", conversation.WithTokens(5)),
		conversation.NewChatMessage(conversation.RoleAssistant, "a", conversation.WithTokens(5)))
	require.NoError(t, db.Save(context.Background(), source))

	result, err := manager.ForkAtMessage(context.Background(), source.ID, source.Messages[1].ID, links.Seed{})
	require.NoError(t, err)

	graph, err := manager.BuildGraph(context.Background(), links.GraphOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Len())

	chain, err := manager.AncestorChain(context.Background(), result.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, source.ID, chain[0].ID)
}
