package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/middlewares"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
	"github.com/vmanoilov/bettergpt/pkg/links"
	"github.com/vmanoilov/bettergpt/pkg/store"
)

// parseLayers runs a command's parameter layers through the middleware chain
// with the given default-layer values, the way the cobra entrypoint would.
func parseLayers(t *testing.T, description *layers.ParameterLayers, values map[string]interface{}) *layers.ParsedLayers {
	t.Helper()
	parsed := layers.NewParsedLayers()
	err := middlewares.ExecuteMiddlewares(description, parsed,
		middlewares.UpdateFromMap(map[string]map[string]interface{}{
			layers.DefaultSlug: values,
		}),
		middlewares.SetFromDefaults(),
	)
	require.NoError(t, err)
	return parsed
}

func writeSnapshotFixture(t *testing.T) (string, conversation.ConversationID) {
	t.Helper()
	parent := conversation.New("physics", "gpt-4")
	parent.Messages = append(parent.Messages,
		conversation.NewChatMessage(conversation.RoleUser, "what is entropy", conversation.WithTokens(4)),
		conversation.NewChatMessage(conversation.RoleAssistant, "a measure of disorder", conversation.WithTokens(5)))
	child := conversation.New("physics (fork)", "gpt-4")
	child.Messages = append(child.Messages,
		conversation.NewChatMessage(conversation.RoleUser, "go deeper", conversation.WithTokens(3)))

	link := links.NewLink(links.LinkTypeFork, parent.ID, child.ID)
	link.MessageID = parent.Messages[1].ID

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, store.SaveSnapshot(path, &store.Snapshot{
		Conversations: []*conversation.Conversation{parent, child},
		Links:         []*links.ConversationLink{link},
	}))
	return path, child.ID
}

func TestContextCommandAssemblesParentContext(t *testing.T) {
	path, childID := writeSnapshotFixture(t)

	cmd, err := NewContextCommand()
	require.NoError(t, err)

	parsed := parseLayers(t, cmd.Description().Layers, map[string]interface{}{
		"snapshot":        path,
		"conversation-id": childID.String(),
		"estimate":        true,
	})

	var buf bytes.Buffer
	require.NoError(t, cmd.RunIntoWriter(context.Background(), parsed, &buf))

	out := buf.String()
	assert.Contains(t, out, "physics")
	assert.Contains(t, out, "2 messages, 9 tokens")
	assert.Contains(t, out, "total tokens: 9")
	assert.NotContains(t, out, "truncated")
}

func TestContextCommandShowMessages(t *testing.T) {
	path, childID := writeSnapshotFixture(t)

	cmd, err := NewContextCommand()
	require.NoError(t, err)

	parsed := parseLayers(t, cmd.Description().Layers, map[string]interface{}{
		"snapshot":        path,
		"conversation-id": childID.String(),
		"estimate":        true,
		"show-messages":   true,
	})

	var buf bytes.Buffer
	require.NoError(t, cmd.RunIntoWriter(context.Background(), parsed, &buf))
	assert.Contains(t, buf.String(), "[user]: what is entropy")
}

func TestContextCommandRequiresConversationID(t *testing.T) {
	path, _ := writeSnapshotFixture(t)

	cmd, err := NewContextCommand()
	require.NoError(t, err)

	parsed := parseLayers(t, cmd.Description().Layers, map[string]interface{}{
		"snapshot": path,
	})

	var buf bytes.Buffer
	err = cmd.RunIntoWriter(context.Background(), parsed, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversation-id")
}

func TestContextCommandRejectsBothBackends(t *testing.T) {
	cmd, err := NewContextCommand()
	require.NoError(t, err)

	parsed := parseLayers(t, cmd.Description().Layers, map[string]interface{}{
		"snapshot":        "a.json",
		"db":              "b.db",
		"conversation-id": "c",
	})

	var buf bytes.Buffer
	err = cmd.RunIntoWriter(context.Background(), parsed, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestGraphCommandSettingsFromLayers(t *testing.T) {
	cmd, err := NewGraphCommand()
	require.NoError(t, err)

	parsed := parseLayers(t, cmd.Description().Layers, map[string]interface{}{
		"db":               "conversations.db",
		"include-archived": true,
	})

	s := &GraphSettings{}
	require.NoError(t, parsed.InitializeStruct(layers.DefaultSlug, s))
	assert.Equal(t, "conversations.db", s.Db)
	assert.Empty(t, s.Snapshot)
	assert.True(t, s.IncludeArchived)
}

func TestCountCommandDefaultsModel(t *testing.T) {
	cmd, err := NewCountCommand()
	require.NoError(t, err)

	inputPath := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(inputPath, []byte("Hello, world!"), 0o644))

	parsed := parseLayers(t, cmd.Description().Layers, map[string]interface{}{
		"input": inputPath,
	})

	var buf bytes.Buffer
	require.NoError(t, cmd.RunIntoWriter(context.Background(), parsed, &buf))

	out := buf.String()
	assert.Contains(t, out, "Model: gpt-4")
	assert.Contains(t, out, "Context limit: 8192")
	assert.True(t, strings.Contains(out, "Total tokens: "))
}
