package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/pkg/errors"

	"github.com/vmanoilov/bettergpt/pkg/contextload"
	"github.com/vmanoilov/bettergpt/pkg/conversation"
	"github.com/vmanoilov/bettergpt/pkg/links"
	"github.com/vmanoilov/bettergpt/pkg/tokens"
)

// ContextCommand assembles and prints the context that would be prepended to
// a new request from the given conversation.
type ContextCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ContextCommand)(nil)

type ContextSettings struct {
	Snapshot       string `glazed.parameter:"snapshot"`
	Db             string `glazed.parameter:"db"`
	Estimate       bool   `glazed.parameter:"estimate"`
	ShowMessages   bool   `glazed.parameter:"show-messages"`
	ConversationID string `glazed.parameter:"conversation-id"`
}

func NewContextCommand() (*ContextCommand, error) {
	return &ContextCommand{
		CommandDescription: cmds.NewCommandDescription(
			"context",
			cmds.WithShort("Assemble the context for a conversation"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"snapshot",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to a JSON/YAML snapshot file"),
				),
				parameters.NewParameterDefinition(
					"db",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to a SQLite database"),
				),
				parameters.NewParameterDefinition(
					"estimate",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Use the cheap length-based token estimator instead of tiktoken"),
					parameters.WithDefault(false),
				),
				parameters.NewParameterDefinition(
					"show-messages",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Print the assembled messages, not just the summary"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"conversation-id",
					parameters.ParameterTypeString,
					parameters.WithHelp("Conversation to assemble context for"),
				),
			),
		),
	}, nil
}

func (c *ContextCommand) RunIntoWriter(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	w io.Writer,
) error {
	s := &ContextSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "failed to initialize settings")
	}
	if s.ConversationID == "" {
		return fmt.Errorf("missing conversation-id argument")
	}

	convStore, repo, closeBackend, err := openBackend(ctx, s.Snapshot, s.Db)
	if err != nil {
		return err
	}
	defer closeBackend()

	var counter tokens.Counter = tokens.NewTiktokenCounter()
	if s.Estimate {
		counter = tokens.Estimator{}
	}

	manager := contextload.NewManager(convStore, links.NewManager(convStore, repo), counter)
	result, err := manager.Load(ctx, conversation.ConversationID(s.ConversationID))
	if err != nil {
		return err
	}

	for _, source := range result.Sources {
		_, err = fmt.Fprintf(w, "source %s (%s): %d messages, %d tokens\n",
			source.ConversationID, source.Title, source.MessageCount, source.Tokens)
		if err != nil {
			return err
		}
	}
	if _, err = fmt.Fprintf(w, "total tokens: %d\n", result.TotalTokens); err != nil {
		return err
	}
	if result.Truncated {
		if _, err = fmt.Fprintf(w, "truncated: %s\n", result.TruncationReason); err != nil {
			return err
		}
	}

	if s.ShowMessages {
		for _, msg := range result.Messages {
			if _, err = fmt.Fprintln(w, msg.View()); err != nil {
				return err
			}
		}
	}
	return nil
}
