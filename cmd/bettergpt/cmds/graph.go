package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"

	"github.com/vmanoilov/bettergpt/pkg/links"
)

// GraphCommand builds the conversation graph and emits one row per node.
type GraphCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*GraphCommand)(nil)

type GraphSettings struct {
	Snapshot        string `glazed.parameter:"snapshot"`
	Db              string `glazed.parameter:"db"`
	IncludeArchived bool   `glazed.parameter:"include-archived"`
}

func NewGraphCommand() (*GraphCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &GraphCommand{
		CommandDescription: cmds.NewCommandDescription(
			"graph",
			cmds.WithShort("Build the conversation graph and list its nodes"),
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
					"include-archived",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Include archived conversations"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *GraphCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &GraphSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "failed to initialize settings")
	}

	convStore, repo, closeBackend, err := openBackend(ctx, s.Snapshot, s.Db)
	if err != nil {
		return err
	}
	defer closeBackend()

	manager := links.NewManager(convStore, repo)
	graph, err := manager.BuildGraph(ctx, links.GraphOptions{IncludeArchived: s.IncludeArchived})
	if err != nil {
		return err
	}

	var walkErr error
	graph.Walk(func(node *links.GraphNode) bool {
		row := types.NewRow(
			types.MRP("id", node.Conversation.ID.String()),
			types.MRP("title", node.Conversation.Title),
			types.MRP("model", node.Conversation.Model),
			types.MRP("messages", len(node.Conversation.Messages)),
			types.MRP("outgoing", len(node.Outgoing)),
			types.MRP("incoming", len(node.Incoming)),
		)
		if walkErr = gp.AddRow(ctx, row); walkErr != nil {
			return false
		}
		return true
	})
	return walkErr
}
