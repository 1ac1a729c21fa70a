package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/pkg/errors"

	"github.com/vmanoilov/bettergpt/pkg/tokens"
)

// CountCommand counts the tokens of an input text for a given model.
type CountCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*CountCommand)(nil)

type CountSettings struct {
	Model string `glazed.parameter:"model"`
	Input string `glazed.parameter:"input"`
}

func NewCountCommand() (*CountCommand, error) {
	return &CountCommand{
		CommandDescription: cmds.NewCommandDescription(
			"count",
			cmds.WithShort("Count tokens in the input for a specific model"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"model",
					parameters.ParameterTypeString,
					parameters.WithHelp("Model used for encoding"),
					parameters.WithDefault("gpt-4"),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"input",
					parameters.ParameterTypeStringFromFiles,
					parameters.WithHelp("Input file"),
				),
			),
		),
	}, nil
}

func (c *CountCommand) RunIntoWriter(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	w io.Writer,
) error {
	s := &CountSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "failed to initialize settings")
	}

	counter := tokens.NewTiktokenCounter()
	count, err := counter.Count(s.Input, s.Model)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "Model: %s\nContext limit: %d\nTotal tokens: %d\n",
		s.Model, counter.ContextLimit(s.Model), count)
	return err
}
