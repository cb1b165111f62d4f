package commands

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/pkg/buganalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/filehistory"
	"github.com/Sumatoshi-tech/mozdata/pkg/schema"
	"github.com/Sumatoshi-tech/mozdata/pkg/statusflags"
)

// ErrUnknownOutput indicates a command without a JSON output schema.
var ErrUnknownOutput = errors.New("no output schema for command")

// outputs holds, per command, a typed nil of the value its JSON output encodes.
var outputs = map[string]any{
	"bug":         (*buganalysis.Report)(nil),
	"dup":         map[string]*int(nil),
	"landings":    []Landing(nil),
	"statusflags": (*statusflags.Result)(nil),
	"filestats":   (*filehistory.FileStats)(nil),
}

// OutputNames lists the commands with an output schema.
func OutputNames() []string {
	return slices.Sorted(maps.Keys(outputs))
}

// OutputSchema returns the schema of the --format json output of command.
func OutputSchema(command string) (*schema.Schema, error) {
	v, ok := outputs[command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutput, command)
	}

	return schema.For("mozdata "+command, v), nil
}

// NewSchemaCommand creates the command printing output schemas.
func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command]",
		Short: "Print the JSON Schema of a command's JSON output",
		Long: `Print the draft-07 JSON Schema describing the --format json output of
a command. Without an argument, list the commands that have one.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: OutputNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range OutputNames() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}

				return nil
			}

			s, err := OutputSchema(args[0])
			if err != nil {
				return err
			}

			data, err := s.Encode()
			if err != nil {
				return fmt.Errorf("encode schema: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)

			return err
		},
	}
}
