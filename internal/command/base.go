package command

import (
	"flag"
	"io"
)

// Command is a subcommand of the replharness binary.
type Command interface {
	// Name is the word used to select the command.
	Name() string

	// Description is a one-line summary shown by help.
	Description() string

	// Usage is the synopsis shown by help.
	Usage() string

	// SetupFlags registers the command's flags on fs, before parsing.
	SetupFlags(fs *flag.FlagSet)

	// Execute runs the command with the positional arguments left after flag
	// parsing.
	Execute(args []string, stdout, stderr io.Writer) error
}

// BaseCommand implements the descriptive half of Command, for embedding.
type BaseCommand struct {
	name        string
	description string
	usage       string
}

// NewBaseCommand creates a new BaseCommand.
func NewBaseCommand(name, description, usage string) *BaseCommand {
	return &BaseCommand{
		name:        name,
		description: description,
		usage:       usage,
	}
}

func (c *BaseCommand) Name() string { return c.name }

func (c *BaseCommand) Description() string { return c.description }

func (c *BaseCommand) Usage() string { return c.usage }

// SetupFlags registers nothing. Commands with flags override it.
func (c *BaseCommand) SetupFlags(fs *flag.FlagSet) {}
