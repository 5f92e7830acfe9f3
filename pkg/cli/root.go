package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command

	out io.Writer
}

// NewRootCommand creates the root command writing to out (stdout when nil).
func NewRootCommand(out io.Writer) *Command {
	if out == nil {
		out = os.Stdout
	}
	root := &Command{
		Name:        "heartbeat",
		Description: "Heartbeat - anonymous daily usage statistics",
		Subcommands: make(map[string]*Command),
		out:         out,
	}

	root.Subcommands["daily"] = newDailyCommand(out)
	root.Subcommands["versions"] = newVersionsCommand(out)
	root.Subcommands["leaderboard"] = newLeaderboardCommand(out)
	root.Subcommands["id"] = newIDCommand(out)

	return root
}

// Execute runs the subcommand named by args[0].
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	if arg := strings.ToLower(args[0]); arg == "-h" || arg == "--help" || arg == "help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(c.out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(c.out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
