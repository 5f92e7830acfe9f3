package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	assert.Equal(t, "heartbeat", root.Name)
	expectedCommands := []string{"daily", "versions", "leaderboard", "id"}
	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
	}
	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestCommandExecute_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--HELP"}, {"help"}} {
		var out bytes.Buffer
		root := NewRootCommand(&out)

		err := root.Execute(args)

		assert.NoError(t, err)
		assert.Contains(t, out.String(), "Usage: heartbeat <command> [args]")
		assert.Contains(t, out.String(), "leaderboard")
	}
}

func TestCommandExecute_Subcommand(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	var received []string
	root.Subcommands["test"] = &Command{
		Name: "test",
		Run: func(args []string) error {
			received = args
			return nil
		},
	}

	assert.NoError(t, root.Execute([]string{"test", "-app", "x"}))
	assert.Equal(t, []string{"-app", "x"}, received)
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	err := root.Execute([]string{"nonexistent"})

	assert.EqualError(t, err, "unknown command: nonexistent")
}
