package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/platinummonkey/heartbeat/pkg/identity"
	"github.com/platinummonkey/heartbeat/pkg/localstore"
)

func newIDCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "id",
		Description: "Print the device hash of a local state file",
	}
	cmd.Run = func(args []string) error {
		fs := flag.NewFlagSet("id", flag.ContinueOnError)
		fs.SetOutput(out)
		state := fs.String("state", "", "Path to the client state file")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *state == "" {
			return fmt.Errorf("state is required")
		}
		if _, err := os.Stat(*state); err != nil {
			return fmt.Errorf("state file: %w", err)
		}

		ctx := context.Background()
		store, err := localstore.OpenSQLite(ctx, *state)
		if err != nil {
			return err
		}
		defer store.Close()

		raw, ok, err := store.Get(ctx, identity.StoreKey)
		if err != nil {
			return err
		}
		if !ok || strings.TrimSpace(raw) == "" {
			return fmt.Errorf("no identity yet in %s", *state)
		}
		fmt.Fprintln(out, identity.HashID(raw))
		return nil
	}
	return cmd
}
