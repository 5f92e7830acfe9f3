package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

const defaultServer = "http://localhost:8080"

// queryFlags are shared by the commands reading the API.
type queryFlags struct {
	server  *string
	env     *string
	rawJSON *bool
	timeout *time.Duration
}

func addQueryFlags(fs *flag.FlagSet) queryFlags {
	server := os.Getenv("HEARTBEAT_SERVER")
	if server == "" {
		server = defaultServer
	}
	return queryFlags{
		server:  fs.String("server", server, "Heartbeat server URL"),
		env:     fs.String("env", string(heartbeat.EnvProd), "Environment (dev or prod)"),
		rawJSON: fs.Bool("json", false, "Print the raw JSON response"),
		timeout: fs.Duration("timeout", 15*time.Second, "Request timeout"),
	}
}

func (q queryFlags) client() *StatsClient {
	return NewStatsClient(*q.server, nil)
}

func (q queryFlags) environment() heartbeat.Environment {
	return heartbeat.ParseEnvironment(*q.env)
}

func (q queryFlags) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), *q.timeout)
}

func newDailyCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "daily",
		Description: "Show devices per day for an app",
	}
	cmd.Run = func(args []string) error {
		fs := flag.NewFlagSet("daily", flag.ContinueOnError)
		fs.SetOutput(out)
		q := addQueryFlags(fs)
		appFlag := fs.String("app", "", "App id (may also be given as the first argument)")
		app, err := parseAppArgs(fs, args, appFlag)
		if err != nil {
			return err
		}

		ctx, cancel := q.context()
		defer cancel()
		resp, err := q.client().DailySeries(ctx, app, q.environment())
		if err != nil {
			return err
		}
		if *q.rawJSON {
			return printJSON(out, resp)
		}

		if len(resp.Series) == 0 {
			fmt.Fprintf(out, "No data yet for %s (%s)\n", resp.AppID, resp.Environment)
			return nil
		}
		fmt.Fprintf(out, "%s (%s): latest %d, average %d, peak %d over %d days\n\n",
			resp.AppID, resp.Environment, resp.Summary.Latest, resp.Summary.Average, resp.Summary.Peak, resp.Summary.Days)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tDEVICES")
		for _, day := range resp.Series {
			fmt.Fprintf(w, "%s\t%d\n", day.Date, day.Devices)
		}
		return w.Flush()
	}
	return cmd
}

func newVersionsCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "versions",
		Description: "Show devices per app version",
	}
	cmd.Run = func(args []string) error {
		fs := flag.NewFlagSet("versions", flag.ContinueOnError)
		fs.SetOutput(out)
		q := addQueryFlags(fs)
		appFlag := fs.String("app", "", "App id (may also be given as the first argument)")
		app, err := parseAppArgs(fs, args, appFlag)
		if err != nil {
			return err
		}

		ctx, cancel := q.context()
		defer cancel()
		resp, err := q.client().Versions(ctx, app, q.environment())
		if err != nil {
			return err
		}
		if *q.rawJSON {
			return printJSON(out, resp)
		}

		if len(resp.Versions) == 0 {
			fmt.Fprintf(out, "No data yet for %s (%s)\n", resp.AppID, resp.Environment)
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tDEVICES")
		for _, v := range resp.Versions {
			fmt.Fprintf(w, "%s\t%d\n", v.Version, v.Devices)
		}
		return w.Flush()
	}
	return cmd
}

func newLeaderboardCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "leaderboard",
		Description: "Rank apps by devices on a day",
	}
	cmd.Run = func(args []string) error {
		fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
		fs.SetOutput(out)
		q := addQueryFlags(fs)
		date := fs.String("date", "", "Day as YYYY-MM-DD (default today, UTC)")
		if err := fs.Parse(args); err != nil {
			return err
		}

		var day heartbeat.Date
		if *date != "" {
			parsed, err := heartbeat.ParseDate(*date)
			if err != nil {
				return err
			}
			day = parsed
		}

		ctx, cancel := q.context()
		defer cancel()
		resp, err := q.client().Leaderboard(ctx, q.environment(), day)
		if err != nil {
			return err
		}
		if *q.rawJSON {
			return printJSON(out, resp)
		}

		if len(resp.Apps) == 0 {
			fmt.Fprintf(out, "No data yet for %s (%s)\n", resp.Date, resp.Environment)
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tAPP\tDEVICES")
		for i, app := range resp.Apps {
			fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, app.AppID, app.Devices)
		}
		return w.Flush()
	}
	return cmd
}

// parseAppArgs parses args and returns the app id, taken from the first
// positional argument or the -app flag. Flags may follow the app id.
func parseAppArgs(fs *flag.FlagSet, args []string, appFlag *string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	app := *appFlag
	if fs.NArg() > 0 {
		if app != "" && app != fs.Arg(0) {
			return "", fmt.Errorf("conflicting app ids %q and %q", app, fs.Arg(0))
		}
		app = fs.Arg(0)
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			return "", err
		}
		if fs.NArg() > 0 {
			return "", fmt.Errorf("unexpected arguments: %v", fs.Args())
		}
	}
	if app == "" {
		return "", fmt.Errorf("app is required")
	}
	return app, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
