package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/heartbeat/pkg/observability"
	"github.com/platinummonkey/heartbeat/pkg/storage"
)

const usage = `usage: heartbeat-migrate [flags] <up|down|status>

Applies the embedded event store migrations.

flags:
`

func main() {
	dialectName := flag.String("dialect", getEnv("HEARTBEAT_STORAGE_TYPE", "postgres"), "Database dialect (postgres or sqlite3)")
	dbURL := flag.String("db-url", getEnv("HEARTBEAT_DATABASE_URL", ""), "Database URL or SQLite path")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := observability.NewLogger(logrus.InfoLevel, observability.TextFormat, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, flag.Arg(0), *dialectName, *dbURL, os.Stdout, logger); err != nil {
		logger.WithError(err).Error("migration failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, command, dialectName, dbURL string, out io.Writer, logger logrus.FieldLogger) error {
	dialect, err := storage.ParseDialect(dialectName)
	if err != nil {
		return err
	}
	if dbURL == "" {
		return fmt.Errorf("database URL is required (-db-url or HEARTBEAT_DATABASE_URL)")
	}

	conns, err := storage.NewConnectionManager(ctx, storage.DefaultConnectionConfig(dialect, dbURL), logger)
	if err != nil {
		return err
	}
	defer conns.Close()
	db := conns.Primary()

	switch command {
	case "up":
		return storage.Migrate(ctx, db, dialect, logger)
	case "down":
		version, err := storage.MigrateDown(ctx, db, dialect)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "rolled back version %d\n", version)
		return nil
	case "status":
		statuses, err := storage.MigrationStatus(ctx, db, dialect)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tSOURCE")
		for _, s := range statuses {
			applied := "-"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
