package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/skobkin/meshbridge/internal/app"
	"github.com/skobkin/meshbridge/internal/config"
	"github.com/skobkin/meshbridge/internal/persistence"
)

var errPurgeNotConfirmed = errors.New("purge deletes the whole journal, pass -yes to confirm")

// runPurge empties the journal configured for the bridge.
func runPurge(ctx context.Context, args []string, out io.Writer) error {
	fs, path := newFlagSet("purge")
	confirmed := fs.Bool("yes", false, "confirm deleting every journaled node, message and event")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*confirmed {
		return errPurgeNotConfirmed
	}

	cfgPath, err := resolveConfigPath(*path)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	paths, err := app.ResolvePaths()
	if err != nil {
		return err
	}
	dbPath, err := paths.DataFile(cfg.Journal.Path)
	if err != nil {
		return err
	}

	db, err := persistence.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	deleted, err := persistence.Purge(ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "purged %s\n", dbPath)
	for _, table := range persistence.JournalTables {
		fmt.Fprintf(out, "  %-9s %d\n", table, deleted[table])
	}

	return nil
}
