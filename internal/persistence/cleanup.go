package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skobkin/meshbridge/internal/domain"
)

// JournalTables lists the tables Purge empties, in deletion order.
var JournalTables = []string{"messages", "events", "nodes"}

// Purge empties every journal table in one transaction and reports the number
// of deleted rows per table. The schema version is kept.
func Purge(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errors.New("journal is not open")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin purge: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	deleted := make(map[string]int64, len(JournalTables))
	for _, table := range JournalTables {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table)
		if err != nil {
			return nil, fmt.Errorf("purge %s: %w", table, err)
		}
		if deleted[table], err = res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("count purged %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purge: %w", err)
	}

	return deleted, nil
}

// StartRetentionPruner deletes events older than retention once at start and
// then every interval. A non-positive retention disables pruning.
func StartRetentionPruner(ctx context.Context, logger *slog.Logger, events domain.EventRepository, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	prune := func() {
		n, err := events.DeleteOlderThan(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("prune journal events", "error", err)
			return
		}
		if n > 0 {
			logger.Info("pruned journal events", "count", n, "retention", retention)
		}
	}

	go func() {
		prune()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prune()
			}
		}
	}()
}
