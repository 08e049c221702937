package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version holds the count of
// applied entries.
var migrations = []string{
	`CREATE TABLE nodes (
		node_id TEXT PRIMARY KEY,
		long_name TEXT NOT NULL DEFAULT '',
		short_name TEXT NOT NULL DEFAULT '',
		is_local INTEGER NOT NULL DEFAULT 0,
		last_heard_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE messages (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		packet_id INTEGER,
		direction INTEGER NOT NULL,
		from_id TEXT,
		to_id TEXT,
		channel INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL,
		status INTEGER NOT NULL,
		reason TEXT,
		at INTEGER NOT NULL
	);
	CREATE INDEX idx_messages_at ON messages(at);
	CREATE INDEX idx_messages_packet ON messages(packet_id);
	CREATE TABLE events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		at INTEGER NOT NULL,
		packet_id INTEGER,
		state TEXT,
		reason TEXT
	);
	CREATE INDEX idx_events_kind_at ON events(kind, at);`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
