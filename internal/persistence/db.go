package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite" // register sqlite driver
)

var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// dsn builds a modernc sqlite URI that applies connPragmas on every new
// connection.
func dsn(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")

	return "file:" + path + "?" + q.Encode()
}

// Open opens the journal database at path and brings its schema up to date.
func Open(ctx context.Context, path string) (db *sql.DB, err error) {
	db, err = sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	// The writer queue is the only writer.
	db.SetMaxOpenConns(1)
	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite db %s: %w", path, err)
	}
	if err = migrate(ctx, db); err != nil {
		return nil, err
	}

	return db, nil
}
