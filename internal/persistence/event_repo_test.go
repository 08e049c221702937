package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/meshbridge/internal/domain"
)

func TestEventRepoListFiltersByKind(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepo(openTestDB(t))
	base := time.UnixMilli(1_700_000_000_000)

	events := []domain.Event{
		{ID: "a", Kind: "state", State: "ready", At: base},
		{ID: "b", Kind: "send_failed", PacketID: 7, Reason: "ack timeout", At: base.Add(time.Second)},
		{ID: "c", Kind: "state", State: "failed", At: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("insert %s: %v", e.ID, err)
		}
	}
	// Duplicate ids are ignored.
	if err := repo.Insert(ctx, events[0]); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	states, err := repo.ListRecent(ctx, "state", 10)
	if err != nil {
		t.Fatalf("list states: %v", err)
	}
	if len(states) != 2 || states[0].ID != "c" || states[0].State != "failed" {
		t.Fatalf("unexpected state events: %+v", states)
	}

	all, err := repo.ListRecent(ctx, "", 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[1].PacketID != 7 || all[1].Reason != "ack timeout" {
		t.Fatalf("failure fields did not round trip: %+v", all[1])
	}
}

func TestEventRepoDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepo(openTestDB(t))
	base := time.UnixMilli(1_700_000_000_000)

	for i, id := range []string{"old", "mid", "new"} {
		if err := repo.Insert(ctx, domain.Event{ID: id, Kind: "ready", At: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	n, err := repo.DeleteOlderThan(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	left, _ := repo.ListRecent(ctx, "", 10)
	if len(left) != 1 || left[0].ID != "new" {
		t.Fatalf("unexpected remaining events: %+v", left)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := raw.ExecContext(ctx, `PRAGMA user_version = 99;`); err != nil {
		t.Fatalf("set version: %v", err)
	}
	_ = raw.Close()

	if _, err := Open(ctx, path); err == nil {
		t.Fatalf("expected error for newer schema")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := range 2 {
		db, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		_ = db.Close()
	}
}
