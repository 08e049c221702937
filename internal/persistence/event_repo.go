package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skobkin/meshbridge/internal/domain"
)

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) Insert(ctx context.Context, e domain.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events(id, kind, at, packet_id, state, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.Kind, millis(e.At), optPacketID(e.PacketID), optText(e.State), optText(e.Reason))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit newest events. An empty kind matches every kind.
func (r *EventRepo) ListRecent(ctx context.Context, kind string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, at, packet_id, state, reason
		FROM events
		WHERE ? = '' OR kind = ?
		ORDER BY at DESC
		LIMIT ?
	`, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Event
	for rows.Next() {
		var (
			e        domain.Event
			at       millis
			packetID sql.NullInt64
			state    sql.NullString
			reason   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Kind, &at, &packetID, &state, &reason); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At = time.Time(at)
		e.PacketID = uint32(packetID.Int64)
		e.State = state.String
		e.Reason = reason.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (r *EventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, millis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted events: %w", err)
	}
	return n, nil
}
