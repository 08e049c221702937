package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skobkin/meshbridge/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Insert(ctx context.Context, m domain.Message) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages(packet_id, direction, from_id, to_id, channel, body, status, reason, at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, optPacketID(m.PacketID), int(m.Direction), optText(m.From), optText(m.To), int(m.Channel), m.Body, int(m.Status), optText(m.Reason), millis(m.At))
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get message local id: %w", err)
	}
	return id, nil
}

// ListRecent returns up to limit most recent messages, oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT local_id, packet_id, direction, from_id, to_id, channel, body, status, reason, at
		FROM messages
		ORDER BY at DESC, local_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpdateStatusByPacketID moves outbound messages with packetID to status when
// the transition is allowed. Unknown packet ids are ignored.
func (r *MessageRepo) UpdateStatusByPacketID(ctx context.Context, packetID uint32, status domain.MessageStatus, reason string) error {
	if packetID == 0 || status == 0 {
		return nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT local_id, status
		FROM messages
		WHERE packet_id = ? AND direction = ?
	`, int64(packetID), int(domain.MessageDirectionOut))
	if err != nil {
		return fmt.Errorf("query messages by packet id: %w", err)
	}
	var toUpdate []int64
	for rows.Next() {
		var (
			id        int64
			statusRaw int
		)
		if err := rows.Scan(&id, &statusRaw); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan message status row: %w", err)
		}
		if domain.ShouldTransitionMessageStatus(domain.MessageStatus(statusRaw), status) {
			toUpdate = append(toUpdate, id)
		}
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return fmt.Errorf("iterate message status rows: %w", err)
	}

	for _, id := range toUpdate {
		if _, err := r.db.ExecContext(ctx, `
			UPDATE messages
			SET status = ?, reason = ?
			WHERE local_id = ?
		`, int(status), optText(reason), id); err != nil {
			return fmt.Errorf("update message status: %w", err)
		}
	}
	return nil
}

func scanMessage(rows *sql.Rows) (domain.Message, error) {
	var (
		m        domain.Message
		packetID sql.NullInt64
		dir      int
		from     sql.NullString
		to       sql.NullString
		channel  int
		status   int
		reason   sql.NullString
		at       millis
	)
	if err := rows.Scan(&m.LocalID, &packetID, &dir, &from, &to, &channel, &m.Body, &status, &reason, &at); err != nil {
		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.PacketID = uint32(packetID.Int64)
	m.Direction = domain.MessageDirection(dir)
	m.From = from.String
	m.To = to.String
	m.Channel = uint8(channel)
	m.Status = domain.MessageStatus(status)
	m.Reason = reason.String
	m.At = time.Time(at)
	return m, nil
}
