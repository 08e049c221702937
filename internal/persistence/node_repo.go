package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skobkin/meshbridge/internal/domain"
)

// NodeRepo journals the node directory.
type NodeRepo struct {
	db *sql.DB
}

func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

// A blank name keeps the stored one. The local flag is sticky and
// last_heard_at never moves backwards.
const upsertNodeSQL = `
	INSERT INTO nodes(node_id, long_name, short_name, is_local, last_heard_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(node_id) DO UPDATE SET
		long_name = COALESCE(NULLIF(excluded.long_name, ''), nodes.long_name),
		short_name = COALESCE(NULLIF(excluded.short_name, ''), nodes.short_name),
		is_local = MAX(nodes.is_local, excluded.is_local),
		last_heard_at = MAX(nodes.last_heard_at, excluded.last_heard_at),
		updated_at = excluded.updated_at
`

func (r *NodeRepo) Upsert(ctx context.Context, n domain.Node) error {
	if _, err := r.db.ExecContext(ctx, upsertNodeSQL,
		n.NodeID, n.LongName, n.ShortName, n.Local, millis(n.LastHeardAt), millis(n.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert node %s: %w", n.NodeID, err)
	}

	return nil
}

// ListSortedByLastHeard returns every node, most recently heard first.
func (r *NodeRepo) ListSortedByLastHeard(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, long_name, short_name, is_local, last_heard_at, updated_at
		FROM nodes
		ORDER BY last_heard_at DESC, node_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return out, nil
}

func scanNode(rows *sql.Rows) (domain.Node, error) {
	var (
		n          domain.Node
		heard, upd millis
	)
	if err := rows.Scan(&n.NodeID, &n.LongName, &n.ShortName, &n.Local, &heard, &upd); err != nil {
		return domain.Node{}, fmt.Errorf("scan node: %w", err)
	}
	n.LastHeardAt = time.Time(heard)
	n.UpdatedAt = time.Time(upd)

	return n, nil
}
