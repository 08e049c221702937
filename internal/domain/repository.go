package domain

import (
	"context"
	"time"
)

type NodeRepository interface {
	Upsert(ctx context.Context, n Node) error
	ListSortedByLastHeard(ctx context.Context) ([]Node, error)
}

type MessageRepository interface {
	Insert(ctx context.Context, m Message) (int64, error)
	UpdateStatusByPacketID(ctx context.Context, packetID uint32, status MessageStatus, reason string) error
	ListRecent(ctx context.Context, limit int) ([]Message, error)
}

type EventRepository interface {
	Insert(ctx context.Context, e Event) error
	ListRecent(ctx context.Context, kind string, limit int) ([]Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
