package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
)

type inlineQueue struct{}

func (inlineQueue) Enqueue(_ string, fn func(context.Context) error) {
	_ = fn(context.Background())
}

type memoryRepos struct {
	mu       sync.Mutex
	nodes    []Node
	messages []Message
	statuses map[uint32]MessageStatus
	events   []Event
}

func (r *memoryRepos) Upsert(_ context.Context, n Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, n)
	return nil
}

func (r *memoryRepos) ListSortedByLastHeard(context.Context) ([]Node, error) { return nil, nil }

type memoryMessages struct{ *memoryRepos }

func (r memoryMessages) Insert(_ context.Context, m Message) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return int64(len(r.messages)), nil
}

func (r memoryMessages) UpdateStatusByPacketID(_ context.Context, packetID uint32, status MessageStatus, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[packetID] = status
	return nil
}

func (r memoryMessages) ListRecent(context.Context, int) ([]Message, error) { return nil, nil }

type memoryEvents struct{ *memoryRepos }

func (r memoryEvents) Insert(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r memoryEvents) ListRecent(context.Context, string, int) ([]Event, error) { return nil, nil }

func (r memoryEvents) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *memoryRepos) snapshot() ([]Node, []Message, map[uint32]MessageStatus, []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make(map[uint32]MessageStatus, len(r.statuses))
	for k, v := range r.statuses {
		statuses[k] = v
	}
	return append([]Node(nil), r.nodes...), append([]Message(nil), r.messages...), statuses, append([]Event(nil), r.events...)
}

func TestPersistenceProjectionJournalsTraffic(t *testing.T) {
	b := bus.New(discardLogger())
	t.Cleanup(b.Close)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	repos := &memoryRepos{statuses: map[uint32]MessageStatus{}}
	StartPersistenceProjection(ctx, b, inlineQueue{}, repos, memoryMessages{repos}, memoryEvents{repos})

	at := time.Unix(1_700_000_000, 0)
	b.Publish(connectors.TopicNodeInfo, connectors.NodeSeen{NodeID: "!0000beef", LongName: "Gate", Local: true, At: at})
	b.Publish(connectors.TopicMessage, connectors.BridgeEvent{Kind: "message", From: "!0a0b0c0d", To: "^all", Text: "ping", At: at})
	b.Publish(connectors.TopicTextSent, connectors.BridgeEvent{Kind: connectors.EventKindSent, PacketID: 42, To: "^all", Text: "pong", At: at})
	b.Publish(connectors.TopicSendFailed, connectors.BridgeEvent{Kind: "send_failed", PacketID: 42, Reason: "ack timeout", At: at})
	b.Publish(connectors.TopicState, connectors.BridgeState{State: "ready", Since: at})
	b.Publish(connectors.TopicState, connectors.BridgeState{State: "ready", Since: at, InFlight: 42})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		nodes, messages, statuses, events := repos.snapshot()
		if len(nodes) == 2 && len(messages) == 2 && statuses[42] == MessageStatusFailed && len(events) == 2 {
			if messages[0].Direction == messages[1].Direction {
				t.Fatalf("expected one inbound and one outbound message: %+v", messages)
			}
			for _, e := range events {
				if e.ID == "" {
					t.Fatalf("event without id: %+v", e)
				}
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	nodes, messages, statuses, events := repos.snapshot()
	t.Fatalf("projection incomplete: nodes=%d messages=%d statuses=%v events=%+v", len(nodes), len(messages), statuses, events)
}
