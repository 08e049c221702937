package domain

import (
	"context"

	"github.com/google/uuid"

	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
)

// WriteQueue serializes persistence writes from async bridge events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// StartPersistenceProjection journals bridge traffic: node identities,
// messages in both directions with their delivery outcome, and lifecycle
// events including link state changes.
func StartPersistenceProjection(ctx context.Context, b bus.MessageBus, queue WriteQueue, nodeRepo NodeRepository, msgRepo MessageRepository, eventRepo EventRepository) {
	topics := []string{
		connectors.TopicNodeInfo,
		connectors.TopicMessage,
		connectors.TopicTextSent,
		connectors.TopicSendSuccess,
		connectors.TopicSendFailed,
		connectors.TopicReady,
		connectors.TopicState,
	}
	sub := b.Subscribe(topics...)

	p := &projection{queue: queue, nodes: nodeRepo, messages: msgRepo, events: eventRepo}
	go func() {
		defer b.Unsubscribe(sub, topics...)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				p.handle(raw)
			}
		}
	}()
}

type projection struct {
	queue    WriteQueue
	nodes    NodeRepository
	messages MessageRepository
	events   EventRepository

	lastState string
}

func (p *projection) handle(raw any) {
	switch v := raw.(type) {
	case connectors.NodeSeen:
		node := NodeFromSeen(v)
		p.queue.Enqueue("upsert_node", func(writeCtx context.Context) error {
			return p.nodes.Upsert(writeCtx, node)
		})
	case connectors.BridgeEvent:
		p.handleEvent(v)
	case connectors.BridgeState:
		if v.State == p.lastState {
			return
		}
		p.lastState = v.State
		p.insertEvent(Event{Kind: "state", At: v.Since, State: v.State})
	}
}

func (p *projection) handleEvent(ev connectors.BridgeEvent) {
	switch ev.Kind {
	case "message":
		msg := Message{
			PacketID:  ev.PacketID,
			Direction: MessageDirectionIn,
			From:      ev.From,
			To:        ev.To,
			Channel:   ev.Channel,
			Body:      ev.Text,
			Status:    MessageStatusReceived,
			At:        ev.At,
		}
		p.queue.Enqueue("insert_message", func(writeCtx context.Context) error {
			if _, err := p.messages.Insert(writeCtx, msg); err != nil {
				return err
			}
			if NormalizeNodeID(msg.From) == "" {
				return nil
			}

			return p.nodes.Upsert(writeCtx, Node{NodeID: msg.From, LastHeardAt: msg.At, UpdatedAt: msg.At})
		})
	case connectors.EventKindSent:
		msg := Message{
			PacketID:  ev.PacketID,
			Direction: MessageDirectionOut,
			From:      ev.From,
			To:        ev.To,
			Channel:   ev.Channel,
			Body:      ev.Text,
			Status:    MessageStatusPending,
			At:        ev.At,
		}
		p.queue.Enqueue("insert_message", func(writeCtx context.Context) error {
			_, err := p.messages.Insert(writeCtx, msg)
			return err
		})
	case "send_success", "send_failed":
		status := MessageStatusAcked
		if ev.Kind == "send_failed" {
			status = MessageStatusFailed
		}
		packetID, reason := ev.PacketID, ev.Reason
		p.queue.Enqueue("update_message_status", func(writeCtx context.Context) error {
			return p.messages.UpdateStatusByPacketID(writeCtx, packetID, status, reason)
		})
		p.insertEvent(Event{Kind: ev.Kind, At: ev.At, PacketID: ev.PacketID, Reason: ev.Reason})
	case "ready":
		p.insertEvent(Event{Kind: ev.Kind, At: ev.At})
	}
}

func (p *projection) insertEvent(e Event) {
	e.ID = uuid.NewString()
	p.queue.Enqueue("insert_event", func(writeCtx context.Context) error {
		return p.events.Insert(writeCtx, e)
	})
}
