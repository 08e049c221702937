// Package bus fans bridge events out to in-process consumers.
package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cskr/pubsub"
)

// subscriberBuffer is the per-subscription channel capacity. A subscriber
// that falls this far behind blocks publishers.
const subscriberBuffer = 128

type Subscription chan any

// MessageBus fans payloads out to topic subscribers. A subscription to
// several topics receives their messages in publish order.
type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topics ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

func New(logger *slog.Logger) *PubSubBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &PubSubBus{
		ps:     pubsub.New(subscriberBuffer),
		logger: logger,
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.logger.Debug("publish", "topic", topic, "payload_type", fmt.Sprintf("%T", msg))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	b.logger.Debug("subscribe", "topics", topics)
	return b.ps.Sub(topics...)
}

// Unsubscribe without topics drops ch from every topic and closes it.
func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	b.logger.Debug("unsubscribe", "topics", topics)
	b.ps.Unsub(ch, topics...)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

// Consume subscribes before returning and then calls fn for every message
// on topics from a single goroutine until ctx is done or the bus closes.
func Consume(ctx context.Context, b MessageBus, fn func(msg any), topics ...string) {
	sub := b.Subscribe(topics...)
	go func() {
		for {
			select {
			case <-ctx.Done():
				drainingUnsubscribe(b, sub, topics)
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				fn(msg)
			}
		}
	}()
}

// drainingUnsubscribe keeps reading sub while the unsubscribe is pending so
// a publisher blocked on the full channel cannot deadlock against it.
func drainingUnsubscribe(b MessageBus, sub Subscription, topics []string) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-sub:
				if !ok {
					return
				}
			}
		}
	}()
	b.Unsubscribe(sub, topics...)
	close(done)
}
