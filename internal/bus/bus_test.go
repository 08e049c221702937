package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testBus(t *testing.T) *PubSubBus {
	t.Helper()
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(b.Close)
	return b
}

func receive(t *testing.T, sub Subscription) any {
	t.Helper()
	select {
	case msg := <-sub:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message received")
		return nil
	}
}

func TestMultiTopicSubscriptionKeepsPublishOrder(t *testing.T) {
	b := testBus(t)
	sub := b.Subscribe("a", "b")

	b.Publish("a", 1)
	b.Publish("b", 2)
	b.Publish("c", 99)
	b.Publish("a", 3)

	for _, want := range []int{1, 2, 3} {
		if got := receive(t, sub); got != want {
			t.Fatalf("got %v want %d", got, want)
		}
	}
}

func TestUnsubscribeTopic(t *testing.T) {
	b := testBus(t)
	sub := b.Subscribe("a", "b")
	b.Unsubscribe(sub, "a")

	b.Publish("a", "dropped")
	b.Publish("b", "kept")
	if got := receive(t, sub); got != "kept" {
		t.Fatalf("unexpected message %v", got)
	}
}

func TestConsumeDeliversUntilCancelled(t *testing.T) {
	b := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan any, 4)
	Consume(ctx, b, func(msg any) { got <- msg }, "events")

	// Consume subscribes synchronously, so nothing published now is lost.
	b.Publish("events", "first")
	b.Publish("other", "ignored")
	b.Publish("events", "second")

	for _, want := range []string{"first", "second"} {
		select {
		case msg := <-got:
			if msg != want {
				t.Fatalf("got %v want %s", msg, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("consumer did not receive %s", want)
		}
	}

	cancel()
	time.Sleep(20 * time.Millisecond)
	b.Publish("events", "late")
	select {
	case msg := <-got:
		t.Fatalf("consumer still running, got %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
