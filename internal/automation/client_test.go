package automation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/skobkin/meshbridge/internal/config"
)

func TestClientOptionsRunHandlersUnordered(t *testing.T) {
	topics := Topics{Prefix: "mesh"}
	opts := newClientOptions(config.MQTTConfig{
		Broker:   "tcp://127.0.0.1:1883",
		ClientID: "bridge-1",
		Prefix:   "mesh",
		Username: "ops",
		Password: "secret",
	}, topics)

	if opts.Order {
		t.Fatalf("handlers must not run on the ordered router")
	}
	if opts.ClientID != "bridge-1" {
		t.Fatalf("unexpected client id %q", opts.ClientID)
	}
	if !opts.WillEnabled || opts.WillTopic != topics.Status() || string(opts.WillPayload) != "offline" || !opts.WillRetained {
		t.Fatalf("unexpected will: enabled=%v topic=%q payload=%q retained=%v",
			opts.WillEnabled, opts.WillTopic, opts.WillPayload, opts.WillRetained)
	}
	if opts.Username != "ops" || opts.Password != "secret" {
		t.Fatalf("credentials not applied")
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Fatalf("expected clean session with auto reconnect")
	}
}

func TestClientOptionsDefaultClientID(t *testing.T) {
	opts := newClientOptions(config.MQTTConfig{Broker: "tcp://127.0.0.1:1883"}, Topics{})
	if len(opts.ClientID) <= len("meshbridge-") || opts.ClientID[:len("meshbridge-")] != "meshbridge-" {
		t.Fatalf("unexpected generated client id %q", opts.ClientID)
	}
	if opts.Username != "" {
		t.Fatalf("expected no username")
	}
}

type stubMessage struct {
	topic   string
	payload []byte
}

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 1 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return m.topic }
func (m stubMessage) MessageID() uint16 { return 1 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}

func TestWrapHandlerRecoversPanic(t *testing.T) {
	c := &Client{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	var gotTopic string
	ok := c.wrapHandler(func(topic string, payload []byte) error {
		gotTopic = topic
		return nil
	})
	ok(nil, stubMessage{topic: "mesh/action/send_text", payload: []byte("{}")})
	if gotTopic != "mesh/action/send_text" {
		t.Fatalf("handler not called, topic %q", gotTopic)
	}

	bad := c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	bad(nil, stubMessage{topic: "mesh/action/power_on"})
}
