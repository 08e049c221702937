// Package automation bridges the event bus and the action surface to MQTT.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/skobkin/meshbridge/internal/actions"
	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
)

const actionTimeout = 10 * time.Second

// Broker is the MQTT surface used by the adapter.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Adapter publishes bridge events and state to MQTT and executes actions
// received on the action topics.
type Adapter struct {
	logger *slog.Logger
	bus    bus.MessageBus
	bridge actions.Bridge
	broker Broker
	topics Topics
	qos    byte

	ctx context.Context
}

func NewAdapter(logger *slog.Logger, b bus.MessageBus, bridge actions.Bridge, broker Broker, prefix string, qos byte) *Adapter {
	return &Adapter{
		logger: logger,
		bus:    b,
		bridge: bridge,
		broker: broker,
		topics: Topics{Prefix: prefix},
		qos:    qos,
		ctx:    context.Background(),
	}
}

// Start subscribes to the action topics and forwards bus traffic until ctx
// is done.
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx = ctx
	if err := a.broker.Subscribe(a.topics.ActionWildcard(), a.qos, a.HandleAction); err != nil {
		return fmt.Errorf("subscribe actions: %w", err)
	}

	topics := append([]string{connectors.TopicState}, connectors.EventTopics...)
	sub := a.bus.Subscribe(topics...)
	a.publishState(a.bridge.State())
	go func() {
		defer a.bus.Unsubscribe(sub, topics...)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				a.forward(raw)
			}
		}
	}()

	return nil
}

func (a *Adapter) forward(raw any) {
	switch v := raw.(type) {
	case connectors.BridgeEvent:
		payload, err := json.Marshal(v)
		if err != nil {
			a.logger.Warn("encode event", "kind", v.Kind, "error", err)
			return
		}
		if err := a.broker.Publish(a.topics.Event(v.Kind), payload, a.qos, false); err != nil {
			a.logger.Warn("publish event", "kind", v.Kind, "error", err)
		}
	case connectors.BridgeState:
		a.publishState(v)
	}
}

func (a *Adapter) publishState(st connectors.BridgeState) {
	payload, err := json.Marshal(st)
	if err != nil {
		a.logger.Warn("encode state", "error", err)
		return
	}
	if err := a.broker.Publish(a.topics.State(), payload, a.qos, true); err != nil {
		a.logger.Warn("publish state", "state", st.State, "error", err)
	}
}

// HandleAction executes the action named by topic and publishes its result.
func (a *Adapter) HandleAction(topic string, payload []byte) error {
	name, ok := a.topics.ActionName(topic)
	if !ok {
		return nil
	}

	var res actions.Result
	action, err := actions.Parse(name, payload)
	if err != nil {
		res = actions.Result{Action: actions.Name(name), Error: err.Error()}
	} else {
		ctx, cancel := context.WithTimeout(a.ctx, actionTimeout)
		res, err = actions.Execute(ctx, a.bridge, action)
		cancel()
	}
	if err != nil {
		a.logger.Info("mqtt action rejected", "action", name, "error", err)
	} else {
		a.logger.Info("mqtt action done", "action", name, "packet_id", res.PacketID)
	}

	body, encErr := json.Marshal(res)
	if encErr != nil {
		return fmt.Errorf("encode action result: %w", encErr)
	}
	if pubErr := a.broker.Publish(a.topics.ActionResult(name), body, a.qos, false); pubErr != nil {
		return fmt.Errorf("publish action result: %w", pubErr)
	}
	return nil
}
