package telemetry

import (
	"context"
	"strconv"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
)

const (
	measurementEvent = "meshbridge_event"
	measurementState = "meshbridge_state"
	measurementConn  = "meshbridge_connection"
)

// PointWriter accepts points for async delivery.
type PointWriter interface {
	WritePoint(p *write.Point)
}

var recordedTopics = []string{
	connectors.TopicReady,
	connectors.TopicMessage,
	connectors.TopicTextSent,
	connectors.TopicSendSuccess,
	connectors.TopicSendFailed,
	connectors.TopicState,
	connectors.TopicConnStatus,
}

// StartRecorder turns bridge events, state changes and connection status
// into points until ctx is done.
func StartRecorder(ctx context.Context, b bus.MessageBus, w PointWriter) {
	lastState := ""
	bus.Consume(ctx, b, func(raw any) {
		if st, isState := raw.(connectors.BridgeState); isState {
			if st.State == lastState {
				return
			}
			lastState = st.State
		}
		if p, ok := pointFor(raw); ok {
			w.WritePoint(p)
		}
	}, recordedTopics...)
}

func pointFor(raw any) (*write.Point, bool) {
	switch v := raw.(type) {
	case connectors.BridgeEvent:
		tags := map[string]string{"kind": v.Kind}
		fields := map[string]any{"count": int64(1)}
		switch v.Kind {
		case "message", connectors.EventKindSent:
			tags["channel"] = strconv.Itoa(int(v.Channel))
			fields["bytes"] = int64(len(v.Text))
			if v.From != "" {
				tags["from"] = v.From
			}
		case "send_failed":
			if v.Reason != "" {
				tags["reason"] = v.Reason
			}
		}
		return write.NewPoint(measurementEvent, tags, fields, v.At), true
	case connectors.BridgeState:
		return write.NewPoint(
			measurementState,
			map[string]string{"state": v.State},
			map[string]any{
				"ready":           v.Ready,
				"applying_config": v.ApplyingConfig,
				"config_applied":  v.ConfigApplied,
			},
			v.Since,
		), true
	case connectors.ConnStatus:
		return write.NewPoint(
			measurementConn,
			map[string]string{"state": string(v.State), "transport": v.TransportName},
			map[string]any{"connected": v.State == connectors.ConnectionStateConnected},
			v.Timestamp,
		), true
	default:
		return nil, false
	}
}
