package connectors

import "time"

// ConnectionState describes the transport connection lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

type ConnStatus struct {
	State         ConnectionState `json:"state"`
	Err           string          `json:"error,omitempty"`
	TransportName string          `json:"transport"`
	Target        string          `json:"target,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

type RawFrame struct {
	Hex string `json:"hex"`
	Len int    `json:"len"`
}

// BridgeEvent is the automation-facing form of a link event. Node ids are
// rendered as "!xxxxxxxx".
type BridgeEvent struct {
	Kind     string    `json:"kind"`
	At       time.Time `json:"at"`
	Text     string    `json:"text,omitempty"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Channel  uint8     `json:"channel"`
	PacketID uint32    `json:"packet_id,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// BridgeState is a snapshot of the bridge published on every state change.
type BridgeState struct {
	State          string    `json:"state"`
	Since          time.Time `json:"since"`
	Ready          bool      `json:"ready"`
	NodeID         string    `json:"node_id,omitempty"`
	LongName       string    `json:"long_name,omitempty"`
	ShortName      string    `json:"short_name,omitempty"`
	InFlight       uint32    `json:"in_flight_packet_id,omitempty"`
	ApplyingConfig bool      `json:"applying_config"`
	ConfigApplied  bool      `json:"config_applied"`
}

// NodeSeen carries the user record of a node as reported by the radio.
type NodeSeen struct {
	NodeID    string    `json:"node_id"`
	LongName  string    `json:"long_name,omitempty"`
	ShortName string    `json:"short_name,omitempty"`
	Local     bool      `json:"local"`
	At        time.Time `json:"at"`
}
