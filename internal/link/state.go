package link

import (
	"errors"
	"time"
)

// State is the lifecycle state of the radio link.
type State int

const (
	StateOff State = iota
	StatePoweringOn
	StateBooting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StatePoweringOn:
		return "powering_on"
	case StateBooting:
		return "booting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MaxTextBytes is the largest text payload the radio accepts in one packet.
const MaxTextBytes = 233

var (
	ErrNotReady       = errors.New("link is not ready")
	ErrBusy           = errors.New("a message is already in flight")
	ErrMessageTooLong = errors.New("message exceeds 233 bytes")
)

// EventKind identifies an event delivered to automation consumers.
type EventKind string

const (
	EventReady       EventKind = "ready"
	EventMessage     EventKind = "message"
	EventSendSuccess EventKind = "send_success"
	EventSendFailed  EventKind = "send_failed"
)

// Event is delivered synchronously from the call that detected it. Text,
// From and Channel are set for EventMessage; PacketID and Reason for the
// send results.
type Event struct {
	Kind     EventKind
	At       time.Time
	Text     string
	From     uint32
	To       uint32
	Channel  uint8
	PacketID uint32
	Reason   string
}

// OutgoingMessage is the single message awaiting acknowledgement.
type OutgoingMessage struct {
	Payload     []byte
	Destination uint32
	Channel     uint8
	PacketID    uint32
	EnqueuedAt  time.Time
	Deadline    time.Time
}

// Config holds the timing parameters of the machine.
type Config struct {
	// PowerOnDelay is how long the radio is given to settle after the power
	// line is asserted before boot probing starts.
	PowerOnDelay time.Duration
	// BootTimeout bounds the time spent in StateBooting.
	BootTimeout time.Duration
	// AckTimeout bounds the wait for an acknowledgement.
	AckTimeout time.Duration
	// ProbeInterval is the period of wake/config requests while booting.
	ProbeInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		PowerOnDelay:  3 * time.Second,
		BootTimeout:   30 * time.Second,
		AckTimeout:    30 * time.Second,
		ProbeInterval: 5 * time.Second,
	}
}

// Hooks connect the machine to its owner. Every hook is optional and called
// synchronously on the caller's goroutine.
type Hooks struct {
	Event      func(Event)
	Transition func(from, to State)
	// Power drives the power-control line.
	Power func(on bool)
	// Probe asks the radio to report readiness.
	Probe func()
}
