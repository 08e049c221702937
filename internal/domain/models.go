package domain

import (
	"strings"
	"time"
)

type MessageDirection int

const (
	MessageDirectionIn MessageDirection = iota + 1
	MessageDirectionOut
)

func (d MessageDirection) String() string {
	switch d {
	case MessageDirectionIn:
		return "in"
	case MessageDirectionOut:
		return "out"
	default:
		return "unknown"
	}
}

type MessageStatus int

const (
	MessageStatusPending MessageStatus = iota + 1
	MessageStatusReceived
	MessageStatusAcked
	MessageStatusFailed
)

func (s MessageStatus) String() string {
	switch s {
	case MessageStatusPending:
		return "pending"
	case MessageStatusReceived:
		return "received"
	case MessageStatusAcked:
		return "acked"
	case MessageStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ShouldTransitionMessageStatus reports whether an outbound message may move
// from current to next. A late ack still wins over a timeout.
func ShouldTransitionMessageStatus(current, next MessageStatus) bool {
	switch current {
	case MessageStatusPending:
		return next == MessageStatusAcked || next == MessageStatusFailed
	case MessageStatusFailed:
		return next == MessageStatusAcked
	default:
		return false
	}
}

// Message is a text message that crossed the bridge in either direction.
type Message struct {
	LocalID   int64
	PacketID  uint32
	Direction MessageDirection
	From      string
	To        string
	Channel   uint8
	Body      string
	Status    MessageStatus
	Reason    string
	At        time.Time
}

// Event is a journal record of a bridge lifecycle event.
type Event struct {
	ID       string
	Kind     string
	At       time.Time
	PacketID uint32
	State    string
	Reason   string
}

type Node struct {
	NodeID      string
	LongName    string
	ShortName   string
	Local       bool
	LastHeardAt time.Time
	UpdatedAt   time.Time
}

// DisplayName prefers the long name, then the short name, then the id.
func (n Node) DisplayName() string {
	for _, v := range []string{n.LongName, n.ShortName, n.NodeID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
