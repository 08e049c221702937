// Package link tracks the radio boot lifecycle and the single in-flight
// outgoing message. It never blocks and never reads the clock: every method
// takes the current time, and timers are evaluated by Tick.
package link

import (
	"log/slog"
	"time"
)

// Machine is not safe for concurrent use; its owner serializes all calls.
type Machine struct {
	logger *slog.Logger
	cfg    Config
	hooks  Hooks

	state      State
	stateSince time.Time

	settleAt     time.Time
	bootDeadline time.Time
	nextProbe    time.Time

	inFlight *OutgoingMessage
}

func New(logger *slog.Logger, cfg Config, hooks Hooks) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BootTimeout <= 0 {
		cfg.BootTimeout = def.BootTimeout
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.PowerOnDelay < 0 {
		cfg.PowerOnDelay = 0
	}

	return &Machine{
		logger: logger,
		cfg:    cfg,
		hooks:  hooks,
		state:  StateOff,
	}
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) StateSince() time.Time {
	return m.stateSince
}

// InFlight returns a copy of the message awaiting acknowledgement.
func (m *Machine) InFlight() (OutgoingMessage, bool) {
	if m.inFlight == nil {
		return OutgoingMessage{}, false
	}

	return *m.inFlight, true
}

// PowerOn starts the boot sequence from Off or Failed. It is a no-op in the
// other states.
func (m *Machine) PowerOn(now time.Time) {
	switch m.state {
	case StateOff, StateFailed:
	default:
		m.logger.Debug("power on ignored", "state", m.state)
		return
	}

	m.power(true)
	m.settleAt = now.Add(m.cfg.PowerOnDelay)
	m.transition(StatePoweringOn, now)
}

// PowerOff returns to Off from any state. The in-flight message and all
// timers are discarded without emitting events.
func (m *Machine) PowerOff(now time.Time) {
	if m.inFlight != nil {
		m.logger.Info("discarding in-flight message on power off", "packet_id", m.inFlight.PacketID)
	}
	m.inFlight = nil
	m.resetTimers()
	m.power(false)
	if m.state != StateOff {
		m.transition(StateOff, now)
	}
}

// Tick evaluates every deadline against now.
func (m *Machine) Tick(now time.Time) {
	switch m.state {
	case StatePoweringOn:
		if !now.Before(m.settleAt) {
			m.enterBooting(now)
		}
	case StateBooting:
		if !now.Before(m.bootDeadline) {
			m.logger.Warn("boot timeout, radio did not report ready", "timeout", m.cfg.BootTimeout)
			m.transition(StateFailed, now)
			return
		}
		if !now.Before(m.nextProbe) {
			m.probe(now)
		}
	case StateReady:
		if m.inFlight != nil && !now.Before(m.inFlight.Deadline) {
			msg := *m.inFlight
			m.inFlight = nil
			m.logger.Warn("ack timeout", "packet_id", msg.PacketID, "timeout", m.cfg.AckTimeout)
			m.emit(Event{Kind: EventSendFailed, At: now, PacketID: msg.PacketID, To: msg.Destination, Channel: msg.Channel, Reason: "ack timeout"})
		}
	}
}

// ObserveReady handles the radio's ready signal. It only has an effect while
// booting and reports whether the link became ready.
func (m *Machine) ObserveReady(now time.Time) bool {
	if m.state != StateBooting {
		m.logger.Debug("ready signal ignored", "state", m.state)
		return false
	}

	m.resetTimers()
	m.transition(StateReady, now)
	m.emit(Event{Kind: EventReady, At: now})

	return true
}

// ObserveText forwards an inbound text message while the link is ready.
func (m *Machine) ObserveText(text string, from, to uint32, channel uint8, now time.Time) bool {
	if m.state != StateReady {
		return false
	}
	m.emit(Event{Kind: EventMessage, At: now, Text: text, From: from, To: to, Channel: channel})

	return true
}

// Enqueue makes msg the in-flight message. Sends are accepted only while
// ready and only when nothing is awaiting acknowledgement; a rejected call
// leaves the machine untouched.
func (m *Machine) Enqueue(msg OutgoingMessage, now time.Time) (OutgoingMessage, error) {
	if m.state != StateReady {
		return OutgoingMessage{}, ErrNotReady
	}
	if m.inFlight != nil {
		return OutgoingMessage{}, ErrBusy
	}

	msg.EnqueuedAt = now
	msg.Deadline = now.Add(m.cfg.AckTimeout)
	m.inFlight = &msg

	return msg, nil
}

// Cancel drops the in-flight message without an event, used when the frame
// could not be written at all.
func (m *Machine) Cancel(packetID uint32) bool {
	if m.inFlight == nil || m.inFlight.PacketID != packetID {
		return false
	}
	m.inFlight = nil

	return true
}

// Resolve settles the in-flight message with a matching packet id.
// Non-matching ids are ignored.
func (m *Machine) Resolve(packetID uint32, delivered bool, reason string, now time.Time) bool {
	if m.inFlight == nil || m.inFlight.PacketID != packetID {
		return false
	}
	msg := *m.inFlight
	m.inFlight = nil

	ev := Event{At: now, PacketID: packetID, To: msg.Destination, Channel: msg.Channel, Reason: reason}
	if delivered {
		ev.Kind = EventSendSuccess
	} else {
		ev.Kind = EventSendFailed
	}
	m.emit(ev)

	return true
}

// Rebooted handles an unsolicited radio restart. A ready link falls back to
// booting; an in-flight message is failed.
func (m *Machine) Rebooted(now time.Time) {
	switch m.state {
	case StateReady, StateBooting:
	default:
		return
	}

	m.failInFlight(now, "radio rebooted")
	m.logger.Info("radio rebooted", "state", m.state)
	m.enterBooting(now)
}

// LinkError moves an active link to Failed.
func (m *Machine) LinkError(err error, now time.Time) {
	switch m.state {
	case StateOff, StateFailed:
		return
	}

	m.logger.Error("link error", "state", m.state, "error", err)
	m.failInFlight(now, "link error")
	m.resetTimers()
	m.transition(StateFailed, now)
}

// enterBooting keeps the running boot deadline when already booting, so a
// radio stuck in a reboot loop still fails.
func (m *Machine) enterBooting(now time.Time) {
	if m.state != StateBooting {
		m.bootDeadline = now.Add(m.cfg.BootTimeout)
		m.transition(StateBooting, now)
	}
	m.probe(now)
}

func (m *Machine) probe(now time.Time) {
	m.nextProbe = now.Add(m.cfg.ProbeInterval)
	if m.hooks.Probe != nil {
		m.hooks.Probe()
	}
}

func (m *Machine) failInFlight(now time.Time, reason string) {
	if m.inFlight == nil {
		return
	}
	msg := *m.inFlight
	m.inFlight = nil
	m.emit(Event{Kind: EventSendFailed, At: now, PacketID: msg.PacketID, To: msg.Destination, Channel: msg.Channel, Reason: reason})
}

func (m *Machine) resetTimers() {
	m.settleAt = time.Time{}
	m.bootDeadline = time.Time{}
	m.nextProbe = time.Time{}
}

func (m *Machine) transition(to State, now time.Time) {
	from := m.state
	m.state = to
	m.stateSince = now
	m.logger.Info("link state changed", "from", from, "to", to)
	if m.hooks.Transition != nil {
		m.hooks.Transition(from, to)
	}
}

func (m *Machine) power(on bool) {
	if m.hooks.Power != nil {
		m.hooks.Power(on)
	}
}

func (m *Machine) emit(ev Event) {
	if m.hooks.Event != nil {
		m.hooks.Event(ev)
	}
}
