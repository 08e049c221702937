package link

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type recorder struct {
	events      []Event
	transitions [][2]State
	probes      int
	power       []bool
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Event:      func(ev Event) { r.events = append(r.events, ev) },
		Transition: func(from, to State) { r.transitions = append(r.transitions, [2]State{from, to}) },
		Probe:      func() { r.probes++ },
		Power:      func(on bool) { r.power = append(r.power, on) },
	}
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testConfig() Config {
	return Config{
		PowerOnDelay:  3 * time.Second,
		BootTimeout:   30 * time.Second,
		AckTimeout:    10 * time.Second,
		ProbeInterval: 5 * time.Second,
	}
}

func newTestMachine(t *testing.T) (*Machine, *recorder) {
	t.Helper()
	rec := &recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(logger, testConfig(), rec.hooks()), rec
}

func readyMachine(t *testing.T) (*Machine, *recorder) {
	t.Helper()
	m, rec := newTestMachine(t)
	m.PowerOn(t0)
	m.Tick(t0.Add(3 * time.Second))
	if !m.ObserveReady(t0.Add(4 * time.Second)) {
		t.Fatalf("expected machine to become ready")
	}
	rec.events = nil

	return m, rec
}

func TestBootFlowTimesOutToFailed(t *testing.T) {
	m, rec := newTestMachine(t)

	m.PowerOn(t0)
	if m.State() != StatePoweringOn {
		t.Fatalf("expected powering_on, got %s", m.State())
	}
	if len(rec.power) != 1 || !rec.power[0] {
		t.Fatalf("expected power line to be asserted once, got %v", rec.power)
	}

	m.Tick(t0.Add(2 * time.Second))
	if m.State() != StatePoweringOn {
		t.Fatalf("expected powering_on before settle delay, got %s", m.State())
	}

	m.Tick(t0.Add(3 * time.Second))
	if m.State() != StateBooting {
		t.Fatalf("expected booting after settle delay, got %s", m.State())
	}

	for s := 4; s < 33; s++ {
		m.Tick(t0.Add(time.Duration(s) * time.Second))
		if m.State() != StateBooting {
			t.Fatalf("expected booting at +%ds, got %s", s, m.State())
		}
	}

	m.Tick(t0.Add(33 * time.Second))
	if m.State() != StateFailed {
		t.Fatalf("expected failed after boot timeout, got %s", m.State())
	}
	if n := rec.count(EventReady); n != 0 {
		t.Fatalf("expected no ready event, got %d", n)
	}

	// No automatic recovery.
	m.Tick(t0.Add(10 * time.Minute))
	if m.State() != StateFailed {
		t.Fatalf("expected failed to be terminal, got %s", m.State())
	}
}

func TestBootProbesOnEntryAndPeriodically(t *testing.T) {
	m, rec := newTestMachine(t)
	m.PowerOn(t0)
	m.Tick(t0.Add(3 * time.Second))
	if rec.probes != 1 {
		t.Fatalf("expected probe on entering booting, got %d", rec.probes)
	}
	m.Tick(t0.Add(7 * time.Second))
	if rec.probes != 1 {
		t.Fatalf("expected no probe before interval, got %d", rec.probes)
	}
	m.Tick(t0.Add(8 * time.Second))
	if rec.probes != 2 {
		t.Fatalf("expected second probe after interval, got %d", rec.probes)
	}
}

func TestReadySignalFiresOnce(t *testing.T) {
	m, rec := newTestMachine(t)
	m.PowerOn(t0)
	if m.ObserveReady(t0) {
		t.Fatalf("ready signal must be ignored while powering on")
	}
	m.Tick(t0.Add(3 * time.Second))
	if !m.ObserveReady(t0.Add(5 * time.Second)) {
		t.Fatalf("expected ready")
	}
	if m.ObserveReady(t0.Add(6 * time.Second)) {
		t.Fatalf("second ready signal must be ignored")
	}
	if n := rec.count(EventReady); n != 1 {
		t.Fatalf("expected exactly one ready event, got %d", n)
	}

	// Ready must not time out into failed.
	m.Tick(t0.Add(time.Hour))
	if m.State() != StateReady {
		t.Fatalf("expected ready to persist, got %s", m.State())
	}
}

func TestEnqueueRequiresReady(t *testing.T) {
	m, _ := newTestMachine(t)
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 1}, t0); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestSecondSendIsBusyAndKeepsDeadline(t *testing.T) {
	m, rec := readyMachine(t)

	sentAt := t0.Add(10 * time.Second)
	first, err := m.Enqueue(OutgoingMessage{Payload: []byte("a"), PacketID: 11}, sentAt)
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if !first.Deadline.Equal(sentAt.Add(10 * time.Second)) {
		t.Fatalf("unexpected deadline %v", first.Deadline)
	}

	_, err = m.Enqueue(OutgoingMessage{Payload: []byte("b"), PacketID: 12}, sentAt.Add(time.Second))
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	cur, ok := m.InFlight()
	if !ok {
		t.Fatalf("expected in-flight message")
	}
	if cur.PacketID != 11 || !cur.Deadline.Equal(first.Deadline) {
		t.Fatalf("in-flight message changed: %+v", cur)
	}
	if len(rec.events) != 0 {
		t.Fatalf("busy rejection must not emit events, got %+v", rec.events)
	}
}

func TestAckTimeoutFiresSingleSendFailed(t *testing.T) {
	m, rec := readyMachine(t)

	sentAt := t0.Add(10 * time.Second)
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 21}, sentAt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	m.Tick(sentAt.Add(9 * time.Second))
	if rec.count(EventSendFailed) != 0 {
		t.Fatalf("send failed fired before deadline")
	}

	m.Tick(sentAt.Add(10 * time.Second))
	m.Tick(sentAt.Add(11 * time.Second))
	m.Tick(sentAt.Add(12 * time.Second))
	if n := rec.count(EventSendFailed); n != 1 {
		t.Fatalf("expected exactly one send failed event, got %d", n)
	}
	if rec.events[0].PacketID != 21 || rec.events[0].Reason != "ack timeout" {
		t.Fatalf("unexpected event %+v", rec.events[0])
	}
	if m.State() != StateReady {
		t.Fatalf("ack timeout must not leave ready, got %s", m.State())
	}
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 22}, sentAt.Add(13*time.Second)); err != nil {
		t.Fatalf("expected new send to be accepted, got %v", err)
	}
}

func TestResolveMatchesPacketID(t *testing.T) {
	m, rec := readyMachine(t)
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 31}, t0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if m.Resolve(99, true, "", t0) {
		t.Fatalf("foreign ack must be ignored")
	}
	if !m.Resolve(31, true, "", t0.Add(time.Second)) {
		t.Fatalf("expected matching ack to resolve")
	}
	if m.Resolve(31, true, "", t0.Add(2*time.Second)) {
		t.Fatalf("duplicate ack must be ignored")
	}
	if rec.count(EventSendSuccess) != 1 || len(rec.events) != 1 {
		t.Fatalf("expected single send success, got %+v", rec.events)
	}

	// A late deadline must not fire after the ack.
	m.Tick(t0.Add(time.Minute))
	if rec.count(EventSendFailed) != 0 {
		t.Fatalf("unexpected send failed after ack")
	}
}

func TestResolveNak(t *testing.T) {
	m, rec := readyMachine(t)
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 41}, t0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	m.Resolve(41, false, "NO_ROUTE", t0)
	if rec.count(EventSendFailed) != 1 || rec.events[0].Reason != "NO_ROUTE" {
		t.Fatalf("unexpected events %+v", rec.events)
	}
}

func TestPowerOffDiscardsEverything(t *testing.T) {
	m, rec := readyMachine(t)
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 51}, t0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	m.PowerOff(t0.Add(time.Second))
	if m.State() != StateOff {
		t.Fatalf("expected off, got %s", m.State())
	}
	if _, ok := m.InFlight(); ok {
		t.Fatalf("expected in-flight message to be discarded")
	}
	if rec.power[len(rec.power)-1] {
		t.Fatalf("expected power line to be released")
	}

	m.Tick(t0.Add(time.Hour))
	if len(rec.events) != 0 {
		t.Fatalf("expected no events after power off, got %+v", rec.events)
	}
}

func TestPowerOffDuringBootCancelsTimers(t *testing.T) {
	m, rec := newTestMachine(t)
	m.PowerOn(t0)
	m.Tick(t0.Add(3 * time.Second))
	m.PowerOff(t0.Add(4 * time.Second))

	m.Tick(t0.Add(time.Hour))
	if m.State() != StateOff {
		t.Fatalf("expected off, got %s", m.State())
	}
	if rec.probes != 1 {
		t.Fatalf("expected no probes after power off, got %d", rec.probes)
	}
}

func TestPowerOnRetriesAfterFailure(t *testing.T) {
	m, _ := newTestMachine(t)
	m.PowerOn(t0)
	m.Tick(t0.Add(3 * time.Second))
	m.Tick(t0.Add(40 * time.Second))
	if m.State() != StateFailed {
		t.Fatalf("expected failed, got %s", m.State())
	}

	m.PowerOn(t0.Add(41 * time.Second))
	if m.State() != StatePoweringOn {
		t.Fatalf("expected power on retry from failed, got %s", m.State())
	}
}

func TestRebootFailsInFlightAndReturnsToBooting(t *testing.T) {
	m, rec := readyMachine(t)
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 61}, t0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	probes := rec.probes

	m.Rebooted(t0.Add(time.Second))
	if m.State() != StateBooting {
		t.Fatalf("expected booting, got %s", m.State())
	}
	if rec.count(EventSendFailed) != 1 {
		t.Fatalf("expected in-flight message to fail")
	}
	if rec.probes != probes+1 {
		t.Fatalf("expected immediate probe after reboot")
	}
	if !m.ObserveReady(t0.Add(2 * time.Second)) {
		t.Fatalf("expected ready after reboot")
	}
}

func TestRebootLoopKeepsBootDeadline(t *testing.T) {
	m, _ := readyMachine(t)

	start := t0.Add(10 * time.Second)
	m.Rebooted(start)
	for i := 1; i <= 5; i++ {
		m.Rebooted(start.Add(time.Duration(i) * 5 * time.Second))
		if m.State() != StateBooting {
			t.Fatalf("expected booting after reboot %d, got %s", i, m.State())
		}
	}

	m.Tick(start.Add(29 * time.Second))
	if m.State() != StateBooting {
		t.Fatalf("expected booting before the first deadline, got %s", m.State())
	}
	m.Tick(start.Add(30 * time.Second))
	if m.State() != StateFailed {
		t.Fatalf("expected failed at the original boot deadline, got %s", m.State())
	}
}

func TestLinkErrorFailsLink(t *testing.T) {
	m, rec := readyMachine(t)
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 71}, t0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	m.LinkError(errors.New("port vanished"), t0.Add(time.Second))
	if m.State() != StateFailed {
		t.Fatalf("expected failed, got %s", m.State())
	}
	if rec.count(EventSendFailed) != 1 {
		t.Fatalf("expected send failed for in-flight message")
	}
}

func TestCancelDropsSilently(t *testing.T) {
	m, rec := readyMachine(t)
	if _, err := m.Enqueue(OutgoingMessage{PacketID: 81}, t0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !m.Cancel(81) {
		t.Fatalf("expected cancel to drop message")
	}
	m.Tick(t0.Add(time.Hour))
	if len(rec.events) != 0 {
		t.Fatalf("expected no events, got %+v", rec.events)
	}
}

func TestObserveTextOnlyWhenReady(t *testing.T) {
	m, rec := newTestMachine(t)
	if m.ObserveText("hi", 1, 2, 0, t0) {
		t.Fatalf("text must be ignored while off")
	}
	m, rec = readyMachine(t)
	if !m.ObserveText("hi", 0xbeef, 0xffffffff, 1, t0) {
		t.Fatalf("expected text to be forwarded")
	}
	if rec.count(EventMessage) != 1 || rec.events[0].Text != "hi" || rec.events[0].Channel != 1 {
		t.Fatalf("unexpected events %+v", rec.events)
	}
}

func TestTransitionsAreReported(t *testing.T) {
	m, rec := newTestMachine(t)
	m.PowerOn(t0)
	m.Tick(t0.Add(3 * time.Second))
	m.ObserveReady(t0.Add(4 * time.Second))
	m.PowerOff(t0.Add(5 * time.Second))

	want := [][2]State{
		{StateOff, StatePoweringOn},
		{StatePoweringOn, StateBooting},
		{StateBooting, StateReady},
		{StateReady, StateOff},
	}
	if len(rec.transitions) != len(want) {
		t.Fatalf("unexpected transitions %v", rec.transitions)
	}
	for i := range want {
		if rec.transitions[i] != want[i] {
			t.Fatalf("transition %d: got %v want %v", i, rec.transitions[i], want[i])
		}
	}
}
