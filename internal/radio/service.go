package radio

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
	"github.com/skobkin/meshbridge/internal/domain"
	"github.com/skobkin/meshbridge/internal/link"
	"github.com/skobkin/meshbridge/internal/radioconfig"
	"github.com/skobkin/meshbridge/internal/transport"
)

const (
	defaultTickInterval = 50 * time.Millisecond
	defaultWakeSettle   = 200 * time.Millisecond
	writeTimeout        = 5 * time.Second
	maxReconnectBackoff = 15 * time.Second
)

// Options configure a Service. Zero durations fall back to defaults.
type Options struct {
	Link link.Config
	// Destination and Channel are used by SendText when the request leaves
	// them unset.
	Destination  uint32
	Channel      uint8
	EnableOnBoot bool
	// Transaction is replayed by ApplyConfig and, when it requests so, on
	// the first ready after power on. Nil disables configuration.
	Transaction  *radioconfig.Transaction
	Replay       ReplayTiming
	TickInterval time.Duration
	// WakeSettle separates the wake sequence from the config request.
	WakeSettle time.Duration
	// OnEvent receives every link event synchronously on the service loop.
	OnEvent func(link.Event)
}

// SendTextRequest is a text send. Nil Destination or Channel use the
// configured defaults.
type SendTextRequest struct {
	Text        string
	Destination *uint32
	Channel     *uint8
}

type command struct {
	run    func(now time.Time) error
	result chan error
}

// Service owns the link state machine, the transport and the power line.
// All state is mutated on the goroutine running Run; public methods marshal
// their work onto it.
type Service struct {
	logger    *slog.Logger
	bus       bus.MessageBus
	transport transport.Transport
	power     transport.PowerLine
	codec     Codec
	opts      Options
	clock     func() time.Time

	machine  *link.Machine
	commands chan command
	frames   chan []byte
	linkErrs chan error
	done     chan struct{}
	snapshot atomic.Pointer[connectors.BridgeState]

	ctx              context.Context
	nodeNum          uint32
	user             User
	nonces           []uint32
	wantConfigAt     time.Time
	replay           *replay
	appliedThisCycle bool
	configApplied    bool
	dumpActive       bool
}

func NewService(
	logger *slog.Logger,
	b bus.MessageBus,
	tr transport.Transport,
	power transport.PowerLine,
	codec Codec,
	opts Options,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if power == nil {
		power = transport.NoPowerLine{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.WakeSettle <= 0 {
		opts.WakeSettle = defaultWakeSettle
	}
	def := DefaultReplayTiming()
	if opts.Replay.FrameSpacing <= 0 {
		opts.Replay.FrameSpacing = def.FrameSpacing
	}
	if opts.Replay.CommitSettle <= 0 {
		opts.Replay.CommitSettle = def.CommitSettle
	}
	if opts.Replay.StepDelay <= 0 {
		opts.Replay.StepDelay = def.StepDelay
	}
	if opts.Replay.RestartWait <= 0 {
		opts.Replay.RestartWait = def.RestartWait
	}

	s := &Service{
		logger:    logger,
		bus:       b,
		transport: tr,
		power:     power,
		codec:     codec,
		opts:      opts,
		clock:     time.Now,
		commands:  make(chan command),
		frames:    make(chan []byte, 16),
		linkErrs:  make(chan error, 1),
		done:      make(chan struct{}),
		ctx:       context.Background(),
	}
	s.machine = link.New(logger.With("component", "link"), opts.Link, link.Hooks{
		Event:      s.onEvent,
		Transition: s.onTransition,
		Power:      s.onPower,
		Probe:      s.onProbe,
	})
	s.refreshSnapshot()

	return s
}

// Run drives the service until ctx is cancelled. It must be called once.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)
	s.ctx = ctx

	readerCtx, cancelReader := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runReader(readerCtx)
	}()
	defer func() {
		cancelReader()
		_ = s.transport.Close()
		wg.Wait()
	}()

	if s.opts.EnableOnBoot {
		s.machine.PowerOn(s.clock())
		s.refreshSnapshot()
	}

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("bridge service stopping")
			return nil
		case <-ticker.C:
			s.tick(s.clock())
		case payload := <-s.frames:
			s.handleFrame(payload, s.clock())
		case err := <-s.linkErrs:
			s.handleLinkError(err, s.clock())
		case cmd := <-s.commands:
			err := cmd.run(s.clock())
			s.refreshSnapshot()
			cmd.result <- err
			continue
		}
		s.refreshSnapshot()
	}
}

func (s *Service) PowerOn(ctx context.Context) error {
	return s.do(ctx, s.powerOn)
}

func (s *Service) PowerOff(ctx context.Context) error {
	return s.do(ctx, s.powerOff)
}

// SendText transmits a text message and returns its packet id. The outcome
// is reported later through send_success or send_failed.
func (s *Service) SendText(ctx context.Context, req SendTextRequest) (uint32, error) {
	if len(req.Text) == 0 {
		return 0, ErrEmptyMessage
	}
	if len(req.Text) > link.MaxTextBytes {
		return 0, fmt.Errorf("%w: %d bytes", link.ErrMessageTooLong, len(req.Text))
	}

	var packetID uint32
	err := s.do(ctx, func(now time.Time) error {
		id, err := s.sendText(now, req)
		packetID = id
		return err
	})

	return packetID, err
}

func (s *Service) ApplyConfig(ctx context.Context) error {
	return s.do(ctx, s.applyConfig)
}

func (s *Service) DumpRadioConfig(ctx context.Context) error {
	return s.do(ctx, s.dumpRadioConfig)
}

func (s *Service) SendNodeInfo(ctx context.Context) error {
	return s.do(ctx, s.sendNodeInfo)
}

// State returns the latest published snapshot without touching the loop.
func (s *Service) State() connectors.BridgeState {
	return *s.snapshot.Load()
}

func (s *Service) do(ctx context.Context, run func(now time.Time) error) error {
	cmd := command{run: run, result: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}

	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) powerOn(now time.Time) error {
	switch s.machine.State() {
	case link.StateOff, link.StateFailed:
	default:
		s.logger.Debug("power on ignored", "state", s.machine.State())
		return nil
	}
	s.resetSession()
	s.appliedThisCycle = false
	s.machine.PowerOn(now)

	return nil
}

func (s *Service) powerOff(now time.Time) error {
	s.abortReplay("power off")
	s.machine.PowerOff(now)
	s.resetSession()
	s.appliedThisCycle = false

	return nil
}

func (s *Service) sendText(now time.Time, req SendTextRequest) (uint32, error) {
	if s.replay != nil {
		return 0, ErrApplyInProgress
	}
	if s.machine.State() != link.StateReady {
		return 0, link.ErrNotReady
	}
	if _, busy := s.machine.InFlight(); busy {
		return 0, link.ErrBusy
	}

	to := s.opts.Destination
	if req.Destination != nil {
		to = *req.Destination
	}
	channel := s.opts.Channel
	if req.Channel != nil {
		channel = *req.Channel
	}

	encoded, err := s.codec.EncodeText(to, channel, req.Text)
	if err != nil {
		return 0, err
	}
	msg, err := s.machine.Enqueue(link.OutgoingMessage{
		Payload:     encoded.Payload,
		Destination: to,
		Channel:     channel,
		PacketID:    encoded.PacketID,
	}, now)
	if err != nil {
		return 0, err
	}
	if err := s.writeFrame(msg.Payload); err != nil {
		s.machine.Cancel(msg.PacketID)
		return 0, fmt.Errorf("send text: %w", err)
	}
	s.logger.Info("sent text", "packet_id", msg.PacketID, "to", domain.FormatNodeID(to), "channel", channel, "len", len(req.Text))
	s.bus.Publish(connectors.TopicTextSent, connectors.BridgeEvent{
		Kind:     connectors.EventKindSent,
		At:       now,
		Text:     req.Text,
		From:     domain.FormatNodeID(s.nodeNum),
		To:       domain.FormatNodeID(to),
		Channel:  channel,
		PacketID: msg.PacketID,
	})

	return msg.PacketID, nil
}

func (s *Service) applyConfig(now time.Time) error {
	if s.opts.Transaction == nil {
		return ErrNoTransaction
	}
	if s.replay != nil {
		return ErrApplyInProgress
	}
	if s.machine.State() != link.StateReady {
		return link.ErrNotReady
	}
	if s.nodeNum == 0 {
		return ErrNodeUnknown
	}
	s.startReplay(now, "requested")

	return nil
}

func (s *Service) dumpRadioConfig(time.Time) error {
	switch s.machine.State() {
	case link.StateOff, link.StatePoweringOn:
		return ErrPoweredOff
	}
	if err := s.writeFrame(s.codec.EncodeWantConfig(DumpConfigNonce)); err != nil {
		return fmt.Errorf("request config dump: %w", err)
	}
	s.dumpActive = true
	s.logger.Info("requested radio config dump")

	return nil
}

func (s *Service) sendNodeInfo(time.Time) error {
	if s.machine.State() != link.StateReady {
		return link.ErrNotReady
	}
	if s.nodeNum == 0 {
		return ErrNodeUnknown
	}
	encoded := s.codec.EncodeNodeInfo(s.nodeNum, s.user)
	if err := s.writeFrame(encoded.Payload); err != nil {
		return fmt.Errorf("send nodeinfo: %w", err)
	}
	s.logger.Info("sent nodeinfo broadcast", "packet_id", encoded.PacketID, "long_name", s.user.LongName, "short_name", s.user.ShortName)

	return nil
}

func (s *Service) tick(now time.Time) {
	s.machine.Tick(now)
	if !s.wantConfigAt.IsZero() && !now.Before(s.wantConfigAt) {
		s.wantConfigAt = time.Time{}
		s.sendWantConfig()
	}
	s.advanceReplay(now)
}

func (s *Service) handleFrame(payload []byte, now time.Time) {
	s.bus.Publish(connectors.TopicRawFrameIn, rawFrame(payload))
	decoded, err := s.codec.DecodeFromRadio(payload)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "len", len(payload), "error", err)
		return
	}

	if decoded.MyNodeNum != 0 && decoded.MyNodeNum != s.nodeNum {
		s.nodeNum = decoded.MyNodeNum
		s.logger.Info("local node identified", "node_id", domain.FormatNodeID(s.nodeNum))
	}
	if info := decoded.NodeInfo; info != nil && info.User != nil && info.Num != 0 {
		local := info.Num == s.nodeNum
		if local {
			s.user = *info.User
			s.logger.Debug("local user", "long_name", s.user.LongName, "short_name", s.user.ShortName)
		}
		s.bus.Publish(connectors.TopicNodeInfo, connectors.NodeSeen{
			NodeID:    domain.FormatNodeID(info.Num),
			LongName:  info.User.LongName,
			ShortName: info.User.ShortName,
			Local:     local,
			At:        now,
		})
	}
	if decoded.Config != nil && s.dumpActive {
		s.logDump(*decoded.Config)
	}
	if decoded.Rebooted {
		s.logger.Warn("radio reported reboot", "state", s.machine.State())
		s.machine.Rebooted(now)
	}
	if decoded.ConfigCompleteID != 0 {
		s.handleConfigComplete(decoded.ConfigCompleteID, now)
	}
	if q := decoded.QueueStatus; q != nil && q.PacketID != 0 && q.Res != 0 {
		s.machine.Resolve(q.PacketID, false, "queue rejected: "+RoutingErrorName(q.Res), now)
	}
	if r := decoded.Routing; r != nil {
		reason := ""
		if r.ErrorReason != 0 {
			reason = RoutingErrorName(r.ErrorReason)
		}
		s.machine.Resolve(r.RequestID, r.ErrorReason == 0, reason, now)
	}
	if t := decoded.Text; t != nil {
		if !s.machine.ObserveText(t.Text, t.From, t.To, t.Channel, now) {
			s.logger.Debug("text ignored while not ready", "from", domain.FormatNodeID(t.From))
		}
	}
}

func (s *Service) handleConfigComplete(id uint32, now time.Time) {
	if s.dumpActive && id == DumpConfigNonce {
		s.dumpActive = false
		s.logger.Info("radio config dump complete")
		return
	}
	if !slices.Contains(s.nonces, id) {
		s.logger.Debug("config complete for unknown nonce", "nonce", id)
		return
	}
	s.nonces = s.nonces[:0]
	s.wantConfigAt = time.Time{}
	s.machine.ObserveReady(now)
}

func (s *Service) logDump(dump ConfigDump) {
	attrs := make([]any, 0, len(dump.Fields)*2+2)
	attrs = append(attrs, "section", dump.Label)
	for _, f := range dump.Fields {
		attrs = append(attrs, f.Name, f.Value)
	}
	s.logger.Info("radio config", attrs...)
}

func (s *Service) onEvent(ev link.Event) {
	out := connectors.BridgeEvent{
		Kind:     string(ev.Kind),
		At:       ev.At,
		Text:     ev.Text,
		From:     domain.FormatNodeID(ev.From),
		To:       domain.FormatNodeID(ev.To),
		Channel:  ev.Channel,
		PacketID: ev.PacketID,
		Reason:   ev.Reason,
	}
	if topic, ok := connectors.TopicForEvent(out.Kind); ok {
		s.bus.Publish(topic, out)
	}
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}

	if ev.Kind == link.EventReady && s.shouldApplyOnBoot() {
		s.startReplay(ev.At, "apply_on_boot")
	}
}

func (s *Service) shouldApplyOnBoot() bool {
	tx := s.opts.Transaction
	if tx == nil || !tx.ApplyOnBoot() || s.replay != nil || s.appliedThisCycle {
		return false
	}
	if s.nodeNum == 0 {
		s.logger.Warn("skipping configuration on boot", "error", ErrNodeUnknown)
		return false
	}

	return true
}

func (s *Service) onTransition(_, to link.State) {
	switch to {
	case link.StateOff, link.StateFailed:
		s.abortReplay("link " + to.String())
		s.nonces = s.nonces[:0]
		s.wantConfigAt = time.Time{}
	case link.StateBooting:
		s.replayRestarted()
	}
}

// handleLinkError treats a transport drop after the commit frame as the
// radio restarting to apply its new settings. The link goes back to booting
// and keeps probing while the reader reconnects.
func (s *Service) handleLinkError(err error, now time.Time) {
	if s.replay != nil && s.replay.phase != phaseSettings {
		s.logger.Info("transport dropped while applying configuration, waiting for radio restart",
			"phase", s.replay.phase, "error", err)
		s.machine.Rebooted(now)
		return
	}
	s.machine.LinkError(err, now)
}

func (s *Service) onPower(on bool) {
	if err := s.power.SetPower(on); err != nil {
		s.logger.Error("power line failed", "on", on, "error", err)
	}
}

// onProbe wakes the radio; the config request follows after WakeSettle.
func (s *Service) onProbe() {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	err := s.transport.WriteRaw(ctx, transport.WakeSequence)
	cancel()
	if err != nil {
		s.logger.Warn("wake write failed", "error", err)
	}
	s.wantConfigAt = s.clock().Add(s.opts.WakeSettle)
}

func (s *Service) sendWantConfig() {
	nonce := s.codec.NextNonce()
	if err := s.writeFrame(s.codec.EncodeWantConfig(nonce)); err != nil {
		s.logger.Warn("want_config write failed", "error", err)
		return
	}
	// Late replies to the previous probe still count.
	if len(s.nonces) >= 2 {
		s.nonces = s.nonces[1:]
	}
	s.nonces = append(s.nonces, nonce)
	s.logger.Debug("requested config", "nonce", nonce)
}

func (s *Service) writeFrame(payload []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	if err := s.transport.WriteFrame(ctx, payload); err != nil {
		return err
	}
	s.bus.Publish(connectors.TopicRawFrameOut, rawFrame(payload))

	return nil
}

func (s *Service) resetSession() {
	s.nodeNum = 0
	s.user = User{}
	s.nonces = nil
	s.wantConfigAt = time.Time{}
	s.dumpActive = false
}

func (s *Service) refreshSnapshot() {
	next := connectors.BridgeState{
		State:          s.machine.State().String(),
		Since:          s.machine.StateSince(),
		Ready:          s.machine.State() == link.StateReady,
		NodeID:         domain.FormatNodeID(s.nodeNum),
		LongName:       s.user.LongName,
		ShortName:      s.user.ShortName,
		ApplyingConfig: s.replay != nil,
		ConfigApplied:  s.configApplied,
	}
	if msg, ok := s.machine.InFlight(); ok {
		next.InFlight = msg.PacketID
	}
	if prev := s.snapshot.Load(); prev != nil && *prev == next {
		return
	}
	s.snapshot.Store(&next)
	s.bus.Publish(connectors.TopicState, next)
}

func (s *Service) runReader(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		s.publishConnStatus(connectors.ConnectionStateConnecting, nil)
		if err := s.transport.Connect(ctx); err != nil {
			s.publishConnStatus(connectors.ConnectionStateReconnecting, err)
			s.logger.Error("transport connect failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = time.Second
		s.publishConnStatus(connectors.ConnectionStateConnected, nil)
		err := s.readFrames(ctx)
		if ctx.Err() != nil {
			return
		}
		_ = s.transport.Close()
		s.publishConnStatus(connectors.ConnectionStateReconnecting, err)
		s.logger.Warn("transport read failed", "error", err)
		select {
		case s.linkErrs <- err:
		default:
		}

		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Service) readFrames(ctx context.Context) error {
	for {
		payload, err := s.transport.ReadFrame(ctx)
		if err != nil {
			return err
		}
		select {
		case s.frames <- payload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) publishConnStatus(state connectors.ConnectionState, err error) {
	status := connectors.ConnStatus{
		State:         state,
		TransportName: s.transport.Name(),
		Timestamp:     time.Now(),
	}
	if resolver, ok := s.transport.(transport.StatusTargetResolver); ok {
		status.Target = resolver.StatusTarget()
	}
	if err != nil {
		status.Err = err.Error()
	}
	s.bus.Publish(connectors.TopicConnStatus, status)
}

func rawFrame(payload []byte) connectors.RawFrame {
	return connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(payload)), Len: len(payload)}
}

func nextBackoff(d time.Duration) time.Duration {
	if d < maxReconnectBackoff {
		d *= 2
	}

	return min(d, maxReconnectBackoff)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
