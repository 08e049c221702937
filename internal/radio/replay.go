package radio

import (
	"time"

	"github.com/skobkin/meshbridge/internal/link"
	"github.com/skobkin/meshbridge/internal/radioconfig"
)

// ReplayTiming paces a configuration transaction so the radio has time to
// persist each step.
type ReplayTiming struct {
	// FrameSpacing separates the frames of the begin/commit bracket.
	FrameSpacing time.Duration
	// CommitSettle is the wait after commit-edit before the channel frame.
	CommitSettle time.Duration
	// StepDelay precedes the channel and reboot frames.
	StepDelay time.Duration
	// RestartWait bounds the wait for the radio to come back after reboot.
	RestartWait time.Duration
}

func DefaultReplayTiming() ReplayTiming {
	return ReplayTiming{
		FrameSpacing: 200 * time.Millisecond,
		CommitSettle: 2 * time.Second,
		StepDelay:    500 * time.Millisecond,
		RestartWait:  15 * time.Second,
	}
}

type replayPhase int

const (
	phaseSettings replayPhase = iota
	phaseCommitSettle
	phaseChannel
	phaseReboot
	phaseAwaitRestart
)

func (p replayPhase) String() string {
	switch p {
	case phaseSettings:
		return "settings"
	case phaseCommitSettle:
		return "commit_settle"
	case phaseChannel:
		return "channel"
	case phaseReboot:
		return "reboot"
	case phaseAwaitRestart:
		return "await_restart"
	default:
		return "unknown"
	}
}

type replay struct {
	tx        *radioconfig.Transaction
	settings  []radioconfig.AdminFrame
	next      int
	phase     replayPhase
	nextAt    time.Time
	deadline  time.Time
	restarted bool
	reason    string
}

func (s *Service) startReplay(now time.Time, reason string) {
	s.replay = &replay{
		tx:       s.opts.Transaction,
		settings: s.opts.Transaction.Settings(),
		phase:    phaseSettings,
		nextAt:   now,
		reason:   reason,
	}
	s.appliedThisCycle = true
	s.logger.Info("applying radio configuration", "reason", reason, "frames", len(s.opts.Transaction.Frames()))
}

func (s *Service) abortReplay(why string) {
	if s.replay == nil {
		return
	}
	s.logger.Warn("radio configuration aborted", "phase", s.replay.phase, "sent", s.replay.next, "reason", why)
	s.replay = nil
}

func (s *Service) finishReplay(timedOut bool) {
	if timedOut {
		s.logger.Warn("no restart observed after configuration, assuming applied", "wait", s.opts.Replay.RestartWait)
	} else {
		s.logger.Info("radio configuration applied")
	}
	s.replay = nil
	s.configApplied = true
}

// replayRestarted reacts to the radio dropping back to booting. Before the
// commit frame has gone out the bracket is incomplete, so the replay stops.
func (s *Service) replayRestarted() {
	if s.replay == nil {
		return
	}
	if s.replay.phase == phaseSettings {
		s.abortReplay("radio restarted before commit")
		return
	}
	s.replay.restarted = true
}

func (s *Service) advanceReplay(now time.Time) {
	r := s.replay
	if r == nil {
		return
	}
	ready := s.machine.State() == link.StateReady

	switch r.phase {
	case phaseSettings:
		if now.Before(r.nextAt) || !ready {
			return
		}
		if r.next < len(r.settings) {
			if !s.sendAdmin(r.settings[r.next]) {
				return
			}
			r.next++
		}
		if r.next < len(r.settings) {
			r.nextAt = now.Add(s.opts.Replay.FrameSpacing)
			return
		}
		s.logger.Info("settings committed, waiting for radio to persist", "settle", s.opts.Replay.CommitSettle)
		r.phase = phaseCommitSettle
		r.nextAt = now.Add(s.opts.Replay.CommitSettle)
	case phaseCommitSettle:
		if now.Before(r.nextAt) || !ready {
			return
		}
		if _, ok := r.tx.Channel(); ok {
			r.phase = phaseChannel
		} else {
			r.phase = phaseReboot
		}
		r.nextAt = now.Add(s.opts.Replay.StepDelay)
	case phaseChannel:
		if now.Before(r.nextAt) || !ready {
			return
		}
		frame, _ := r.tx.Channel()
		if !s.sendAdmin(frame) {
			return
		}
		r.phase = phaseReboot
		r.nextAt = now.Add(s.opts.Replay.StepDelay)
	case phaseReboot:
		if now.Before(r.nextAt) || !ready {
			return
		}
		frame, ok := r.tx.Reboot()
		if !ok {
			s.finishReplay(false)
			return
		}
		if !s.sendAdmin(frame) {
			return
		}
		r.phase = phaseAwaitRestart
		r.restarted = false
		r.deadline = now.Add(s.opts.Replay.RestartWait)
	case phaseAwaitRestart:
		if r.restarted && ready {
			s.finishReplay(false)
			return
		}
		if !now.Before(r.deadline) {
			s.finishReplay(true)
		}
	}
}

// sendAdmin writes one admin frame addressed to the local node. A write
// failure aborts the replay.
func (s *Service) sendAdmin(frame radioconfig.AdminFrame) bool {
	encoded := s.codec.EncodeAdmin(s.nodeNum, frame)
	if err := s.writeFrame(encoded.Payload); err != nil {
		s.abortReplay("write " + frame.Label() + ": " + err.Error())
		return false
	}
	s.logger.Info("sent admin frame", "frame", frame.Label(), "len", frame.Len(), "packet_id", encoded.PacketID)

	return true
}
