package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skobkin/meshbridge/internal/app"
	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
	"github.com/skobkin/meshbridge/internal/domain"
)

const maxHexPreviewLen = 64

var watchTopics = []string{
	connectors.TopicConnStatus,
	connectors.TopicRawFrameIn,
	connectors.TopicRawFrameOut,
	connectors.TopicState,
	connectors.TopicNodeInfo,
	connectors.TopicReady,
	connectors.TopicMessage,
	connectors.TopicSendSuccess,
	connectors.TopicSendFailed,
}

// runWatch powers the radio on, waits for it to become ready and then logs
// link traffic until interrupted.
func runWatch(ctx context.Context, args []string) error {
	fs, path := newFlagSet("watch")
	readyTimeout := fs.Duration("ready-timeout", 45*time.Second, "how long to wait for the radio to become ready")
	listenFor := fs.Duration("listen-for", 0, "stop after this long, e.g. 30s")
	debug := fs.Bool("debug", false, "log raw frames and radio console output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := app.Initialize(ctx, *path)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()
	if *debug {
		if err := rt.LogManager.SetLevel("debug"); err != nil {
			return err
		}
	}
	logger := rt.LogManager.Logger("watch")

	if *listenFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *listenFor)
		defer cancel()
	}

	sub := rt.Bus.Subscribe(watchTopics...)
	defer rt.Bus.Unsubscribe(sub, watchTopics...)
	ready := make(chan struct{})
	go watch(ctx, logger, rt.NodeStore, sub, ready)

	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(ctx) }()

	if err := rt.Radio.PowerOn(ctx); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	logger.Info("waiting for radio", "target", app.ConnectionTarget(rt.Config.Connection), "timeout", *readyTimeout)
	select {
	case <-ready:
		st := rt.Radio.State()
		logger.Info("radio ready", "node", st.NodeID, "name", st.LongName)
	case <-time.After(*readyTimeout):
		return fmt.Errorf("radio not ready after %s", *readyTimeout)
	case err := <-runErr:
		return err
	}

	return <-runErr
}

func watch(ctx context.Context, logger *slog.Logger, nodes *domain.NodeStore, sub bus.Subscription, ready chan<- struct{}) {
	readySent := false
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			switch v := raw.(type) {
			case connectors.ConnStatus:
				logger.Info("conn", "state", v.State, "transport", v.TransportName, "target", v.Target, "error", v.Err)
			case connectors.RawFrame:
				logger.Debug("raw", "len", v.Len, "hex", previewHex(v.Hex))
			case connectors.BridgeState:
				logger.Info("state", "state", v.State, "in_flight", v.InFlight, "applying_config", v.ApplyingConfig)
			case connectors.NodeSeen:
				logger.Info("node", "id", v.NodeID, "name", v.LongName, "local", v.Local)
			case connectors.BridgeEvent:
				logger.Info("event", "kind", v.Kind, "from", nodes.DisplayName(v.From), "to", v.To, "packet_id", v.PacketID, "text", v.Text, "reason", v.Reason)
				if v.Kind == "ready" && !readySent {
					readySent = true
					close(ready)
				}
			}
		}
	}
}

func previewHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) <= maxHexPreviewLen {
		return hex
	}
	return hex[:maxHexPreviewLen] + "..."
}
