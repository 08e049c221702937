package app

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/meshbridge/internal/connectors"
	"github.com/skobkin/meshbridge/internal/platform"
)

func writeRuntimeConfig(t *testing.T, raw string) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "cfg"))
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), ConfigFilename)
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRuntimeRunsAgainstTCPRadio(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	journal := filepath.Join(t.TempDir(), "journal.db")
	path := writeRuntimeConfig(t, `
connection:
  transport: tcp
  host: `+ln.Addr().String()+`
journal:
  enabled: true
  path: `+journal+`
logging:
  level: error
`)

	rt, err := Initialize(context.Background(), path)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if rt.DB == nil || rt.WriterQueue == nil || rt.API != nil || rt.MQTT != nil {
		t.Fatalf("unexpected components: db=%v writer=%v api=%v mqtt=%v", rt.DB != nil, rt.WriterQueue != nil, rt.API != nil, rt.MQTT != nil)
	}
	if st := rt.CurrentConnStatus(); st.State != connectors.ConnectionStateDisconnected || st.TransportName != "tcp" {
		t.Fatalf("unexpected initial status %+v", st)
	}
	if _, err := os.Stat(journal); err != nil {
		t.Fatalf("journal not created: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(ctx) }()

	select {
	case conn := <-accepted:
		t.Cleanup(func() { _ = conn.Close() })
	case <-time.After(2 * time.Second):
		t.Fatalf("radio service never connected")
	}
	deadline := time.Now().Add(2 * time.Second)
	for rt.CurrentConnStatus().State != connectors.ConnectionStateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("connected status not captured: %+v", rt.CurrentConnStatus())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st := rt.Radio.State(); st.State != "off" {
		t.Fatalf("radio should stay off without enable_on_boot, got %q", st.State)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestInitializeRefusesBusyTarget(t *testing.T) {
	path := writeRuntimeConfig(t, `
connection:
  transport: tcp
  host: 127.0.0.1:9
`)
	first, err := Initialize(context.Background(), path)
	if err != nil {
		t.Fatalf("initialize first: %v", err)
	}
	defer func() { _ = first.Close() }()

	if _, err := Initialize(context.Background(), path); !errors.Is(err, platform.ErrTargetBusy) {
		t.Fatalf("expected busy target, got %v", err)
	}
}

func TestInitializeRejectsInvalidConfig(t *testing.T) {
	path := writeRuntimeConfig(t, `
connection:
  transport: tcp
bridge:
  destination: "!nothex"
`)
	if _, err := Initialize(context.Background(), path); err == nil {
		t.Fatalf("expected config error")
	}
}
