package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultTCPPort      = 4403
	tcpDialTimeout      = 6 * time.Second
	tcpKeepAlive        = 30 * time.Second
	defaultTCPWriteWait = 5 * time.Second
)

// TCPTransport talks to a radio exposing the stream API on a TCP port, as
// WiFi and Ethernet capable firmware does.
type TCPTransport struct {
	addr   string
	logger *slog.Logger
	dialer net.Dialer

	mu      sync.Mutex
	conn    net.Conn
	decoder *frameDecoder
	writeMu sync.Mutex
}

func NewTCPTransport(host string, port int) *TCPTransport {
	if port == 0 {
		port = DefaultTCPPort
	}
	addr := ""
	if host != "" {
		addr = net.JoinHostPort(host, strconv.Itoa(port))
	}

	return &TCPTransport{
		addr:   addr,
		logger: slog.With("component", "transport", "transport", "tcp", "target", addr),
		dialer: net.Dialer{Timeout: tcpDialTimeout, KeepAlive: tcpKeepAlive},
	}
}

func (t *TCPTransport) Name() string {
	return "tcp"
}

func (t *TCPTransport) StatusTarget() string {
	return t.addr
}

func (t *TCPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	if t.addr == "" {
		return errors.New("tcp host is empty")
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		t.logger.Warn("connect failed", "error", err)
		return fmt.Errorf("dial tcp: %w", err)
	}
	t.conn = conn
	t.decoder = newFrameDecoder(t.logger)
	t.logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.decoder = nil
	t.logger.Info("closed")

	return err
}

func (t *TCPTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	conn, decoder, err := t.current()
	if err != nil {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)

	payload, err := decoder.next(ioReadFullFunc(conn))
	if err != nil {
		return nil, err
	}
	t.logger.Debug("read frame", "len", len(payload))

	return payload, nil
}

func (t *TCPTransport) WriteFrame(ctx context.Context, payload []byte) error {
	frame, err := appendFrame(nil, payload)
	if err != nil {
		return err
	}
	if err := t.WriteRaw(ctx, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

func (t *TCPTransport) WriteRaw(ctx context.Context, p []byte) error {
	conn, _, err := t.current()
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTCPWriteWait)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if _, err := conn.Write(p); err != nil {
		t.logger.Warn("write failed", "len", len(p), "error", err)
		return err
	}

	return nil
}

func (t *TCPTransport) current() (net.Conn, *frameDecoder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, nil, ErrNotConnected
	}

	return t.conn, t.decoder, nil
}
