package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultSerialBaud         = 115200
	defaultSerialReadTimeout  = 300 * time.Millisecond
	defaultSerialWriteTimeout = 2 * time.Second
)

// SerialTransport drives a radio on a USB/UART serial port. Modem-control
// line levels are remembered so a power line survives reconnects.
type SerialTransport struct {
	portName string
	baudRate int
	logger   *slog.Logger

	mu      sync.Mutex
	port    serial.Port
	decoder *frameDecoder
	writeMu sync.Mutex
	lines   modemLines
}

// modemLines remembers DTR/RTS levels so they survive a reconnect.
type modemLines struct {
	dtr *bool
	rts *bool
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	if baudRate <= 0 {
		baudRate = DefaultSerialBaud
	}

	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
		logger:   slog.With("component", "transport", "transport", "serial", "port", portName),
	}
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) StatusTarget() string {
	return t.portName
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	port, err := serial.Open(t.portName, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		t.logger.Warn("open failed", "baud", t.baudRate, "error", err)
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	if err := applyModemLines(port, t.lines); err != nil {
		_ = port.Close()
		return err
	}
	t.port = port
	t.decoder = newFrameDecoder(t.logger)
	t.logger.Info("connected", "baud", t.baudRate)

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.decoder = nil
	t.logger.Info("closed")
	return err
}

func (t *SerialTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	port, decoder := t.port, t.decoder
	t.mu.Unlock()
	if port == nil {
		return nil, ErrNotConnected
	}

	return decoder.next(func(buf []byte) error {
		return readFull(ctx, port, buf)
	})
}

func (t *SerialTransport) WriteFrame(ctx context.Context, payload []byte) error {
	frame, err := appendFrame(nil, payload)
	if err != nil {
		return err
	}
	if err := t.WriteRaw(ctx, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (t *SerialTransport) WriteRaw(ctx context.Context, p []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultSerialWriteTimeout)
		defer cancel()
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return writeFull(ctx, port, p)
}

// SetDTR drives the DTR modem line. The level is re-applied on reconnect.
func (t *SerialTransport) SetDTR(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines.dtr = &on
	if t.port == nil {
		return nil
	}
	if err := t.port.SetDTR(on); err != nil {
		return fmt.Errorf("set dtr: %w", err)
	}
	return nil
}

// SetRTS drives the RTS modem line. The level is re-applied on reconnect.
func (t *SerialTransport) SetRTS(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines.rts = &on
	if t.port == nil {
		return nil
	}
	if err := t.port.SetRTS(on); err != nil {
		return fmt.Errorf("set rts: %w", err)
	}
	return nil
}

func applyModemLines(port serial.Port, lines modemLines) error {
	if lines.dtr != nil {
		if err := port.SetDTR(*lines.dtr); err != nil {
			return fmt.Errorf("restore dtr: %w", err)
		}
	}
	if lines.rts != nil {
		if err := port.SetRTS(*lines.rts); err != nil {
			return fmt.Errorf("restore rts: %w", err)
		}
	}
	return nil
}

func (t *SerialTransport) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}
	return t.port, nil
}

// readFull fills buf, polling ctx between reads; the port read timeout keeps
// each Read short.
func readFull(ctx context.Context, r io.Reader, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[read:])
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		read += n
	}

	return nil
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		written += n
	}
	return nil
}
