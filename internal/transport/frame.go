package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
)

const (
	frameStart1 = 0x94
	frameStart2 = 0xC3

	// MaxInboundPayload caps frames accepted from the radio. A header with a
	// larger or zero length is dropped and the decoder resyncs right after it.
	MaxInboundPayload = 512

	maxConsoleLine = 256
)

// WakeSequence is written raw before requesting config so a sleeping radio
// switches its serial console into protobuf mode.
var WakeSequence = bytes.Repeat([]byte{frameStart2}, 32)

type readFullFunc func(buf []byte) error

func ioReadFullFunc(r io.Reader) readFullFunc {
	return func(buf []byte) error {
		_, err := io.ReadFull(r, buf)
		return err
	}
}

// appendFrame appends payload with its 4 byte header to dst.
func appendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint16 {
		return nil, fmt.Errorf("outbound payload too large: %d bytes", len(payload))
	}
	dst = append(dst, frameStart1, frameStart2)
	// #nosec G115 -- bounded by math.MaxUint16 above.
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))
	return append(dst, payload...), nil
}

// frameDecoder splits the radio byte stream into frame payloads. Bytes
// between frames are firmware console output; complete lines of it are
// passed to console. A decoder belongs to one connection.
type frameDecoder struct {
	console func(line string)
	dropped func(length int)
	line    []byte
}

func newFrameDecoder(logger *slog.Logger) *frameDecoder {
	return &frameDecoder{
		console: func(line string) {
			logger.Debug("radio console", "line", line)
		},
		dropped: func(length int) {
			logger.Warn("dropped frame header with invalid length", "length", length, "max", MaxInboundPayload)
		},
	}
}

// next returns the next frame payload. Only read errors are returned; a
// header with an unusable length is dropped without consuming the bytes
// after it, so a stray header inside console text cannot swallow real frames.
func (d *frameDecoder) next(readFull readFullFunc) ([]byte, error) {
	for {
		if err := d.syncHeader(readFull); err != nil {
			return nil, err
		}

		var lenBuf [2]byte
		if err := readFull(lenBuf[:]); err != nil {
			return nil, fmt.Errorf("read frame length: %w", err)
		}
		n := int(binary.BigEndian.Uint16(lenBuf[:]))
		if n == 0 || n > MaxInboundPayload {
			if d.dropped != nil {
				d.dropped(n)
			}
			continue
		}

		payload := make([]byte, n)
		if err := readFull(payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}
		return payload, nil
	}
}

// syncHeader consumes bytes up to and including the next 0x94 0xC3 pair.
func (d *frameDecoder) syncHeader(readFull readFullFunc) error {
	var b [1]byte
	pending := false
	for {
		if err := readFull(b[:]); err != nil {
			return fmt.Errorf("read frame header: %w", err)
		}
		if pending && b[0] == frameStart2 {
			return nil
		}
		if pending {
			d.consoleByte(frameStart1)
		}
		pending = b[0] == frameStart1
		if !pending {
			d.consoleByte(b[0])
		}
	}
}

func (d *frameDecoder) consoleByte(b byte) {
	switch b {
	case '\n':
		d.flushConsole()
	case '\r':
	default:
		d.line = append(d.line, b)
		if len(d.line) >= maxConsoleLine {
			d.flushConsole()
		}
	}
}

func (d *frameDecoder) flushConsole() {
	if len(d.line) == 0 {
		return
	}
	if d.console != nil {
		d.console(string(d.line))
	}
	d.line = d.line[:0]
}
