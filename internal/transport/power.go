package transport

import (
	"fmt"
	"log/slog"
	"strings"
)

// ModemLine selects which serial modem-control output switches the radio.
type ModemLine string

const (
	ModemLineDTR ModemLine = "dtr"
	ModemLineRTS ModemLine = "rts"
)

func ParseModemLine(raw string) (ModemLine, error) {
	switch ModemLine(strings.ToLower(strings.TrimSpace(raw))) {
	case ModemLineDTR:
		return ModemLineDTR, nil
	case ModemLineRTS:
		return ModemLineRTS, nil
	default:
		return "", fmt.Errorf("unsupported power line %q (expected dtr or rts)", raw)
	}
}

type modemLineSetter interface {
	SetDTR(on bool) error
	SetRTS(on bool) error
}

// ModemLinePower switches the radio through a serial DTR or RTS output,
// typically wired to an enable pin or a load switch.
type ModemLinePower struct {
	port      modemLineSetter
	line      ModemLine
	activeLow bool
	logger    *slog.Logger
}

func NewModemLinePower(port modemLineSetter, line ModemLine, activeLow bool) *ModemLinePower {
	return &ModemLinePower{
		port:      port,
		line:      line,
		activeLow: activeLow,
		logger:    slog.With("component", "transport", "power_line", string(line)),
	}
}

func (p *ModemLinePower) SetPower(on bool) error {
	level := on != p.activeLow
	p.logger.Debug("set power", "on", on, "level", level)

	switch p.line {
	case ModemLineRTS:
		return p.port.SetRTS(level)
	default:
		return p.port.SetDTR(level)
	}
}
