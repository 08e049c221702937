package app

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/skobkin/meshbridge/internal/config"
	"github.com/skobkin/meshbridge/internal/connectors"
	"github.com/skobkin/meshbridge/internal/transport"
)

// TransportName matches the name the transport reports once built.
func TransportName(cfg config.ConnectionConfig) string {
	switch cfg.Transport {
	case config.TransportSerial, config.TransportTCP:
		return string(cfg.Transport)
	case "":
		return "unknown"
	default:
		return strings.TrimSpace(string(cfg.Transport))
	}
}

// ConnectionTarget identifies the radio: the serial device, or host:port
// for tcp. Unparseable hosts are returned trimmed.
func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Transport {
	case config.TransportSerial:
		return strings.TrimSpace(cfg.SerialPort)
	case config.TransportTCP:
		host, port, err := splitHostPort(cfg.Host)
		if err != nil {
			return strings.TrimSpace(cfg.Host)
		}
		return net.JoinHostPort(host, strconv.Itoa(port))
	default:
		return ""
	}
}

// InitialConnStatus is reported before the transport publishes its own.
func InitialConnStatus(cfg config.ConnectionConfig) connectors.ConnStatus {
	return connectors.ConnStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: TransportName(cfg),
		Target:        ConnectionTarget(cfg),
	}
}

// NewTransport builds the configured transport and the power line driving
// the radio. Power lines are only available on serial ports.
func NewTransport(conn config.ConnectionConfig, bridge config.BridgeConfig) (transport.Transport, transport.PowerLine, error) {
	switch conn.Transport {
	case config.TransportSerial:
		tr := transport.NewSerialTransport(conn.SerialPort, conn.SerialBaud)
		if strings.TrimSpace(bridge.PowerPin) == "" {
			return tr, transport.NoPowerLine{}, nil
		}
		line, err := transport.ParseModemLine(bridge.PowerPin)
		if err != nil {
			return nil, nil, err
		}
		return tr, transport.NewModemLinePower(tr, line, bridge.PowerInverted), nil
	case config.TransportTCP:
		host, port, err := splitHostPort(conn.Host)
		if err != nil {
			return nil, nil, err
		}
		return transport.NewTCPTransport(host, port), transport.NoPowerLine{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport: %q", conn.Transport)
	}
}

func splitHostPort(raw string) (string, int, error) {
	raw = strings.TrimSpace(raw)
	host, portRaw, err := net.SplitHostPort(raw)
	if err != nil {
		// No port given.
		return strings.Trim(raw, "[]"), transport.DefaultTCPPort, nil
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in host %q", raw)
	}
	return host, port, nil
}
