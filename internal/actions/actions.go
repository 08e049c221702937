// Package actions parses and executes bridge actions requested by the
// automation surfaces.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/skobkin/meshbridge/internal/connectors"
	"github.com/skobkin/meshbridge/internal/domain"
	"github.com/skobkin/meshbridge/internal/link"
	"github.com/skobkin/meshbridge/internal/radio"
)

type Name string

const (
	PowerOn         Name = "power_on"
	PowerOff        Name = "power_off"
	SendText        Name = "send_text"
	ApplyConfig     Name = "apply_config"
	DumpRadioConfig Name = "dump_radio_config"
	SendNodeInfo    Name = "send_nodeinfo"
)

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrInvalidPayload = errors.New("invalid action payload")
)

// Names lists every supported action.
var Names = []Name{PowerOn, PowerOff, SendText, ApplyConfig, DumpRadioConfig, SendNodeInfo}

// Bridge is the part of radio.Service the actions drive.
type Bridge interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	SendText(ctx context.Context, req radio.SendTextRequest) (uint32, error)
	ApplyConfig(ctx context.Context) error
	DumpRadioConfig(ctx context.Context) error
	SendNodeInfo(ctx context.Context) error
	State() connectors.BridgeState
}

// Action is a parsed request. Text is set only for SendText.
type Action struct {
	Name Name
	Text *radio.SendTextRequest
}

type textPayload struct {
	Text        string `json:"text"`
	Destination string `json:"destination,omitempty"`
	Channel     *uint8 `json:"channel,omitempty"`
}

// Result is reported back to the requester.
type Result struct {
	Action   Name   `json:"action"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	PacketID uint32 `json:"packet_id,omitempty"`
}

// Parse validates name and decodes payload. send_text accepts a JSON object
// or, when the payload is not JSON, the raw text.
func Parse(name string, payload []byte) (Action, error) {
	n := Name(strings.TrimSpace(name))
	switch n {
	case PowerOn, PowerOff, ApplyConfig, DumpRadioConfig, SendNodeInfo:
		return Action{Name: n}, nil
	case SendText:
		req, err := parseText(payload)
		if err != nil {
			return Action{}, err
		}
		return Action{Name: n, Text: &req}, nil
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
}

func parseText(payload []byte) (radio.SendTextRequest, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return radio.SendTextRequest{Text: string(payload)}, nil
	}

	var body textPayload
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return radio.SendTextRequest{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	req := radio.SendTextRequest{Text: body.Text, Channel: body.Channel}
	if body.Destination != "" {
		num, err := domain.ParseNodeNum(body.Destination)
		if err != nil {
			return radio.SendTextRequest{}, fmt.Errorf("%w: destination: %w", ErrInvalidPayload, err)
		}
		req.Destination = &num
	}
	if req.Channel != nil && *req.Channel > 7 {
		return radio.SendTextRequest{}, fmt.Errorf("%w: channel %d out of range 0..7", ErrInvalidPayload, *req.Channel)
	}

	return req, nil
}

// Execute runs a on b. The returned error is also rendered into the result.
func Execute(ctx context.Context, b Bridge, a Action) (Result, error) {
	res := Result{Action: a.Name}
	var err error
	switch a.Name {
	case PowerOn:
		err = b.PowerOn(ctx)
	case PowerOff:
		err = b.PowerOff(ctx)
	case SendText:
		if a.Text == nil {
			err = fmt.Errorf("%w: missing text", ErrInvalidPayload)
			break
		}
		res.PacketID, err = b.SendText(ctx, *a.Text)
	case ApplyConfig:
		err = b.ApplyConfig(ctx)
	case DumpRadioConfig:
		err = b.DumpRadioConfig(ctx)
	case SendNodeInfo:
		err = b.SendNodeInfo(ctx)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, a.Name)
	}
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	res.OK = true
	return res, nil
}

// Kind classifies an action error for transport status mapping.
type Kind int

const (
	KindOK Kind = iota
	KindInvalid
	KindBusy
	KindUnavailable
	KindInternal
)

func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrUnknownAction),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, radio.ErrEmptyMessage),
		errors.Is(err, link.ErrMessageTooLong),
		errors.Is(err, radio.ErrNoTransaction):
		return KindInvalid
	case errors.Is(err, link.ErrBusy), errors.Is(err, radio.ErrApplyInProgress):
		return KindBusy
	case errors.Is(err, link.ErrNotReady),
		errors.Is(err, radio.ErrPoweredOff),
		errors.Is(err, radio.ErrNodeUnknown),
		errors.Is(err, radio.ErrStopped):
		return KindUnavailable
	default:
		return KindInternal
	}
}
