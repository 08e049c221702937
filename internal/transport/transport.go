package transport

import "context"

type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
	// WriteRaw writes bytes without the frame header, used for the wake
	// sequence sent before the radio is listening for frames.
	WriteRaw(ctx context.Context, p []byte) error
}

type StatusTargetResolver interface {
	StatusTarget() string
}

// PowerLine drives the output that switches the radio on and off.
type PowerLine interface {
	SetPower(on bool) error
}

// NoPowerLine is used when the radio is powered independently.
type NoPowerLine struct{}

func (NoPowerLine) SetPower(bool) error {
	return nil
}
