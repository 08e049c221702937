package radio

import "errors"

var (
	ErrEmptyMessage    = errors.New("message body is empty")
	ErrNoTransaction   = errors.New("no radio configuration to apply")
	ErrApplyInProgress = errors.New("radio configuration is being applied")
	ErrNodeUnknown     = errors.New("local node number is not known yet")
	ErrPoweredOff      = errors.New("radio is powered off")
	ErrStopped         = errors.New("bridge service stopped")
)
