// Package platform holds OS specific helpers.
package platform

import (
	"errors"
	"strings"
)

// ErrTargetBusy means another bridge process already drives the radio.
var ErrTargetBusy = errors.New("radio target is used by another bridge process")

// ErrTargetLockUnsupported means the OS has no lock backend.
var ErrTargetLockUnsupported = errors.New("target lock unsupported")

// TargetLock is held for as long as the process owns a radio target.
type TargetLock interface {
	Release() error
}

// AcquireTargetLock takes an exclusive, process-scoped lock named after the
// radio target (serial device path or host:port). The lock disappears with
// the process.
func AcquireTargetLock(app, target string) (TargetLock, error) {
	return acquireTargetLock(lockComponent(app, "app"), lockComponent(target, "default"))
}

// lockComponent maps raw to a string safe for file and mutex names.
func lockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "_-.")
	if out == "" {
		return fallback
	}

	return out
}
