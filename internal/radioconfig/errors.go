package radioconfig

import (
	"errors"
	"fmt"
)

// ErrInvalidSettings wraps every build failure; the individual problems are
// joined under it as *ValidationError values.
var ErrInvalidSettings = errors.New("invalid radio settings")

// ValidationError describes one rejected field.
type ValidationError struct {
	Section Section
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Section, e.Reason)
	}

	return fmt.Sprintf("%s.%s: %s", e.Section, e.Field, e.Reason)
}
