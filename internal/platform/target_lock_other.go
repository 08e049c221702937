//go:build !unix && !windows

package platform

import (
	"fmt"
	"runtime"
)

func acquireTargetLock(_, _ string) (TargetLock, error) {
	return nil, fmt.Errorf("%w on %s", ErrTargetLockUnsupported, runtime.GOOS)
}
