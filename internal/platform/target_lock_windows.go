//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

type mutexTargetLock struct {
	handle windows.Handle
}

func acquireTargetLock(app, target string) (TargetLock, error) {
	name, err := windows.UTF16PtrFromString(`Local\` + app + "-target-" + target)
	if err != nil {
		return nil, fmt.Errorf("encode target mutex name: %w", err)
	}

	handle, err := windows.CreateMutex(nil, false, name)
	if err != nil {
		if handle != 0 {
			_ = windows.CloseHandle(handle)
		}
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			return nil, fmt.Errorf("%w: %s", ErrTargetBusy, target)
		}
		return nil, fmt.Errorf("create target mutex: %w", err)
	}

	return &mutexTargetLock{handle: handle}, nil
}

func (l *mutexTargetLock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}

	err := windows.CloseHandle(l.handle)
	l.handle = 0
	if err != nil {
		return fmt.Errorf("close target mutex: %w", err)
	}

	return nil
}
