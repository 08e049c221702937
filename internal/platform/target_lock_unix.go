//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

type flockTargetLock struct {
	file *os.File
}

func acquireTargetLock(app, target string) (TargetLock, error) {
	path, err := targetLockPath(app, target)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- path is built from the runtime dir and a sanitized name.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open target lock: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, fmt.Errorf("%w: %s", ErrTargetBusy, target)
		}
		return nil, fmt.Errorf("lock target: %w", err)
	}

	// The pid is informational only.
	_ = file.Truncate(0)
	_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)

	return &flockTargetLock{file: file}, nil
}

func (l *flockTargetLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, syscall.EBADF) {
		return fmt.Errorf("unlock target: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close target lock: %w", closeErr)
	}

	return nil
}

// targetLockPath prefers XDG_RUNTIME_DIR and falls back to a per-user
// directory under the temp dir.
func targetLockPath(app, target string) (string, error) {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir != "" {
		dir = filepath.Join(dir, app)
	} else {
		dir = filepath.Join(os.TempDir(), app+"-"+strconv.Itoa(os.Getuid()))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create lock dir: %w", err)
	}

	return filepath.Join(dir, target+".lock"), nil
}
