// Package runtimepath locates per-user runtime files and guards the daemon
// against running twice in one session.
package runtimepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLocked is returned by Acquire when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// Dir returns the runtime directory used for wintopo lock files. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// 3) /tmp/wintopo-runtime-<uid> (created)
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/wintopo-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// LockPath returns the daemon lock path for the given X display. Each
// display gets its own lock so nested or remote sessions do not collide.
func LockPath(display string) (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "wintopo"+displaySuffix(display)+".lock"), nil
}

// displaySuffix turns ":0" or "localhost:10.0" into "-0" or "-localhost-10.0".
func displaySuffix(display string) string {
	display = strings.TrimSpace(display)
	if display == "" {
		return ""
	}
	r := strings.NewReplacer(":", "-", "/", "-")
	return "-" + strings.TrimPrefix(r.Replace(display), "-")
}

// Lock is an exclusive advisory lock on a file. The file holds the owner's
// pid for diagnostics.
type Lock struct {
	f *os.File
}

// Acquire takes the lock at path without blocking. It returns an error
// wrapping ErrLocked when another process already holds it.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		owner := readOwner(f)
		f.Close()
		if errors.Is(err, ErrLocked) && owner != "" {
			return nil, fmt.Errorf("%s: %w (pid %s)", path, ErrLocked, owner)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. The file is left in place; removing it would race
// with a process that just opened it.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

func readOwner(f *os.File) string {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	return strings.TrimSpace(string(buf[:n]))
}
