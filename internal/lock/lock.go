// Package lock guards a data directory against two gateway daemons writing
// the same store.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created inside the data directory.
const FileName = "wppgwd.lock"

// Holder describes the process owning the lock.
type Holder struct {
	PID     int
	Socket  string
	Started time.Time
}

// LockHeldError is returned when another daemon holds the data directory.
type LockHeldError struct {
	Holder Holder
	Path   string
}

func (e *LockHeldError) Error() string {
	if e.Holder.Socket != "" {
		return fmt.Sprintf("data dir locked by PID %d serving %s (%s)", e.Holder.PID, e.Holder.Socket, e.Path)
	}
	return fmt.Sprintf("data dir locked by PID %d (%s)", e.Holder.PID, e.Path)
}

// Lock represents an acquired daemon lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on dataDir and records the current PID
// and the socket the daemon will serve. Returns LockHeldError if another
// process already holds it.
func Acquire(dataDir, socket string) (*Lock, error) {
	lockPath := filepath.Join(dataDir, FileName)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder, _ := Read(dataDir)
		_ = f.Close()
		return nil, &LockHeldError{Holder: holder, Path: lockPath}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\nsocket=%s\ntime=%s\n", os.Getpid(), socket, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Read returns the holder recorded in the lock file of dataDir.
func Read(dataDir string) (Holder, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, FileName))
	if err != nil {
		return Holder{}, err
	}
	return parseHolder(string(data)), nil
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before closing so no stale file survives us.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "socket":
			h.Socket = value
		case "time":
			h.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return h
}
