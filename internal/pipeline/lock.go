package pipeline

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/atomic/internal/state"
)

// ErrLocked is returned when another live process holds the project lock.
var ErrLocked = errors.New("another pipeline is running in this directory")

// lockSettle is how long a lock file without a readable PID is assumed to
// belong to a process that created it but has not written it yet.
const lockSettle = 5 * time.Second

// LockPath returns the project's pipeline lock file.
func LockPath(projectDir string) string {
	return filepath.Join(projectDir, ".atomic", "pipeline.lock")
}

// Lock is a PID lock file held for the duration of a run.
type Lock struct {
	path string
}

// AcquireLock takes the project lock. A lock left by a dead process, or one
// whose content stayed unreadable for longer than lockSettle, is treated as
// stale and replaced.
func AcquireLock(projectDir string) (*Lock, error) {
	path := LockPath(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		pid, ok := lockOwner(path)
		if ok && state.IsProcessAlive(pid) {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		}
		if !ok && settling(path) {
			return nil, fmt.Errorf("%w (lock is being written)", ErrLocked)
		}
		if ok {
			log.Printf("[pipeline] removing stale lock (pid %d is dead)", pid)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return nil, ErrLocked
}

func lockOwner(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// settling reports whether the lock file was modified within lockSettle.
func settling(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < lockSettle
}

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
