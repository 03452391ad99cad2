package pipeline

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Signal file names inside the signals directory.
const (
	SignalKill  = "kill"
	SignalPause = "pause"
)

// SignalsDir returns the directory an operator drops signal files into.
func SignalsDir(projectDir string) string {
	return filepath.Join(projectDir, ".atomic", "signals")
}

// SignalWatcher reports operator signals: a kill file stops the run before
// the next coordinator turn, a pause file holds it until removed.
type SignalWatcher struct {
	dir string

	mu          sync.RWMutex
	stopSignal  bool
	pauseSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewSignalWatcher creates the signals directory and starts watching it.
// If fsnotify is unavailable the watcher falls back to checking the files
// directly.
func NewSignalWatcher(projectDir string) (*SignalWatcher, error) {
	dir := SignalsDir(projectDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		dir:  dir,
		done: make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sw, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return sw, nil
	}
	sw.watcher = watcher

	go sw.watch()

	return sw, nil
}

// watch monitors the signals directory for kill/pause files.
func (sw *SignalWatcher) watch() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			created := event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0
			removed := event.Op&fsnotify.Remove != 0 || event.Op&fsnotify.Rename != 0

			sw.mu.Lock()
			switch {
			case base == SignalKill && created && sw.present(SignalKill):
				sw.stopSignal = true
			case base == SignalPause && created && sw.present(SignalPause):
				sw.pauseSignal = true
			case base == SignalPause && removed:
				sw.pauseSignal = false
			}
			sw.mu.Unlock()
		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			// Ignore errors, keep watching
		}
	}
}

// present reports whether a signal file exists. Events can arrive after
// ClearSignals removed the file.
func (sw *SignalWatcher) present(name string) bool {
	_, err := os.Stat(filepath.Join(sw.dir, name))
	return err == nil
}

// ShouldStop returns true once a kill signal has been seen. It is sticky.
func (sw *SignalWatcher) ShouldStop() bool {
	// Also check file directly in case watcher missed it
	if sw.present(SignalKill) {
		sw.mu.Lock()
		sw.stopSignal = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stopSignal
}

// ShouldPause reports whether a pause file is present.
func (sw *SignalWatcher) ShouldPause() bool {
	present := sw.present(SignalPause)

	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.pauseSignal = present
	return sw.pauseSignal
}

// SendKill creates a kill signal file.
func (sw *SignalWatcher) SendKill() error {
	return os.WriteFile(filepath.Join(sw.dir, SignalKill), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause creates a pause signal file.
func (sw *SignalWatcher) SendPause() error {
	return os.WriteFile(filepath.Join(sw.dir, SignalPause), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files and resets signal state.
func (sw *SignalWatcher) ClearSignals() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.stopSignal = false
	sw.pauseSignal = false

	os.Remove(filepath.Join(sw.dir, SignalKill))
	os.Remove(filepath.Join(sw.dir, SignalPause))
}

// Close stops the file watcher.
func (sw *SignalWatcher) Close() error {
	var err error
	sw.once.Do(func() {
		close(sw.done)
		if sw.watcher != nil {
			err = sw.watcher.Close()
		}
	})
	return err
}
