package definition

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// Ext is the file extension of stored definitions.
const Ext = ".md"

// Loader reads definitions from a filesystem. Parsed definitions are cached,
// so repeated loads of the same identity return the same immutable value.
type Loader struct {
	fsys        fs.FS
	coordinator string

	mu    sync.Mutex
	cache map[string]*UnitOfWork
}

// NewLoader creates a loader over fsys. The coordinator name is excluded from
// Discover, since it is not dispatchable as a sub-task.
func NewLoader(fsys fs.FS, coordinator string) *Loader {
	return &Loader{
		fsys:        fsys,
		coordinator: Normalize(coordinator),
		cache:       make(map[string]*UnitOfWork),
	}
}

// Normalize reduces an identity to the bare definition name:
// "agents/tester.md", "tester.md" and "tester" all become "tester".
func Normalize(identity string) string {
	name := strings.TrimSpace(identity)
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(name, Ext)
}

// Load returns the definition for identity, or an error wrapping ErrNotFound
// or ErrParse.
func (l *Loader) Load(identity string) (*UnitOfWork, error) {
	name := Normalize(identity)
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: empty identity", ErrNotFound)
	}

	l.mu.Lock()
	if unit, ok := l.cache[name]; ok {
		l.mu.Unlock()
		return unit, nil
	}
	l.mu.Unlock()

	content, err := fs.ReadFile(l.fsys, name+Ext)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read definition %s: %w", name, err)
	}

	unit, err := Parse(name, content)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.cache[name]; ok {
		return cached, nil
	}
	l.cache[name] = unit
	return unit, nil
}

// IsDispatchable reports whether identity may run as a sub-task. The
// coordinator definition is loadable but never dispatchable.
func (l *Loader) IsDispatchable(identity string) bool {
	return Normalize(identity) != l.coordinator
}

// Names lists every dispatchable definition name in sorted order.
func (l *Loader) Names() ([]string, error) {
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		if !strings.HasSuffix(file, Ext) || strings.Contains(file, ":") {
			continue
		}
		name := strings.TrimSuffix(file, Ext)
		if name == l.coordinator {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Discover loads every dispatchable definition. Malformed definitions are
// reported in the returned error map instead of failing the whole scan.
func (l *Loader) Discover() ([]*UnitOfWork, map[string]error, error) {
	names, err := l.Names()
	if err != nil {
		return nil, nil, err
	}

	units := make([]*UnitOfWork, 0, len(names))
	failures := make(map[string]error)
	for _, name := range names {
		unit, err := l.Load(name)
		if err != nil {
			failures[name] = err
			continue
		}
		units = append(units, unit)
	}
	return units, failures, nil
}
