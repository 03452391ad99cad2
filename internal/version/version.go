// Package version reports the build version of the atomic binary.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Commit is stamped at build time:
//
//	go build -ldflags "-X github.com/ShayCichocki/atomic/internal/version.Commit=$(git rev-parse --short HEAD)"
var Commit string

// Get returns the release number from the VERSION file.
func Get() string {
	return strings.TrimSpace(raw)
}

// String returns the human-readable version line, including the commit when known.
func String() string {
	s := "atomic version " + Get()
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return s
}
