package orchestrator

import (
	"time"
	"unicode/utf8"
)

// FailureKind classifies why a summary is marked failed. Invocation failures
// reuse the api.ErrorKind values.
type FailureKind string

const (
	FailureNotFound FailureKind = "definition_not_found"
	FailureParse    FailureKind = "definition_parse"
	FailureInvalid  FailureKind = "invalid_request"
)

// Summary is the coordinator-facing outcome of one invocation. A failed
// invocation is a Summary with Failed set, never an error.
type Summary struct {
	Agent string `json:"agent"`
	Input string `json:"input"`
	// Failed marks an invocation that produced no usable text.
	Failed bool `json:"failed"`
	// Output is a bounded prefix of the raw text; the rest is discarded
	// after marker extraction.
	Output    string `json:"output,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	// Reason and Kind describe a failure.
	Reason string      `json:"reason,omitempty"`
	Kind   FailureKind `json:"kind,omitempty"`
	// Markers are the values this invocation merged into State.
	Markers  map[string]string `json:"markers,omitempty"`
	Duration time.Duration     `json:"duration"`
}

func failed(agent, input string, kind FailureKind, reason string) Summary {
	return Summary{Agent: agent, Input: input, Failed: true, Kind: kind, Reason: reason}
}

// prefix returns at most n runes of s and whether anything was cut.
func prefix(s string, n int) (string, bool) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}

// Outcomes counts successful and failed summaries.
func Outcomes(summaries []Summary) (succeeded, failedCount int) {
	for _, s := range summaries {
		if s.Failed {
			failedCount++
		} else {
			succeeded++
		}
	}
	return succeeded, failedCount
}
