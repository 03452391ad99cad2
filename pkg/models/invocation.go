package models

import "time"

// Invocation is one dispatch of an agent definition with a concrete input.
// It lives only until its markers have been merged and its summary returned.
type Invocation struct {
	// Agent is the definition identity the invocation was dispatched to.
	Agent string `json:"agent"`
	// Input is the input string handed to the agent.
	Input string `json:"input"`
	// Output is the raw response text on success.
	Output string `json:"output,omitempty"`
	// Err is the failure, if any.
	Err error `json:"-"`
	// StartedAt is when the dispatch began.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the response (or failure) arrived.
	EndedAt time.Time `json:"ended_at"`
}

// Duration returns how long the invocation ran.
func (i *Invocation) Duration() time.Duration {
	if i.EndedAt.IsZero() {
		return 0
	}
	return i.EndedAt.Sub(i.StartedAt)
}

// Succeeded reports whether the invocation produced a response.
func (i *Invocation) Succeeded() bool {
	return i.Err == nil
}
