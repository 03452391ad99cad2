package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
)

// ErrorKind classifies why a single invocation failed.
type ErrorKind string

const (
	// KindTimeout means the invocation deadline passed before a response.
	KindTimeout ErrorKind = "timeout"
	// KindUpstreamRejected means the service answered with an error status
	// (quota, malformed or oversized request, server error).
	KindUpstreamRejected ErrorKind = "upstream_rejected"
	// KindTransportFailure means no response was obtained at the network level.
	KindTransportFailure ErrorKind = "transport_failure"
)

// ErrBackendUnavailable is wrapped when a definition names a provider that
// has no configured client.
var ErrBackendUnavailable = errors.New("backend not configured")

// InvocationError is the terminal failure of one invocation. It is never
// retried inside this package.
type InvocationError struct {
	Kind       ErrorKind
	Agent      string
	StatusCode int
	Err        error
}

func (e *InvocationError) Error() string {
	prefix := string(e.Kind)
	if e.StatusCode != 0 {
		prefix = fmt.Sprintf("%s (%d)", e.Kind, e.StatusCode)
	}
	if e.Agent != "" {
		return fmt.Sprintf("%s: %s: %v", e.Agent, prefix, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same call could plausibly succeed.
// Callers above the orchestrator decide whether to act on it.
func (e *InvocationError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransportFailure:
		return true
	case KindUpstreamRejected:
		return e.StatusCode == http.StatusTooManyRequests ||
			e.StatusCode == http.StatusRequestTimeout ||
			e.StatusCode == http.StatusConflict ||
			e.StatusCode >= 500
	}
	return false
}

// KindOf returns the kind of an invocation error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var ie *InvocationError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// Classify maps a provider or transport error to an InvocationError.
// Any typed SDK error, whatever its status code, is an upstream rejection.
// Deadline expiry becomes a timeout. Everything else is a transport failure.
func Classify(agent string, err error) *InvocationError {
	if err == nil {
		return nil
	}

	var ie *InvocationError
	if errors.As(err, &ie) {
		if ie.Agent == "" {
			ie.Agent = agent
		}
		return ie
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &InvocationError{Kind: KindTimeout, Agent: agent, Err: err}
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return &InvocationError{Kind: KindUpstreamRejected, Agent: agent, StatusCode: anthropicErr.StatusCode, Err: err}
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return &InvocationError{Kind: KindUpstreamRejected, Agent: agent, StatusCode: openaiErr.StatusCode, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &InvocationError{Kind: KindTimeout, Agent: agent, Err: err}
	}

	return &InvocationError{Kind: KindTransportFailure, Agent: agent, Err: err}
}
