package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/atomic/internal/definition"
)

// Invoker performs one invocation of a unit of work: the rendered prompts go
// out in a single request and the raw response text comes back. Failures are
// returned as *InvocationError.
type Invoker interface {
	Invoke(ctx context.Context, unit *definition.UnitOfWork, input string) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, unit *definition.UnitOfWork, input string) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, unit *definition.UnitOfWork, input string) (string, error) {
	return f(ctx, unit, input)
}

// AnthropicInvoker invokes units through the Anthropic Messages API.
type AnthropicInvoker struct {
	client     *Client
	projectDir string
}

// NewAnthropicInvoker creates an invoker whose prompts direct output files
// into projectDir.
func NewAnthropicInvoker(client *Client, projectDir string) *AnthropicInvoker {
	return &AnthropicInvoker{client: client, projectDir: projectDir}
}

// Invoke sends exactly one Messages request.
func (a *AnthropicInvoker) Invoke(ctx context.Context, unit *definition.UnitOfWork, input string) (string, error) {
	resp, err := a.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.client.ResolveModel(unit.ModelTier()),
		MaxTokens: a.client.MaxTokens(),
		System: []anthropic.TextBlockParam{
			{Text: unit.SystemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(unit.UserPrompt(a.projectDir, input))),
		},
	})
	if err != nil {
		return "", Classify(unit.Name, err)
	}

	a.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var out strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(variant.Text)
		}
	}
	return out.String(), nil
}

// Router dispatches each unit to the invoker for its provider.
type Router struct {
	backends map[definition.Provider]Invoker
}

// NewRouter creates a router. A nil invoker leaves that provider unavailable.
func NewRouter(anthropicInvoker, openaiInvoker Invoker) *Router {
	r := &Router{backends: make(map[definition.Provider]Invoker)}
	if anthropicInvoker != nil {
		r.backends[definition.ProviderAnthropic] = anthropicInvoker
	}
	if openaiInvoker != nil {
		r.backends[definition.ProviderOpenAI] = openaiInvoker
	}
	return r
}

// Invoke routes by unit.Backend().
func (r *Router) Invoke(ctx context.Context, unit *definition.UnitOfWork, input string) (string, error) {
	backend, ok := r.backends[unit.Backend()]
	if !ok {
		return "", &InvocationError{
			Kind:  KindTransportFailure,
			Agent: unit.Name,
			Err:   fmt.Errorf("%w: %s", ErrBackendUnavailable, unit.Backend()),
		}
	}
	return backend.Invoke(ctx, unit, input)
}

var (
	_ Invoker = (*AnthropicInvoker)(nil)
	_ Invoker = (*OpenAIInvoker)(nil)
	_ Invoker = (*Router)(nil)
	_ Invoker = InvokerFunc(nil)
)
