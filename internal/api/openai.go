package api

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/ShayCichocki/atomic/internal/definition"
	"github.com/ShayCichocki/atomic/pkg/models"
)

// DefaultOpenAIModel is used when a definition names no OpenAI model.
const DefaultOpenAIModel = "gpt-4.1"

// OpenAIConfig contains configuration for an OpenAIInvoker.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. If empty, uses OPENAI_API_KEY env var.
	APIKey string
	// Model is the default model id.
	Model string
	// ModelOverrides maps model hints to concrete model ids.
	ModelOverrides map[string]string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// ProjectDir is where invoked units are told to write output files.
	ProjectDir string
	// Tracker receives token usage. A new tracker is created if nil.
	Tracker *TokenTracker
}

// OpenAIInvoker invokes units through the OpenAI Responses API.
type OpenAIInvoker struct {
	client     openai.Client
	model      string
	overrides  map[string]string
	projectDir string
	tracker    *TokenTracker
}

// NewOpenAIInvoker creates an OpenAI invoker with automatic retries disabled.
func NewOpenAIInvoker(cfg OpenAIConfig) (*OpenAIInvoker, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewTokenTracker()
	}

	return &OpenAIInvoker{
		client:     openai.NewClient(opts...),
		model:      model,
		overrides:  cfg.ModelOverrides,
		projectDir: cfg.ProjectDir,
		tracker:    tracker,
	}, nil
}

// resolveModel maps a hint to an OpenAI model. Claude tier aliases and empty
// hints fall back to the default model unless overridden.
func (o *OpenAIInvoker) resolveModel(hint string) string {
	key := strings.ToLower(strings.TrimSpace(hint))
	if m := o.overrides[key]; m != "" {
		return m
	}
	if key == "" || models.ModelTier(key).Valid() {
		return o.model
	}
	return strings.TrimSpace(hint)
}

// Tracker returns the token tracker for this invoker.
func (o *OpenAIInvoker) Tracker() *TokenTracker {
	return o.tracker
}

// Invoke sends exactly one Responses request.
func (o *OpenAIInvoker) Invoke(ctx context.Context, unit *definition.UnitOfWork, input string) (string, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.resolveModel(unit.Model)),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(unit.UserPrompt(o.projectDir, input)),
		},
		Instructions: openai.String(unit.SystemPrompt()),
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", Classify(unit.Name, err)
	}

	o.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp.OutputText(), nil
}
