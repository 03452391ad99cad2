package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ShayCichocki/atomic/internal/api"
	"github.com/ShayCichocki/atomic/internal/config"
	"github.com/ShayCichocki/atomic/internal/definition"
	"github.com/ShayCichocki/atomic/internal/orchestrator"
	"github.com/ShayCichocki/atomic/internal/state"
)

// resolveProjectDir returns dir as an absolute path, defaulting to the
// working directory.
func resolveProjectDir(dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project dir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project dir %s is not a directory", abs)
	}
	return abs, nil
}

// newLoader reads definitions from the configured agents directory.
func newLoader(cfg *config.Config, projectDir string) *definition.Loader {
	return definition.NewLoader(os.DirFS(cfg.AgentsPath(projectDir)), cfg.Pipeline.Coordinator)
}

// openStore opens and migrates the configured state database.
func openStore(cfg *config.Config, projectDir string) (*state.DB, error) {
	db, err := state.OpenWithDriver(cfg.State.Driver, cfg.StatePath(projectDir))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// newAPIClient creates the Anthropic client, through Bedrock when configured.
func newAPIClient(cfg *config.Config, tracker *api.TokenTracker) (*api.Client, error) {
	clientCfg := api.ClientConfig{
		Model:          cfg.Pipeline.CoordinatorModel,
		UseAWSBedrock:  cfg.Anthropic.UseBedrock,
		AWSRegion:      cfg.Anthropic.AWSRegion,
		AWSProfile:     cfg.Anthropic.AWSProfile,
		ModelOverrides: cfg.Models,
		Tracker:        tracker,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w (set ANTHROPIC_API_KEY or anthropic.api_key)", err)
		}
		if err := config.ValidateAPIKey(key); err != nil {
			log.Printf("[config] warning: %v", err)
		}
		clientCfg.APIKey = key
	}

	client, err := api.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}

// newInvoker routes definitions to Anthropic, or to OpenAI when a key is
// configured and the definition asks for it.
func newInvoker(cfg *config.Config, client *api.Client, tracker *api.TokenTracker, projectDir string) (api.Invoker, error) {
	anthropicInvoker := api.NewAnthropicInvoker(client, projectDir)

	key, err := config.GetOpenAIKey(cfg)
	if err != nil {
		return api.NewRouter(anthropicInvoker, nil), nil
	}
	openaiInvoker, err := api.NewOpenAIInvoker(api.OpenAIConfig{
		APIKey:     key,
		Model:      cfg.OpenAI.Model,
		ProjectDir: projectDir,
		Tracker:    tracker,
	})
	if err != nil {
		return nil, fmt.Errorf("create OpenAI invoker: %w", err)
	}
	return api.NewRouter(anthropicInvoker, openaiInvoker), nil
}

// runtime holds the wired components of one pipeline run.
type runtime struct {
	cfg        *config.Config
	projectDir string
	runID      string

	db      *state.DB
	client  *api.Client
	tracker *api.TokenTracker
	defs    *definition.Loader
	orch    *orchestrator.Orchestrator
	logger  *orchestrator.DebugLogger
	emitter *orchestrator.EventEmitter
}

type runtimeOptions struct {
	task     string
	seed     map[string]string
	emitter  *orchestrator.EventEmitter
	reporter io.Writer
}

// newRuntime wires configuration into a ready orchestrator.
func newRuntime(cfg *config.Config, projectDir string, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{
		cfg:        cfg,
		projectDir: projectDir,
		runID:      uuid.New().String(),
		tracker:    api.NewTokenTracker(),
		defs:       newLoader(cfg, projectDir),
		emitter:    opts.emitter,
	}

	logger, err := orchestrator.NewDebugLoggerForProject(projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log unavailable: %v\n", err)
		logger = orchestrator.NopLogger()
	}
	rt.logger = logger

	rt.client, err = newAPIClient(cfg, rt.tracker)
	if err != nil {
		rt.Close()
		return nil, err
	}
	invoker, err := newInvoker(cfg, rt.client, rt.tracker, projectDir)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.db, err = openStore(cfg, projectDir)
	if err != nil {
		rt.Close()
		return nil, err
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithMaxParallel(cfg.Pipeline.MaxParallel),
		orchestrator.WithSummaryChars(cfg.Pipeline.SummaryChars),
		orchestrator.WithTimeout(cfg.Timeouts.Invocation),
		orchestrator.WithStore(rt.db, rt.runID),
		orchestrator.WithProjectDir(projectDir),
		orchestrator.WithTask(opts.task),
		orchestrator.WithLogger(rt.logger),
	}
	if opts.emitter != nil {
		orchOpts = append(orchOpts, orchestrator.WithEmitter(opts.emitter))
	}
	if opts.reporter != nil {
		orchOpts = append(orchOpts, orchestrator.WithReporter(opts.reporter))
	}

	rt.orch = orchestrator.New(orchestrator.RequiredConfig{
		Definitions: rt.defs,
		Invoker:     invoker,
		State:       state.NewFrom(opts.seed),
	}, orchOpts...)

	return rt, nil
}

// Close releases the store and the debug log.
func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
	rt.logger.Close()
}
