// Package application wires the runtime's collaborators into a single
// App: load config, build the logger, stand up the sandbox/tool
// registry/prompt builder/dispatcher/LLM client, and assemble the Agent
// Controller that actually runs a goal. This is the only composition
// root in the module — cmd/reactorctl depends on it, nothing else does.
package application

import (
	"context"
	"fmt"

	reactctx "github.com/reactorctl/reactor/internal/domain/context"
	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/reactorctl/reactor/internal/domain/service"
	domaintool "github.com/reactorctl/reactor/internal/domain/tool"
	"github.com/reactorctl/reactor/internal/infrastructure/config"
	"github.com/reactorctl/reactor/internal/infrastructure/funnel"
	"github.com/reactorctl/reactor/internal/infrastructure/llm"
	"github.com/reactorctl/reactor/internal/infrastructure/logger"
	"github.com/reactorctl/reactor/internal/infrastructure/persistence"
	"github.com/reactorctl/reactor/internal/infrastructure/prompt"
	"github.com/reactorctl/reactor/internal/infrastructure/sandbox"
	infratool "github.com/reactorctl/reactor/internal/infrastructure/tool"
	apperrors "github.com/reactorctl/reactor/pkg/errors"
	"github.com/reactorctl/reactor/pkg/safego"
	"go.uber.org/zap"
)

// App holds every wired collaborator for one runtime process.
type App struct {
	cfg        *config.Config
	log        *zap.Logger
	registry   domaintool.Registry
	builder    *prompt.Builder
	dispatcher *infratool.Dispatcher
	llmClient  llm.Client
	controller *service.Controller
	store      *persistence.ReplayStore
}

// New builds an App from cfg. An empty cfg.LLM.BaseURL wires a
// ScriptedClient with no responses — useful for `tools list`, not for
// `run`, which will fail its first LLM call with a clear error in that
// case rather than panicking.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.WorkDir = cfg.Workspace.Root
	sb, err := sandbox.NewProcessSandbox(sandboxCfg, log)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("scratch directory unwritable", err)
	}

	registry := domaintool.NewInMemoryRegistry()
	registered := infratool.RegisterBuiltinTools(infratool.RegisterDeps{
		Registry:  registry,
		Logger:    log,
		Sandbox:   sb,
		Workspace: cfg.Workspace.Root,
	})
	log.Info("tool registration complete", zap.Int("registered", registered))

	f := funnel.New(cfg.Workspace.ScratchDir, log)
	dispatcher := infratool.NewDispatcher(registry, nil, f, log)
	builder := prompt.NewBuilder(registry, nil, prompt.DefaultConfig(), cfg.Workspace.Root, log)
	builder.EnableSummarization(reactctx.NewSimpleSummarizer())

	var client llm.Client
	if cfg.LLM.BaseURL == "" {
		client = llm.NewScriptedClient()
	} else {
		client = llm.NewHTTPClient(llm.HTTPClientConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Timeout: cfg.LLM.Timeout,
		})
	}

	controllerCfg := service.ControllerConfig{
		Model:              cfg.LLM.Model,
		Temperature:        cfg.LLM.Temperature,
		MaxTokens:          cfg.LLM.MaxTokens,
		Retry:              llm.RetryConfig{MaxRetries: cfg.Runtime.MaxRetries, BaseWait: cfg.Runtime.RetryBaseWait},
		MaxTokenBudget:     cfg.Runtime.MaxTokenBudget,
		MaxRunDuration:     cfg.Runtime.MaxRunDuration,
		LoopWindowSize:     cfg.Guardrails.LoopWindowSize,
		LoopExactThreshold: cfg.Guardrails.LoopExactThreshold,
		LoopNameThreshold:  cfg.Guardrails.LoopNameThreshold,
		ToolCacheTTL:       cfg.Runtime.ToolCacheTTL,
		ToolCacheMaxSize:   cfg.Runtime.ToolCacheSize,
		Workspace:          cfg.Workspace.Root,
	}
	controller := service.NewController(registry, builder, dispatcher, client, nil, log, controllerCfg)

	store, err := persistence.NewReplayStore(cfg.Database.DSN)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("replay store unwritable", err)
	}

	return &App{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		builder:    builder,
		dispatcher: dispatcher,
		llmClient:  client,
		controller: controller,
		store:      store,
	}, nil
}

// RunGoal drives a single goal to completion (or turn exhaustion, or a
// fatal error) and persists the resulting run to the replay store. A
// persistence failure is logged but doesn't change the returned result —
// the run itself already happened.
func (a *App) RunGoal(ctx context.Context, goalDescription string, constraints map[string]interface{}, maxTurns int) *entity.RunResult {
	result := a.controller.ExecuteGoal(ctx, goalDescription, constraints, maxTurns)
	if result.State != nil {
		if err := a.store.SaveRun(ctx, result); err != nil {
			a.log.Warn("failed to persist run", zap.Error(err))
		}
	}
	return result
}

// RunGoalAsync launches RunGoal on its own goroutine and delivers the
// result to onDone, which runs on that goroutine — callers needing
// thread-safe access to the result must synchronize themselves. Used for
// hosting multiple concurrent runs in the same process (spec's
// multi-run/parallelism note); a panicking run is recovered and logged
// rather than crashing the host, the same guarantee ExecuteGoal itself
// gives a synchronous caller.
func (a *App) RunGoalAsync(ctx context.Context, goalDescription string, constraints map[string]interface{}, maxTurns int, onDone func(*entity.RunResult)) {
	safego.Go(a.log, "run:"+goalDescription, func() {
		onDone(a.RunGoal(ctx, goalDescription, constraints, maxTurns))
	})
}

// ListTools returns every registered tool descriptor, for `tools list`.
func (a *App) ListTools() []domaintool.Definition {
	return a.registry.List()
}

// ReplayRun loads a previously persisted run by its goal ID.
func (a *App) ReplayRun(ctx context.Context, runID string) (*entity.RunResult, error) {
	return a.store.LoadRun(ctx, runID)
}

// ListRuns returns every persisted run ID, most recent first.
func (a *App) ListRuns(ctx context.Context) ([]string, error) {
	return a.store.ListRuns(ctx)
}

// Logger exposes the built zap.Logger, e.g. for the CLI's own top-level
// error reporting.
func (a *App) Logger() *zap.Logger { return a.log }

// Close releases the App's held resources (currently just the replay
// store's database connection).
func (a *App) Close() error {
	return a.store.Close()
}
