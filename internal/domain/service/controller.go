package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/reactorctl/reactor/internal/domain/parser"
	domaintool "github.com/reactorctl/reactor/internal/domain/tool"
	"github.com/reactorctl/reactor/internal/infrastructure/llm"
	"github.com/reactorctl/reactor/internal/infrastructure/persistence"
	"github.com/reactorctl/reactor/internal/infrastructure/prompt"
	infratool "github.com/reactorctl/reactor/internal/infrastructure/tool"
	"go.uber.org/zap"
)

// ControllerConfig bounds a single run's guardrails. Zero values disable
// the corresponding guard. The tool cache is not a guard: zero
// ToolCacheTTL/ToolCacheMaxSize fall back to the cache's defaults (30s,
// 100 entries).
type ControllerConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int // sampling cap on the LLM's reply, not the prompt budget
	Retry       llm.RetryConfig

	MaxTokenBudget int64         // CostGuard token ceiling across the whole run; 0 = unlimited
	MaxRunDuration time.Duration // CostGuard wall-clock ceiling; 0 = unlimited

	LoopWindowSize     int // sliding window for exact-match loop detection
	LoopExactThreshold int // consecutive identical calls before reflecting
	LoopNameThreshold  int // same tool name within the window before reflecting

	ToolCacheTTL     time.Duration
	ToolCacheMaxSize int

	// Workspace roots the plain-text final results file spec.md §4.1/§8
	// mandates be written alongside the scratch directory when a run
	// finishes successfully. Empty disables nothing — it just resolves
	// relative to the process's working directory.
	Workspace string
}

// DefaultControllerConfig matches spec §5/§9's recommendations: 2 retries,
// an 8-call loop window, and a modest tool-result cache.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Temperature:        0.2,
		MaxTokens:          2048,
		Retry:              llm.DefaultRetryConfig(),
		LoopWindowSize:     8,
		LoopExactThreshold: 3,
		LoopNameThreshold:  6,
		ToolCacheTTL:       30 * time.Second,
		ToolCacheMaxSize:   100,
	}
}

// Controller is the Agent Controller of spec §4.1: it owns the turn loop,
// deciding when to call the LLM, when to dispatch a tool, when to run the
// completeness gate, and when to stop.
type Controller struct {
	registry   domaintool.Registry
	builder    *prompt.Builder
	dispatcher *infratool.Dispatcher
	llmClient  llm.Client
	hooks      AgentHook
	logger     *zap.Logger
	cfg        ControllerConfig

	toolCache *ToolResultCache
}

// NewController wires the turn loop's collaborators. hooks may be nil, in
// which case a no-op chain is used.
func NewController(
	registry domaintool.Registry,
	builder *prompt.Builder,
	dispatcher *infratool.Dispatcher,
	llmClient llm.Client,
	hooks AgentHook,
	logger *zap.Logger,
	cfg ControllerConfig,
) *Controller {
	if hooks == nil {
		hooks = NoOpHook{}
	}
	return &Controller{
		registry:   registry,
		builder:    builder,
		dispatcher: dispatcher,
		llmClient:  llmClient,
		hooks:      hooks,
		logger:     logger,
		cfg:        cfg,
		toolCache:  NewToolResultCache(cfg.ToolCacheTTL, cfg.ToolCacheMaxSize),
	}
}

// ExecuteGoal runs the Reflect -> Strategize -> Act -> Observe loop to
// completion: goal achieved, turn budget exhausted, or a fatal error.
// Never panics upward — an internal panic is recovered and reported as a
// fatal RunResult, mirroring the teacher's crash-isolation around its own
// run loop.
func (c *Controller) ExecuteGoal(ctx context.Context, goalDescription string, constraints map[string]interface{}, maxTurns int) (result *entity.RunResult) {
	ctx = WithTraceID(ctx, "")
	logger := c.logger.With(zap.String("trace_id", TraceIDFromContext(ctx)))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("controller panic recovered", zap.Any("panic", r), zap.Stack("stack"))
			result = &entity.RunResult{Success: false, Error: fmt.Sprintf("internal error: %v", r)}
		}
		defer func() {
			if r := recover(); r != nil {
				logger.Error("OnComplete hook panic recovered", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		c.hooks.OnComplete(ctx, result)
	}()

	if len(c.registry.List()) == 0 {
		return &entity.RunResult{Success: false, Error: "No tools available"}
	}

	goal, err := entity.NewGoal(goalDescription, constraints)
	if err != nil {
		return &entity.RunResult{Success: false, Error: err.Error()}
	}

	state := entity.NewAgentState(goal, maxTurns)
	if maxTurns <= 0 {
		state.Stop()
		return &entity.RunResult{Success: false, State: state, Error: "max turns"}
	}

	sm := NewStateMachine(maxTurns, logger)
	sm.OnTransition(c.hooks.OnStateChange)
	loopDetector := NewLoopDetector(c.cfg.LoopWindowSize, c.cfg.LoopExactThreshold, c.cfg.LoopNameThreshold, logger)
	var costGuard *CostGuard
	if c.cfg.MaxTokenBudget > 0 || c.cfg.MaxRunDuration > 0 {
		costGuard = NewCostGuard(c.cfg.MaxTokenBudget, c.cfg.MaxRunDuration, logger)
	}

	for state.TurnCount() < maxTurns && !state.IsComplete() {
		if err := ctx.Err(); err != nil {
			_ = sm.Transition(PhaseAborted)
			state.Stop()
			return &entity.RunResult{Success: false, State: state, Error: "run cancelled: " + err.Error()}
		}

		if costGuard != nil {
			if err := costGuard.CheckBudget(); err != nil {
				_ = sm.Transition(PhaseError)
				state.Stop()
				return &entity.RunResult{Success: false, State: state, Error: err.Error()}
			}
		}

		if sm.State() != PhaseThinking {
			if err := sm.Transition(PhaseThinking); err != nil {
				logger.Error("unexpected phase transition failure", zap.Error(err))
			}
		}

		turnNumber := state.TurnCount() + 1
		promptText := c.builder.Build(state)
		req := &llm.Request{Prompt: promptText, Model: c.cfg.Model, Temperature: c.cfg.Temperature, MaxTokens: c.cfg.MaxTokens}
		c.hooks.BeforeLLMCall(ctx, req, turnNumber)

		resp, err := llm.CallWithRetry(ctx, c.llmClient, req, c.cfg.Retry, logger)
		if err != nil {
			c.hooks.OnError(ctx, err, turnNumber)
			sm.RecordError()
			_ = sm.Transition(PhaseError)
			state.Stop()
			return &entity.RunResult{Success: false, State: state, Error: err.Error()}
		}
		c.hooks.AfterLLMCall(ctx, resp, turnNumber)
		sm.SetModel(resp.ModelUsed)
		if resp.TokensUsed > 0 {
			sm.AddTokens(resp.TokensUsed)
			if costGuard != nil {
				if err := costGuard.AddTokens(int64(resp.TokensUsed)); err != nil {
					_ = sm.Transition(PhaseError)
					state.Stop()
					return &entity.RunResult{Success: false, State: state, Error: err.Error()}
				}
			}
		}

		parsed := parser.Parse(resp.Content)

		if parsed.IsFinish {
			if RequiresCompletenessGate(goalDescription) {
				gate := CheckCompleteness(goalDescription, state.Transcript(), parsed.Action.Reason)
				if !gate.Passed {
					state.CommitTurn(entity.TurnRecord{
						Thought:     parsed.Thought,
						Intent:      parsed.Intent,
						Action:      parsed.Action,
						Observation: gate.IssuesMessage(),
						Timestamp:   time.Now(),
					})
					continue
				}
			}

			state.CommitTurn(entity.TurnRecord{
				Thought:     parsed.Thought,
				Intent:      parsed.Intent,
				Action:      parsed.Action,
				Observation: fmt.Sprintf("FINISH: %s", parsed.Action.Reason),
				Timestamp:   time.Now(),
			})
			state.Finish(parsed.Action.Reason)
			if path, err := persistence.WriteFinalResults(c.cfg.Workspace, state, parsed.Action.Reason, c.dispatcher.LastFullStdout()); err != nil {
				logger.Warn("failed to write final results file", zap.Error(err))
			} else {
				logger.Info("final results file written", zap.String("path", path))
			}
			_ = sm.Transition(PhaseComplete)
			break
		}

		if parsed.Action.ToolName == "error" {
			state.CommitTurn(entity.TurnRecord{
				Thought:     parsed.Thought,
				Intent:      parsed.Intent,
				Action:      parsed.Action,
				Observation: fmt.Sprintf("ERROR: %s", parsed.Action.Reason),
				Timestamp:   time.Now(),
			})
			continue
		}

		reflection := c.detectLoop(loopDetector, parsed.Action)

		if err := sm.Transition(PhaseToolExec); err != nil {
			logger.Error("unexpected phase transition failure", zap.Error(err))
		}

		if !c.hooks.BeforeToolCall(ctx, parsed.Action.ToolName, parsed.Action.Parameters) {
			observation := fmt.Sprintf("ERROR (%s): tool call vetoed by policy hook", parsed.Action.ToolName)
			state.CommitTurn(entity.TurnRecord{
				Thought:     parsed.Thought,
				Intent:      parsed.Intent,
				Action:      parsed.Action,
				Observation: appendReflection(observation, reflection),
				Timestamp:   time.Now(),
			})
			continue
		}

		toolResult, observation := c.dispatchWithCache(ctx, parsed.Action)
		sm.RecordToolExec(parsed.Action.ToolName)
		c.hooks.AfterToolCall(ctx, parsed.Action.ToolName, observation, toolResult.Success())

		state.CommitTurn(entity.TurnRecord{
			Thought:     parsed.Thought,
			Intent:      parsed.Intent,
			Action:      parsed.Action,
			Observation: appendReflection(observation, reflection),
			DurationMS:  toolResult.DurationMS,
			Timestamp:   time.Now(),
		})
	}

	if state.IsComplete() {
		return &entity.RunResult{Success: true, State: state, Summary: summarize(state)}
	}

	state.Stop()
	if state.TurnCount() >= maxTurns {
		return &entity.RunResult{Success: false, State: state, Error: "max turns"}
	}
	return &entity.RunResult{Success: false, State: state, Error: "run ended without completion"}
}

// dispatchWithCache consults the tool-result cache before dispatching, so
// an identical repeated call (the LLM retrying the same read, say) doesn't
// re-execute a side-effect-free tool within the cache's TTL.
func (c *Controller) dispatchWithCache(ctx context.Context, action entity.ParsedAction) (entity.ToolResult, string) {
	if cached, success, hit := c.toolCache.Get(action.ToolName, action.Parameters); hit {
		status := "success"
		if !success {
			status = "failure"
		}
		return entity.ToolResult{Status: status}, cached
	}

	result, observation := c.dispatcher.Dispatch(ctx, action)
	c.toolCache.Put(action.ToolName, action.Parameters, observation, result.Success())
	return result, observation
}

// detectLoop feeds the parsed action into the LoopDetector and returns a
// non-empty reflection prompt when a retry loop is suspected. The loop is
// never aborted by this — the reflection is appended to the next
// observation so the model can self-correct.
func (c *Controller) detectLoop(ld *LoopDetector, action entity.ParsedAction) string {
	if c.cfg.LoopExactThreshold > 0 {
		fingerprint, _ := json.Marshal(action.Parameters)
		if msg := ld.Record(action.ToolName, string(fingerprint)); msg != "" {
			return msg
		}
	}
	if c.cfg.LoopNameThreshold <= 0 {
		return ""
	}
	return ld.RecordName(action.ToolName)
}

func appendReflection(observation, reflection string) string {
	if reflection == "" {
		return observation
	}
	return observation + "\n\n" + reflection
}

// summarize produces the RunResult.summary field: a short human-readable
// recap, not the full transcript (which lives on state itself).
func summarize(state *entity.AgentState) string {
	return fmt.Sprintf("completed in %d turn(s): %s", state.TurnCount(), state.CompletionReason())
}
