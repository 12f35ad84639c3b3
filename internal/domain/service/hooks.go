package service

import (
	"context"

	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/reactorctl/reactor/internal/infrastructure/llm"
)

// AgentHook defines lifecycle hooks for extending the Controller's turn
// loop. All methods are optional — embed NoOpHook to only implement what
// you need. Hooks execute synchronously; keep them fast, they run inline
// with the turn loop.
type AgentHook interface {
	// BeforeLLMCall is called before each turn's LLM request.
	BeforeLLMCall(ctx context.Context, req *llm.Request, turn int)

	// AfterLLMCall is called after each successful LLM response.
	AfterLLMCall(ctx context.Context, resp *llm.Response, turn int)

	// BeforeToolCall is called before each tool dispatch. Return false to
	// veto the call (e.g. an external permission check).
	BeforeToolCall(ctx context.Context, toolName string, args map[string]interface{}) bool

	// AfterToolCall is called after each tool dispatch completes.
	AfterToolCall(ctx context.Context, toolName string, output string, success bool)

	// OnError is called when the turn loop hits an unrecoverable error.
	OnError(ctx context.Context, err error, turn int)

	// OnComplete is called once when the run finishes, success or not.
	OnComplete(ctx context.Context, result *entity.RunResult)

	// OnStateChange is called on each run-phase transition.
	OnStateChange(from, to RunPhase, snap StateSnapshot)
}

// NoOpHook provides a default no-op implementation of all hooks. Embed
// this in a custom hook to only override the methods you care about.
type NoOpHook struct{}

func (NoOpHook) BeforeLLMCall(_ context.Context, _ *llm.Request, _ int)  {}
func (NoOpHook) AfterLLMCall(_ context.Context, _ *llm.Response, _ int)  {}
func (NoOpHook) BeforeToolCall(_ context.Context, _ string, _ map[string]interface{}) bool {
	return true
}
func (NoOpHook) AfterToolCall(_ context.Context, _ string, _ string, _ bool) {}
func (NoOpHook) OnError(_ context.Context, _ error, _ int)                   {}
func (NoOpHook) OnComplete(_ context.Context, _ *entity.RunResult)           {}
func (NoOpHook) OnStateChange(_, _ RunPhase, _ StateSnapshot)                {}

// HookChain aggregates multiple hooks — all hooks are called in order.
type HookChain struct {
	hooks []AgentHook
}

// NewHookChain creates a hook chain from the given hooks.
func NewHookChain(hooks ...AgentHook) *HookChain {
	return &HookChain{hooks: hooks}
}

// Add appends a hook to the chain.
func (c *HookChain) Add(h AgentHook) {
	c.hooks = append(c.hooks, h)
}

func (c *HookChain) BeforeLLMCall(ctx context.Context, req *llm.Request, turn int) {
	for _, h := range c.hooks {
		h.BeforeLLMCall(ctx, req, turn)
	}
}

func (c *HookChain) AfterLLMCall(ctx context.Context, resp *llm.Response, turn int) {
	for _, h := range c.hooks {
		h.AfterLLMCall(ctx, resp, turn)
	}
}

func (c *HookChain) BeforeToolCall(ctx context.Context, toolName string, args map[string]interface{}) bool {
	for _, h := range c.hooks {
		if !h.BeforeToolCall(ctx, toolName, args) {
			return false // any hook can veto a tool call
		}
	}
	return true
}

func (c *HookChain) AfterToolCall(ctx context.Context, toolName string, output string, success bool) {
	for _, h := range c.hooks {
		h.AfterToolCall(ctx, toolName, output, success)
	}
}

func (c *HookChain) OnError(ctx context.Context, err error, turn int) {
	for _, h := range c.hooks {
		h.OnError(ctx, err, turn)
	}
}

func (c *HookChain) OnComplete(ctx context.Context, result *entity.RunResult) {
	for _, h := range c.hooks {
		h.OnComplete(ctx, result)
	}
}

func (c *HookChain) OnStateChange(from, to RunPhase, snap StateSnapshot) {
	for _, h := range c.hooks {
		h.OnStateChange(from, to, snap)
	}
}

// Compile-time check: HookChain implements AgentHook.
var _ AgentHook = (*HookChain)(nil)

// --- Built-in hooks ---

// LoggingHook is a base for logging hooks: it embeds NoOpHook and
// overrides none of its methods, so on its own it logs nothing and holds
// no logger. Nothing in this module installs it on the Controller.
type LoggingHook struct {
	NoOpHook
}

// MetricsHook tracks simple in-memory counters for a run. Not thread-safe
// by itself — the Controller's turn loop is single-goroutine, so no
// locking is needed here.
type MetricsHook struct {
	NoOpHook
	LLMCallCount  int
	ToolCallCount int
	ErrorCount    int
}

func (h *MetricsHook) AfterLLMCall(_ context.Context, _ *llm.Response, _ int)      { h.LLMCallCount++ }
func (h *MetricsHook) AfterToolCall(_ context.Context, _ string, _ string, _ bool) { h.ToolCallCount++ }
func (h *MetricsHook) OnError(_ context.Context, _ error, _ int)                   { h.ErrorCount++ }
