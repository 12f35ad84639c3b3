package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/reactorctl/reactor/internal/domain/entity"
	domaintool "github.com/reactorctl/reactor/internal/domain/tool"
	"github.com/reactorctl/reactor/internal/infrastructure/funnel"
	"go.uber.org/zap"
)

// DefaultTimeout is the per-call budget spec §5 names for an ordinary
// tool call; installer-style tools may need up to 2x this.
const DefaultTimeout = 60 * time.Second

// longRunningTools get a longer timeout budget — installer/setup-style
// commands that legitimately take longer than an ordinary shell call.
var longRunningTools = map[string]time.Duration{
	"shell": 120 * time.Second,
}

// Dispatcher is the Tool Dispatcher: resolves a descriptor, validates and
// coerces parameters, executes the tool, and funnels oversized output.
// Total by construction — every path returns an entity.ToolResult plus an
// observation string; it never returns a Go error to its caller (the
// Agent Controller), matching spec §7's "the loop survives anything it
// can express as an observation."
type Dispatcher struct {
	registry domaintool.Registry
	policy   *domaintool.Policy
	funnel   *funnel.Funnel
	logger   *zap.Logger

	mu              sync.RWMutex
	lastFullStdout  string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry domaintool.Registry, policy *domaintool.Policy, f *funnel.Funnel, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, policy: policy, funnel: f, logger: logger}
}

// LastFullStdout returns the raw (unfunneled, unformatted) stdout of the
// most recent successful tool call — spec.md's "cached raw stdout of the
// final command" the final results file's COMPLETE FINAL OUTPUT section
// draws from.
func (d *Dispatcher) LastFullStdout() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastFullStdout
}

// Dispatch resolves toolName (bare or "name:version"), validates params,
// executes, and returns the committed ToolResult plus the observation
// string the Controller appends to the transcript. toolName == "finish"
// is rejected defensively — the Controller must intercept it before ever
// reaching the Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, action entity.ParsedAction) (entity.ToolResult, string) {
	start := time.Now()

	if action.ToolName == "finish" {
		return d.failure(start, "the \"finish\" action must be intercepted by the controller, not dispatched")
	}

	if d.policy != nil && !d.policy.IsAllowed(action.ToolName) {
		return d.failure(start, fmt.Sprintf("tool %q is not allowed by the current policy", action.ToolName))
	}

	def, ok := d.registry.Descriptor(action.ToolName)
	if !ok {
		return d.failure(start, fmt.Sprintf("tool not found: %s", action.ToolName))
	}
	t, ok := d.registry.Get(action.ToolName)
	if !ok {
		return d.failure(start, fmt.Sprintf("tool not found: %s", action.ToolName))
	}

	params := coerceAndDefault(def.Parameters, action.Parameters)
	if err := def.Validate(params); err != nil {
		return d.failure(start, fmt.Sprintf("Missing required fields or invalid parameters: %v", err))
	}

	timeout := DefaultTimeout
	if override, ok := longRunningTools[action.ToolName]; ok {
		timeout = override
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := t.Execute(execCtx, params)
	duration := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		d.logger.Warn("tool call timed out", zap.String("tool", action.ToolName), zap.Duration("timeout", timeout))
		return entity.ToolResult{
			Status:     "failure",
			Error:      "Execution timed out",
			DurationMS: duration.Milliseconds(),
		}, fmt.Sprintf("ERROR (%s): Execution timed out after %v", action.ToolName, timeout)
	}
	if err != nil {
		d.logger.Warn("tool call returned an error", zap.String("tool", action.ToolName), zap.Error(err))
		return entity.ToolResult{
			Status:     "failure",
			Error:      err.Error(),
			DurationMS: duration.Milliseconds(),
		}, d.formatFailure(action.ToolName, err.Error())
	}
	if res == nil {
		return d.failure(start, "tool returned no result")
	}
	if !res.Success {
		return entity.ToolResult{
			Status:     "failure",
			Error:      res.Error,
			DurationMS: duration.Milliseconds(),
		}, d.formatFailure(action.ToolName, res.Error)
	}

	result := entity.ToolResult{
		Status:     "success",
		Output:     res.Output,
		DurationMS: duration.Milliseconds(),
	}

	d.mu.Lock()
	d.lastFullStdout = res.Output
	d.mu.Unlock()

	if !funnel.Engaged(res.Output) {
		return result, fmt.Sprintf("SUCCESS (%s, %dms):\nstdout:\n%s", action.ToolName, duration.Milliseconds(), res.Output)
	}

	observation, summary, ferr := d.funnel.Process(action.ToolName, res.Output)
	if ferr != nil {
		d.logger.Warn("observation funnel failed, falling back to raw output", zap.Error(ferr))
		return result, fmt.Sprintf("SUCCESS (%s, %dms):\nstdout:\n%s", action.ToolName, duration.Milliseconds(), res.Output)
	}
	result.Summary = summary
	return result, observation
}

func (d *Dispatcher) failure(start time.Time, msg string) (entity.ToolResult, string) {
	return entity.ToolResult{
		Status:     "failure",
		Error:      msg,
		DurationMS: time.Since(start).Milliseconds(),
	}, fmt.Sprintf("ERROR: %s", msg)
}

// formatFailure applies the hint rules spec §4.4 names: a bare error is
// fine, but a few common shapes get a one-line hint appended to steer the
// model's next attempt.
func (d *Dispatcher) formatFailure(toolName, errMsg string) string {
	msg := fmt.Sprintf("ERROR (%s): %s", toolName, errMsg)
	lower := strings.ToLower(errMsg)
	switch {
	case strings.Contains(lower, "missing required"):
		msg += "\nHint: check the tool's input_schema for required parameters."
	case strings.Contains(lower, "truncated"):
		msg += "\nHint: the output was too large; request a narrower range or pattern."
	}
	return msg
}
