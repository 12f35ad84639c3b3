package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	domaintool "github.com/reactorctl/reactor/internal/domain/tool"
	"github.com/reactorctl/reactor/internal/infrastructure/funnel"
	"github.com/reactorctl/reactor/internal/infrastructure/llm"
	"github.com/reactorctl/reactor/internal/infrastructure/prompt"
	infratool "github.com/reactorctl/reactor/internal/infrastructure/tool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedTool is a minimal domaintool.Tool double for controller tests.
type scriptedTool struct {
	name string
	fn   func(args map[string]interface{}) (*domaintool.Result, error)
}

func (t *scriptedTool) Name() string        { return t.name }
func (t *scriptedTool) Version() string     { return "" }
func (t *scriptedTool) Description() string { return "scripted test tool" }
func (t *scriptedTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *scriptedTool) Schema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (t *scriptedTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	return t.fn(args)
}

func okResult(output string) (*domaintool.Result, error) {
	return &domaintool.Result{Success: true, Output: output}, nil
}

func newTestController(t *testing.T, client llm.Client, tools ...*scriptedTool) *Controller {
	t.Helper()
	cfg := DefaultControllerConfig()
	// No retry delay in tests — DefaultControllerConfig's 2s exponential
	// backoff would make a fatal-transport test take several seconds.
	cfg.Retry = llm.RetryConfig{MaxRetries: 0, BaseWait: 0}
	return newTestControllerWithConfig(t, client, cfg, tools...)
}

func newTestControllerWithConfig(t *testing.T, client llm.Client, cfg ControllerConfig, tools ...*scriptedTool) *Controller {
	t.Helper()
	registry := domaintool.NewInMemoryRegistry()
	for _, tl := range tools {
		require.NoError(t, registry.Register(tl))
	}
	if cfg.Workspace == "" {
		cfg.Workspace = t.TempDir()
	}
	logger := zap.NewNop()
	f := funnel.New(t.TempDir(), logger)
	builder := prompt.NewBuilder(registry, nil, prompt.DefaultConfig(), t.TempDir(), logger)
	dispatcher := infratool.NewDispatcher(registry, nil, f, logger)
	return NewController(registry, builder, dispatcher, client, nil, logger, cfg)
}

func TestController_HappyPath(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ScriptedResponse{Content: `Thought: write the file
Action: {"tool_name": "write_file", "parameters": {"path": "hello.txt", "content": "Hi"}}`},
		llm.ScriptedResponse{Content: `Thought: read it back
Action: {"tool_name": "read_file", "parameters": {"path": "hello.txt"}}`},
		llm.ScriptedResponse{Content: `Thought: all done
Action: {"tool_name": "finish", "parameters": {}, "reason": "Created hello.txt and verified its contents"}`},
	)

	writeFile := &scriptedTool{name: "write_file", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("wrote hello.txt")
	}}
	readFile := &scriptedTool{name: "read_file", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("Hi")
	}}

	c := newTestController(t, client, writeFile, readFile)
	result := c.ExecuteGoal(context.Background(), "Create file hello.txt with content Hi and read it back.", nil, 5)

	require.True(t, result.Success)
	require.Equal(t, 3, result.State.TurnCount())
	transcript := result.State.Transcript()
	require.True(t, strings.HasPrefix(transcript[2].Observation, "FINISH:"))
}

func TestController_SuccessfulRunWritesFinalResultsFile(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ScriptedResponse{Content: `Thought: all done
Action: {"tool_name": "finish", "parameters": {}, "reason": "Nothing to do"}`},
	)

	workspace := t.TempDir()
	cfg := DefaultControllerConfig()
	cfg.Retry = llm.RetryConfig{MaxRetries: 0, BaseWait: 0}
	cfg.Workspace = workspace
	noop := &scriptedTool{name: "noop", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("ok")
	}}
	c := newTestControllerWithConfig(t, client, cfg, noop)

	result := c.ExecuteGoal(context.Background(), "do nothing in particular", nil, 5)
	require.True(t, result.Success)

	entries, err := os.ReadDir(workspace)
	require.NoError(t, err)
	var found string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "final_result_") {
			found = e.Name()
		}
	}
	require.NotEmpty(t, found, "expected a final_result_*.txt file in the workspace")

	content, err := os.ReadFile(filepath.Join(workspace, found))
	require.NoError(t, err)
	text := string(content)
	require.Contains(t, text, "header")
	require.Contains(t, text, "Goal: do nothing in particular")
	require.Contains(t, text, "Completion Reason: Nothing to do")
	require.Contains(t, text, "EXECUTION TRACE")
	require.Contains(t, text, "--- TURN 1 ---")
}

func TestController_UnparseableResponseCommitsErrorTurnAndContinues(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ScriptedResponse{Content: "I'm just going to ramble with no Action block at all."},
		llm.ScriptedResponse{Content: `Thought: recovered
Action: {"tool_name": "finish", "parameters": {}, "reason": "done after recovering"}`},
	)

	readFile := &scriptedTool{name: "read_file", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("contents")
	}}
	c := newTestController(t, client, readFile)
	result := c.ExecuteGoal(context.Background(), "say hello", nil, 5)

	require.True(t, result.Success)
	transcript := result.State.Transcript()
	require.Equal(t, 2, len(transcript))
	require.Equal(t, "ERROR: could not parse an Action block from the model response", transcript[0].Observation)
	require.True(t, strings.HasPrefix(transcript[1].Observation, "FINISH:"))
}

func TestController_MaxTurnsZero(t *testing.T) {
	client := llm.NewScriptedClient()
	noop := &scriptedTool{name: "noop", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("ok")
	}}
	c := newTestController(t, client, noop)
	result := c.ExecuteGoal(context.Background(), "do nothing", nil, 0)

	require.False(t, result.Success)
	require.Equal(t, "max turns", result.Error)
}

func TestController_NoToolsRegistered(t *testing.T) {
	client := llm.NewScriptedClient()
	c := newTestController(t, client)
	// no tools registered at all
	result := c.ExecuteGoal(context.Background(), "search log for ERROR", nil, 5)
	require.False(t, result.Success)
	require.Equal(t, "No tools available", result.Error)
}

func TestController_MaxTurnsExhausted(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ScriptedResponse{Content: `Thought: still working
Action: {"tool_name": "read_file", "parameters": {"path": "x"}}`},
		llm.ScriptedResponse{Content: `Thought: still working
Action: {"tool_name": "read_file", "parameters": {"path": "x"}}`},
	)
	readFile := &scriptedTool{name: "read_file", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("contents")
	}}
	c := newTestController(t, client, readFile)
	result := c.ExecuteGoal(context.Background(), "poke at the file", nil, 2)

	require.False(t, result.Success)
	require.Equal(t, "max turns", result.Error)
	require.Equal(t, 2, result.State.TurnCount())
}

func TestController_CompletenessGateRejectsThenAccepts(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ScriptedResponse{Content: `Thought: peek at the log
Action: {"tool_name": "read_file", "parameters": {"path": "app.log"}}`},
		llm.ScriptedResponse{Content: `Thought: good enough
Action: {"tool_name": "finish", "parameters": {}, "reason": "done"}`},
		llm.ScriptedResponse{Content: `Thought: grep for errors
Action: {"tool_name": "shell", "parameters": {"command": "grep -n ERROR app.log > results.txt"}}`},
		llm.ScriptedResponse{Content: `Thought: map to source
Action: {"tool_name": "shell", "parameters": {"command": "grep -n def app.py"}}`},
		llm.ScriptedResponse{Content: `Thought: now finish for real
Action: {"tool_name": "finish", "parameters": {}, "reason": "Found ERROR entries in app.log at lines 12 and 47, correlated to app.py handler functions"}`},
	)

	readFile := &scriptedTool{name: "read_file", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("log contents")
	}}
	shell := &scriptedTool{name: "shell", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("ok")
	}}

	c := newTestController(t, client, readFile, shell)
	result := c.ExecuteGoal(context.Background(), "search log for ERROR and map to source code.", nil, 10)

	require.True(t, result.Success)
	transcript := result.State.Transcript()
	require.Len(t, transcript, 5)
	require.Contains(t, transcript[1].Observation, "INCOMPLETE GOAL")
	require.True(t, strings.HasPrefix(transcript[4].Observation, "FINISH:"))
}

func TestController_LLMTransportFailureIsFatal(t *testing.T) {
	client := llm.NewScriptedClient() // exhausted on first call
	readFile := &scriptedTool{name: "read_file", fn: func(args map[string]interface{}) (*domaintool.Result, error) {
		return okResult("contents")
	}}
	c := newTestController(t, client, readFile)
	result := c.ExecuteGoal(context.Background(), "read a file", nil, 3)

	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}
