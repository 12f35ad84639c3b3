package application

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/reactorctl/reactor/internal/infrastructure/config"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Log:       config.LogConfig{Level: "info", Format: "console", OutputPath: "stdout"},
		Workspace: config.WorkspaceConfig{Root: dir, ScratchDir: filepath.Join(dir, "scratch")},
		Runtime: config.RuntimeConfig{
			MaxTurns: 5, MaxRetries: 0, ToolCacheSize: 100,
		},
		Guardrails: config.GuardrailsConfig{LoopWindowSize: 8, LoopExactThreshold: 3, LoopNameThreshold: 6},
		Database:   config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(dir, "replay.db")},
	}
}

func TestApp_WiresBuiltinTools(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	tools := app.ListTools()
	require.NotEmpty(t, tools)

	names := make(map[string]bool, len(tools))
	for _, def := range tools {
		names[def.Name] = true
	}
	require.True(t, names["shell"])
	require.True(t, names["read_file"])
}

func TestApp_RunGoalWithoutLLMConfiguredFailsCleanly(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	result := app.RunGoal(context.Background(), "read a file", nil, 3)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}

func TestApp_RunGoalAsyncDeliversResult(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	var mu sync.Mutex
	var got *entity.RunResult
	done := make(chan struct{})

	app.RunGoalAsync(context.Background(), "read a file", nil, 3, func(result *entity.RunResult) {
		mu.Lock()
		got = result
		mu.Unlock()
		close(done)
	})

	<-done
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	require.False(t, got.Success)
}

func TestApp_PersistsRunForReplay(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	ctx := context.Background()
	result := app.RunGoal(ctx, "read a file", nil, 3)
	require.NotNil(t, result.State)

	loaded, err := app.ReplayRun(ctx, result.State.Goal().ID())
	require.NoError(t, err)
	require.Equal(t, "read a file", loaded.State.Goal().Description())

	ids, err := app.ListRuns(ctx)
	require.NoError(t, err)
	require.Contains(t, ids, result.State.Goal().ID())
}
