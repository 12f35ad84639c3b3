package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ReplayStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "replay.db")
	store, err := NewReplayStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestReplayStore_SaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	goal, err := entity.NewGoal("read a file", map[string]interface{}{"max_depth": float64(2)})
	require.NoError(t, err)

	state := entity.NewAgentState(goal, 5)
	state.CommitTurn(entity.TurnRecord{
		Thought:     "read it",
		Action:      entity.ParsedAction{ToolName: "read_file", Parameters: map[string]interface{}{"path": "a.txt"}},
		Observation: "contents of a.txt",
		Timestamp:   time.Now(),
	})
	state.Finish("done reading a.txt")

	result := &entity.RunResult{Success: true, State: state, Summary: "completed in 1 turn(s): done reading a.txt"}
	require.NoError(t, store.SaveRun(ctx, result))

	loaded, err := store.LoadRun(ctx, goal.ID())
	require.NoError(t, err)

	require.True(t, loaded.Success)
	require.Equal(t, goal.ID(), loaded.State.Goal().ID())
	require.Equal(t, "read a file", loaded.State.Goal().Description())
	require.True(t, loaded.State.IsComplete())
	require.Equal(t, "done reading a.txt", loaded.State.CompletionReason())
	require.Len(t, loaded.State.Transcript(), 1)
	require.Equal(t, "read_file", loaded.State.Transcript()[0].Action.ToolName)
}

func TestReplayStore_LoadMissingRun(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadRun(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestReplayStore_ListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, desc := range []string{"first goal", "second goal"} {
		goal, err := entity.NewGoal(desc, nil)
		require.NoError(t, err)
		state := entity.NewAgentState(goal, 1)
		state.Finish("ok")
		require.NoError(t, store.SaveRun(ctx, &entity.RunResult{Success: true, State: state}))
	}

	ids, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
}
