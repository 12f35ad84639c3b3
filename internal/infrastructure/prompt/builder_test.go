package prompt

import (
	"testing"

	reactctx "github.com/reactorctl/reactor/internal/domain/context"
	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/reactorctl/reactor/internal/domain/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBuilder(t *testing.T, cfg Config) *Builder {
	t.Helper()
	reg := tool.NewInMemoryRegistry()
	return NewBuilder(reg, reactctx.NewSimpleTokenizer(), cfg, "/workspace", zap.NewNop())
}

func newTestState(t *testing.T) *entity.AgentState {
	t.Helper()
	goal, err := entity.NewGoal("find all TODO comments in the codebase", nil)
	require.NoError(t, err)
	return entity.NewAgentState(goal, 30)
}

func TestBuildEmptyTranscriptHasTurnOneNoPreviousSteps(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	state := newTestState(t)

	p := b.Build(state)
	assert.Contains(t, p, "TURN 1:")
	assert.NotContains(t, p, "PREVIOUS STEPS:")
}

func TestBuildIncludesPreviousSteps(t *testing.T) {
	b := newTestBuilder(t, DefaultConfig())
	state := newTestState(t)
	state.CommitTurn(entity.TurnRecord{
		Thought:     "I should list files first",
		Intent:      "list_files",
		Action:      entity.ParsedAction{ToolName: "list_dir", Parameters: map[string]interface{}{"path": "."}},
		Observation: "a.txt\nb.txt",
	})

	p := b.Build(state)
	assert.Contains(t, p, "PREVIOUS STEPS:")
	assert.Contains(t, p, "Turn 1:")
	assert.Contains(t, p, "TURN 2:")
}

func TestBuildEscalatesAggressionAndDropsOldestTurnsUnderBudget(t *testing.T) {
	cfg := Config{MaxTokensPerTurn: 400, WarningThreshold: 200}
	b := newTestBuilder(t, cfg)
	state := newTestState(t)

	bigObs := ""
	for i := 0; i < 500; i++ {
		bigObs += "a line of reasonably long observation text goes here\n"
	}
	for i := 0; i < 30; i++ {
		state.CommitTurn(entity.TurnRecord{
			Thought:     "thinking",
			Action:      entity.ParsedAction{ToolName: "shell", Parameters: map[string]interface{}{"command": "ls"}},
			Observation: bigObs,
		})
	}

	p := b.Build(state)
	// Escalation must terminate (no infinite loop) and still produce a
	// prompt addressed at the next turn.
	assert.Contains(t, p, "TURN 31:")
}
