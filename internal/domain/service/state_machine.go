package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunPhase represents the discrete phases of a single agent run.
// Named RunPhase rather than AgentState to avoid colliding with
// entity.AgentState, the aggregate root holding the run's transcript.
type RunPhase string

const (
	PhaseIdle      RunPhase = "idle"      // not yet started
	PhaseThinking  RunPhase = "thinking"  // LLM call in flight for the current turn
	PhaseToolExec  RunPhase = "tool_exec" // dispatching the parsed action
	PhaseRetrying  RunPhase = "retrying"  // backing off between LLM retry attempts
	PhaseComplete  RunPhase = "complete"  // finished successfully
	PhaseError     RunPhase = "error"     // terminated with an unrecoverable error
	PhaseAborted   RunPhase = "aborted"   // cancelled by the caller's context
)

// validTransitions defines the allowed phase transitions.
var validTransitions = map[RunPhase]map[RunPhase]bool{
	PhaseIdle: {
		PhaseThinking: true,
	},
	PhaseThinking: {
		PhaseToolExec: true,
		PhaseRetrying: true,
		PhaseComplete: true,
		PhaseError:    true,
		PhaseAborted:  true,
	},
	PhaseToolExec: {
		PhaseThinking: true, // next LLM call after observing the tool result
		PhaseError:    true,
		PhaseAborted:  true,
	},
	PhaseRetrying: {
		PhaseThinking: true,
		PhaseError:    true,
		PhaseAborted:  true,
	},
	// Terminal states — no transitions out.
	PhaseComplete: {},
	PhaseError:    {},
	PhaseAborted:  {},
}

// StateSnapshot captures the run's runtime state at a point in time.
type StateSnapshot struct {
	Phase         RunPhase      `json:"phase"`
	Turn          int           `json:"turn"`
	MaxTurns      int           `json:"max_turns"` // 0 = unlimited
	TokensUsed    int           `json:"tokens_used"`
	ToolsExecuted int           `json:"tools_executed"`
	RetryCount    int           `json:"retry_count"`
	ErrorCount    int           `json:"error_count"`
	Elapsed       time.Duration `json:"elapsed"`
	ModelUsed     string        `json:"model_used,omitempty"`
	LastTool      string        `json:"last_tool,omitempty"`
}

// StateMachine tracks the run-phase of a single agent run.
// Thread-safe — multiple goroutines can read state concurrently.
type StateMachine struct {
	mu            sync.RWMutex
	phase         RunPhase
	turn          int
	maxTurns      int
	tokensUsed    int
	toolsExecuted int
	retryCount    int
	errorCount    int
	startTime     time.Time
	modelUsed     string
	lastTool      string
	logger        *zap.Logger

	listeners []func(from, to RunPhase, snap StateSnapshot)
}

// NewStateMachine creates a state machine starting in PhaseIdle.
func NewStateMachine(maxTurns int, logger *zap.Logger) *StateMachine {
	return &StateMachine{
		phase:     PhaseIdle,
		maxTurns:  maxTurns,
		startTime: time.Now(),
		logger:    logger,
	}
}

// State returns the current phase (thread-safe).
func (sm *StateMachine) State() RunPhase {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.phase
}

// Snapshot returns a full copy of the current runtime state.
func (sm *StateMachine) Snapshot() StateSnapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.snapshotLocked()
}

func (sm *StateMachine) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		Phase:         sm.phase,
		Turn:          sm.turn,
		MaxTurns:      sm.maxTurns,
		TokensUsed:    sm.tokensUsed,
		ToolsExecuted: sm.toolsExecuted,
		RetryCount:    sm.retryCount,
		ErrorCount:    sm.errorCount,
		Elapsed:       time.Since(sm.startTime),
		ModelUsed:     sm.modelUsed,
		LastTool:      sm.lastTool,
	}
}

// Transition attempts to move to a new phase. Returns error if the
// transition is not allowed.
func (sm *StateMachine) Transition(to RunPhase) error {
	sm.mu.Lock()
	from := sm.phase

	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		sm.mu.Unlock()
		err := fmt.Errorf("invalid run phase transition: %s -> %s", from, to)
		sm.logger.Error("state machine violation", zap.Error(err))
		return err
	}

	sm.phase = to
	snap := sm.snapshotLocked()
	listeners := make([]func(from, to RunPhase, snap StateSnapshot), len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	sm.logger.Debug("run phase transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("turn", snap.Turn),
	)

	for _, fn := range listeners {
		fn(from, to, snap)
	}

	return nil
}

// OnTransition registers a listener called on every phase change.
func (sm *StateMachine) OnTransition(fn func(from, to RunPhase, snap StateSnapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// --- Mutation helpers (all thread-safe) ---

// SetTurn updates the current turn counter.
func (sm *StateMachine) SetTurn(turn int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.turn = turn
}

// AddTokens increments the token counter.
func (sm *StateMachine) AddTokens(n int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tokensUsed += n
}

// RecordToolExec records a tool execution.
func (sm *StateMachine) RecordToolExec(toolName string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.toolsExecuted++
	sm.lastTool = toolName
}

// RecordRetry increments the retry counter.
func (sm *StateMachine) RecordRetry() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.retryCount++
}

// RecordError increments the error counter.
func (sm *StateMachine) RecordError() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.errorCount++
}

// SetModel sets the model identifier in use for the run.
func (sm *StateMachine) SetModel(model string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.modelUsed = model
}

// IsTerminal returns true if the state machine is in a terminal phase.
func (sm *StateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	switch sm.phase {
	case PhaseComplete, PhaseError, PhaseAborted:
		return true
	}
	return false
}
