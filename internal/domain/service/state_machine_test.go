package service

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// === StateMachine creation ===

func TestNewStateMachine(t *testing.T) {
	sm := NewStateMachine(10, testLogger())
	if sm.State() != PhaseIdle {
		t.Errorf("expected initial phase Idle, got %s", sm.State())
	}
	if sm.IsTerminal() {
		t.Error("new state machine should not be terminal")
	}
	snap := sm.Snapshot()
	if snap.MaxTurns != 10 {
		t.Errorf("expected MaxTurns=10, got %d", snap.MaxTurns)
	}
}

// === Valid transitions ===

func TestTransition_ValidPaths(t *testing.T) {
	tests := []struct {
		name string
		path []RunPhase
	}{
		{
			name: "idle -> thinking -> complete",
			path: []RunPhase{PhaseThinking, PhaseComplete},
		},
		{
			name: "idle -> thinking -> tool_exec -> thinking -> complete",
			path: []RunPhase{PhaseThinking, PhaseToolExec, PhaseThinking, PhaseComplete},
		},
		{
			name: "idle -> thinking -> retrying -> thinking -> complete",
			path: []RunPhase{PhaseThinking, PhaseRetrying, PhaseThinking, PhaseComplete},
		},
		{
			name: "idle -> thinking -> error",
			path: []RunPhase{PhaseThinking, PhaseError},
		},
		{
			name: "idle -> thinking -> aborted",
			path: []RunPhase{PhaseThinking, PhaseAborted},
		},
		{
			name: "idle -> thinking -> tool_exec -> aborted",
			path: []RunPhase{PhaseThinking, PhaseToolExec, PhaseAborted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine(25, testLogger())
			for _, phase := range tt.path {
				if err := sm.Transition(phase); err != nil {
					t.Fatalf("failed transition to %s: %v", phase, err)
				}
			}
			last := tt.path[len(tt.path)-1]
			if sm.State() != last {
				t.Errorf("expected phase %s, got %s", last, sm.State())
			}
		})
	}
}

// === Invalid transitions ===

func TestTransition_InvalidPaths(t *testing.T) {
	tests := []struct {
		name string
		from RunPhase
		to   RunPhase
	}{
		{"idle -> complete", PhaseIdle, PhaseComplete},
		{"idle -> tool_exec", PhaseIdle, PhaseToolExec},
		{"idle -> error", PhaseIdle, PhaseError},
		{"complete -> idle (terminal)", PhaseComplete, PhaseIdle},
		{"error -> idle (terminal)", PhaseError, PhaseIdle},
		{"aborted -> thinking (terminal)", PhaseAborted, PhaseThinking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine(10, testLogger())
			// Navigate to the 'from' phase
			switch tt.from {
			case PhaseThinking:
				_ = sm.Transition(PhaseThinking)
			case PhaseToolExec:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseToolExec)
			case PhaseComplete:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseComplete)
			case PhaseError:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseError)
			case PhaseAborted:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseAborted)
			}

			err := sm.Transition(tt.to)
			if err == nil {
				t.Errorf("expected error for %s -> %s, got nil", tt.from, tt.to)
			}
		})
	}
}

// === Terminal states ===

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		phase    RunPhase
		terminal bool
	}{
		{PhaseIdle, false},
		{PhaseThinking, false},
		{PhaseToolExec, false},
		{PhaseRetrying, false},
		{PhaseComplete, true},
		{PhaseError, true},
		{PhaseAborted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			sm := NewStateMachine(10, testLogger())
			switch tt.phase {
			case PhaseThinking:
				_ = sm.Transition(PhaseThinking)
			case PhaseToolExec:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseToolExec)
			case PhaseRetrying:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseRetrying)
			case PhaseComplete:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseComplete)
			case PhaseError:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseError)
			case PhaseAborted:
				_ = sm.Transition(PhaseThinking)
				_ = sm.Transition(PhaseAborted)
			}

			if sm.IsTerminal() != tt.terminal {
				t.Errorf("IsTerminal() for %s: got %v, want %v", tt.phase, sm.IsTerminal(), tt.terminal)
			}
		})
	}
}

// === Mutation helpers ===

func TestMutationHelpers(t *testing.T) {
	sm := NewStateMachine(10, testLogger())

	sm.SetTurn(5)
	sm.AddTokens(1000)
	sm.AddTokens(500)
	sm.RecordToolExec("shell")
	sm.RecordToolExec("read_file")
	sm.RecordRetry()
	sm.RecordError()
	sm.SetModel("gpt-4o")

	snap := sm.Snapshot()
	if snap.Turn != 5 {
		t.Errorf("Turn: got %d, want 5", snap.Turn)
	}
	if snap.TokensUsed != 1500 {
		t.Errorf("TokensUsed: got %d, want 1500", snap.TokensUsed)
	}
	if snap.ToolsExecuted != 2 {
		t.Errorf("ToolsExecuted: got %d, want 2", snap.ToolsExecuted)
	}
	if snap.LastTool != "read_file" {
		t.Errorf("LastTool: got %s, want read_file", snap.LastTool)
	}
	if snap.RetryCount != 1 {
		t.Errorf("RetryCount: got %d, want 1", snap.RetryCount)
	}
	if snap.ErrorCount != 1 {
		t.Errorf("ErrorCount: got %d, want 1", snap.ErrorCount)
	}
	if snap.ModelUsed != "gpt-4o" {
		t.Errorf("ModelUsed: got %s, want gpt-4o", snap.ModelUsed)
	}
	if snap.Elapsed <= 0 {
		t.Error("Elapsed should be positive")
	}
}

// === OnTransition listener ===

func TestOnTransitionListener(t *testing.T) {
	sm := NewStateMachine(10, testLogger())

	var transitions []struct{ from, to RunPhase }
	sm.OnTransition(func(from, to RunPhase, snap StateSnapshot) {
		transitions = append(transitions, struct{ from, to RunPhase }{from, to})
	})

	_ = sm.Transition(PhaseThinking)
	_ = sm.Transition(PhaseToolExec)
	_ = sm.Transition(PhaseThinking)
	_ = sm.Transition(PhaseComplete)

	if len(transitions) != 4 {
		t.Fatalf("expected 4 transitions, got %d", len(transitions))
	}
	expected := []struct{ from, to RunPhase }{
		{PhaseIdle, PhaseThinking},
		{PhaseThinking, PhaseToolExec},
		{PhaseToolExec, PhaseThinking},
		{PhaseThinking, PhaseComplete},
	}
	for i, exp := range expected {
		if transitions[i].from != exp.from || transitions[i].to != exp.to {
			t.Errorf("transition[%d]: got %s->%s, want %s->%s",
				i, transitions[i].from, transitions[i].to, exp.from, exp.to)
		}
	}
}

// === Thread safety ===

func TestStateMachine_ConcurrentAccess(t *testing.T) {
	sm := NewStateMachine(100, testLogger())
	_ = sm.Transition(PhaseThinking)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sm.State()
			_ = sm.Snapshot()
			_ = sm.IsTerminal()
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sm.AddTokens(100)
			sm.SetTurn(n)
			sm.RecordToolExec("test_tool")
		}(i)
	}
	wg.Wait()

	snap := sm.Snapshot()
	if snap.TokensUsed != 2000 {
		t.Errorf("concurrent TokensUsed: got %d, want 2000", snap.TokensUsed)
	}
	if snap.ToolsExecuted != 20 {
		t.Errorf("concurrent ToolsExecuted: got %d, want 20", snap.ToolsExecuted)
	}
}

// === Snapshot isolation ===

func TestSnapshot_Isolation(t *testing.T) {
	sm := NewStateMachine(10, testLogger())
	sm.SetTurn(3)
	sm.AddTokens(500)

	snap1 := sm.Snapshot()

	sm.SetTurn(8)
	sm.AddTokens(1000)

	snap2 := sm.Snapshot()

	if snap1.Turn != 3 || snap1.TokensUsed != 500 {
		t.Error("snap1 was mutated after capture")
	}
	if snap2.Turn != 8 || snap2.TokensUsed != 1500 {
		t.Errorf("snap2 wrong: turn=%d tokens=%d", snap2.Turn, snap2.TokensUsed)
	}
}

// === Elapsed increases ===

func TestSnapshot_ElapsedIncreases(t *testing.T) {
	sm := NewStateMachine(10, testLogger())
	snap1 := sm.Snapshot()
	time.Sleep(5 * time.Millisecond)
	snap2 := sm.Snapshot()
	if snap2.Elapsed <= snap1.Elapsed {
		t.Errorf("elapsed should increase: %v <= %v", snap2.Elapsed, snap1.Elapsed)
	}
}
