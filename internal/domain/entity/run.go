package entity

import (
	"sync"
	"time"
)

// ParsedAction is what the LLM Response Parser produces from one model
// response: which tool to call, with which parameters, and (only when
// tool_name == "finish") the model's stated reason for finishing.
type ParsedAction struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
	Reason     string                 `json:"reason,omitempty"`
}

// IsFinish reports whether this action is the sentinel "finish" action,
// which the Controller intercepts rather than dispatching.
func (a ParsedAction) IsFinish() bool {
	return a.ToolName == "finish"
}

// ToolResult is produced per dispatch by the Tool Dispatcher.
type ToolResult struct {
	Status     string               `json:"status"` // "success" | "failure"
	Output     interface{}          `json:"output"`
	Error      string               `json:"error,omitempty"`
	DurationMS int64                `json:"duration_ms"`
	Summary    *ObservationSummary  `json:"summary,omitempty"`
}

// Success reports whether the dispatch succeeded.
func (r ToolResult) Success() bool { return r.Status == "success" }

// ObservationSummary is receipt metadata for an output the Observation
// Funnel spilled to disk because it was too large to inline.
type ObservationSummary struct {
	TotalLines       int    `json:"total_lines"`
	TotalChars       int    `json:"total_chars"`
	TotalMatches     int    `json:"total_matches,omitempty"`
	FilesWithMatches int    `json:"files_with_matches,omitempty"`
	StatusFlag       string `json:"status_flag"`
	FullOutputSavedTo string `json:"full_output_saved_to"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// TurnRecord is the unit of history: one iteration of the Reflect →
// Strategize → Act → Observe loop.
type TurnRecord struct {
	Turn        int          `json:"turn"`
	Thought     string       `json:"thought"`
	Intent      string       `json:"intent,omitempty"`
	Action      ParsedAction `json:"action"`
	Observation string       `json:"observation"`
	DurationMS  int64        `json:"duration_ms"`
	Timestamp   time.Time    `json:"timestamp"`
}

// AgentState is the aggregate root for a single run: a Goal plus its
// append-only transcript. Mutated only through CommitTurn/Finish; thread
// safe so a host can snapshot it for a status endpoint while the run
// proceeds.
type AgentState struct {
	mu sync.RWMutex

	goal             *Goal
	transcript       []TurnRecord
	maxTurns         int
	isComplete       bool
	completionReason string
	startTime        time.Time
	endTime          time.Time
}

// NewAgentState creates a fresh, empty AgentState for a goal run.
func NewAgentState(goal *Goal, maxTurns int) *AgentState {
	return &AgentState{
		goal:      goal,
		transcript: make([]TurnRecord, 0, maxTurns),
		maxTurns:  maxTurns,
		startTime: time.Now(),
	}
}

func (s *AgentState) Goal() *Goal { return s.goal }

// TurnCount returns len(transcript); invariant: always equal to the
// number of committed turns.
func (s *AgentState) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transcript)
}

func (s *AgentState) MaxTurns() int { return s.maxTurns }

// Transcript returns a defensive copy of the committed turn history.
func (s *AgentState) Transcript() []TurnRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TurnRecord, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// IsComplete reports whether the run finished via an accepted finish action.
func (s *AgentState) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isComplete
}

func (s *AgentState) CompletionReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completionReason
}

func (s *AgentState) StartTime() time.Time { return s.startTime }

func (s *AgentState) EndTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endTime
}

// CommitTurn appends a record to the transcript. The only mutator of
// transcript contents besides Finish.
func (s *AgentState) CommitTurn(record TurnRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Turn = len(s.transcript) + 1
	s.transcript = append(s.transcript, record)
}

// Finish marks the run complete with the model's stated reason. Only
// valid once; callers must have already run the completeness gate.
func (s *AgentState) Finish(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isComplete = true
	s.completionReason = reason
	s.endTime = time.Now()
}

// Stop marks the run's end time without marking it complete (turn budget
// exhausted or fatal error paths).
func (s *AgentState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTime.IsZero() {
		s.endTime = time.Now()
	}
}

// ReconstructAgentState rebuilds an AgentState from persisted fields (the
// replay path) rather than a live run.
func ReconstructAgentState(goal *Goal, transcript []TurnRecord, maxTurns int, isComplete bool, completionReason string, startTime, endTime time.Time) *AgentState {
	return &AgentState{
		goal:             goal,
		transcript:       transcript,
		maxTurns:         maxTurns,
		isComplete:       isComplete,
		completionReason: completionReason,
		startTime:        startTime,
		endTime:          endTime,
	}
}

// RunResult is the Controller's public return value.
type RunResult struct {
	Success bool        `json:"success"`
	State   *AgentState `json:"-"`
	Summary string      `json:"summary"`
	Error   string       `json:"error,omitempty"`
}
