package service

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Guardrail sentinel errors
var (
	ErrTokenBudgetExceeded = fmt.Errorf("token budget exceeded")
	ErrTimeBudgetExceeded  = fmt.Errorf("run time budget exceeded")
)

// CostGuard prevents token/time budget overruns across a run.
// Thread-safe — can be safely read from multiple goroutines.
type CostGuard struct {
	maxTokens     int64
	currentTokens atomic.Int64
	maxDuration   time.Duration
	startTime     time.Time
	logger        *zap.Logger
}

// NewCostGuard creates a cost guard for the current run. maxTokens or
// maxDuration of zero disables that budget.
func NewCostGuard(maxTokens int64, maxDuration time.Duration, logger *zap.Logger) *CostGuard {
	return &CostGuard{
		maxTokens:   maxTokens,
		maxDuration: maxDuration,
		startTime:   time.Now(),
		logger:      logger,
	}
}

// AddTokens accumulates token usage; returns error if budget exceeded.
func (g *CostGuard) AddTokens(n int64) error {
	current := g.currentTokens.Add(n)
	if g.maxTokens > 0 && current > g.maxTokens {
		g.logger.Warn("token budget exceeded",
			zap.Int64("current", current),
			zap.Int64("max", g.maxTokens),
		)
		return ErrTokenBudgetExceeded
	}
	return nil
}

// CheckBudget returns error if the time budget has been exceeded.
func (g *CostGuard) CheckBudget() error {
	if g.maxDuration > 0 && time.Since(g.startTime) > g.maxDuration {
		return ErrTimeBudgetExceeded
	}
	return nil
}

// GetUsage returns current token count and elapsed time.
func (g *CostGuard) GetUsage() (tokens int64, elapsed time.Duration) {
	return g.currentTokens.Load(), time.Since(g.startTime)
}

// LoopDetector detects repeated tool call patterns using two strategies:
//  1. Name-only: the same tool dominates a sliding window, regardless of args
//  2. Exact match: the same tool name + identical args appear consecutively
//
// Neither strategy aborts the run. Both return a reflection prompt that the
// Controller appends to the observation of the turn that triggered it,
// letting the model self-correct rather than having the Controller
// terminate it outright.
type LoopDetector struct {
	recentCalls []string // "name|argsFingerprint" signatures
	windowSize  int
	threshold   int // exact-match threshold within the sliding window

	nameThreshold int
	nameHistory   []string // tool names only, for frequency counting

	logger *zap.Logger
}

// NewLoopDetector creates a loop detector with both name-only and
// exact-match detection. nameThreshold is how many times the same tool name
// may appear in the window before triggering a reflection; windowSize and
// threshold bound the consecutive exact-match check.
func NewLoopDetector(windowSize, threshold, nameThreshold int, logger *zap.Logger) *LoopDetector {
	return &LoopDetector{
		recentCalls:   make([]string, 0, windowSize),
		windowSize:    windowSize,
		threshold:     threshold,
		nameThreshold: nameThreshold,
		logger:        logger,
	}
}

// RecordName tracks tool name frequency in the sliding window (ignoring
// args) and returns a non-empty reflection prompt once the same tool
// appears at least nameThreshold times within the window, even with other
// tools interleaved — catching patterns like shell×7 → grep → shell.
func (d *LoopDetector) RecordName(toolName string) string {
	d.nameHistory = append(d.nameHistory, toolName)
	if len(d.nameHistory) > d.windowSize {
		d.nameHistory = d.nameHistory[1:]
	}

	count := 0
	for _, name := range d.nameHistory {
		if name == toolName {
			count++
		}
	}

	if count >= d.nameThreshold {
		d.logger.Warn("same tool dominates sliding window",
			zap.String("tool", toolName),
			zap.Int("count_in_window", count),
			zap.Int("window_size", len(d.nameHistory)),
			zap.Int("threshold", d.nameThreshold),
		)
		return fmt.Sprintf(
			"[SYSTEM] Warning: tool %q has been called %d times in the last %d calls. "+
				"You are likely stuck in a retry loop. Stop calling tools and instead explain: "+
				"(1) what you were attempting, (2) what is blocking progress, (3) what you "+
				"recommend doing next. Do not call another tool this turn.",
			toolName, count, len(d.nameHistory),
		)
	}
	return ""
}

// Record adds a tool call to the sliding window and returns a non-empty
// reflection prompt if the exact same call (name + args fingerprint)
// appears at least threshold times consecutively.
func (d *LoopDetector) Record(toolName, argsFingerprint string) string {
	sig := toolName
	if argsFingerprint != "" {
		sig = toolName + "|" + argsFingerprint
	}

	d.recentCalls = append(d.recentCalls, sig)
	if len(d.recentCalls) > d.windowSize {
		d.recentCalls = d.recentCalls[1:]
	}

	if len(d.recentCalls) < d.threshold {
		return ""
	}

	tail := d.recentCalls[len(d.recentCalls)-d.threshold:]
	allSame := true
	for _, name := range tail {
		if name != tail[0] {
			allSame = false
			break
		}
	}

	if allSame {
		d.logger.Warn("exact tool call loop detected",
			zap.String("tool", toolName),
			zap.String("signature", sig),
			zap.Int("consecutive_calls", d.threshold),
		)
		return fmt.Sprintf(
			"[SYSTEM] Tool %q was called with identical arguments %d times in a row; "+
				"the result will not change. Stop repeating the call — try a different "+
				"approach or report the result to the user.",
			toolName, d.threshold,
		)
	}
	return ""
}

// Reset clears all tracking state. Call at the start of each run.
func (d *LoopDetector) Reset() {
	d.recentCalls = d.recentCalls[:0]
	d.nameHistory = d.nameHistory[:0]
}
