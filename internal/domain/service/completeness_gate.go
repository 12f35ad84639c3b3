package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/reactorctl/reactor/internal/domain/entity"
)

// analysisGoalRe matches the keyword trigger spec §4.1 names: the
// completeness gate only runs for goals that read as an analysis task.
var analysisGoalRe = regexp.MustCompile(`(?i)search|find|analyze|correlate|map|identify|extract|discover`)

var superficialReasons = []string{"done", "complete", "finished", "found errors", "searched files"}

// RequiresCompletenessGate reports whether goalDescription matches the
// analysis-flavored keyword trigger. The gate's false positives on
// non-analysis goals containing "find" are accepted noise per spec §9.
func RequiresCompletenessGate(goalDescription string) bool {
	return analysisGoalRe.MatchString(goalDescription)
}

// GateResult is the completeness gate's verdict on a proposed finish.
type GateResult struct {
	Passed bool
	Issues []string
}

// CheckCompleteness runs the seven heuristic checks from spec §4.1 against
// the goal description, the transcript accumulated so far, and the
// model's stated finish reason. Callers should only invoke this when
// RequiresCompletenessGate(goalDescription) is true.
func CheckCompleteness(goalDescription string, transcript []entity.TurnRecord, reason string) GateResult {
	goal := strings.ToLower(goalDescription)
	shellCmds := shellCommands(transcript)

	var issues []string

	if strings.Contains(goal, "find") && !anyContains(shellCmds, "find") {
		issues = append(issues, "Discovery missing: goal mentions \"find\" but no shell command has used find.")
	}

	if strings.Contains(goal, "error") && strings.Contains(goal, "log") && !anyContains(shellCmds, "grep") {
		issues = append(issues, "Extraction missing: goal mentions an error/log search but no shell command has used grep.")
	}

	if anyContains(shellCmds, "grep") && !anyGrepHasFlag(shellCmds, "-n", "-H") {
		issues = append(issues, "Extraction under-specified: grep was used without -n or -H, so matches can't be traced back to a line or file.")
	}

	mentionsCorrelation := strings.Contains(goal, "correlate") || strings.Contains(goal, "map") ||
		(strings.Contains(goal, "source") && strings.Contains(goal, "code"))
	if mentionsCorrelation && !anyTargetsPython(shellCmds) {
		issues = append(issues, "Correlation missing: goal asks to correlate/map to source but no shell command targeted a .py source file.")
	}

	if len(shellCmds) > 3 && !anyToolUsed(transcript, "write_file", "read_file") {
		issues = append(issues, "No intermediate artifacts: several shell actions ran but nothing was written or read back to capture findings.")
	}

	if countMatching(shellCmds, "grep", "find") >= 2 && !anyContains(shellCmds, ">") {
		issues = append(issues, "Unredirected large outputs: multiple grep/find actions ran without redirecting output for later reference.")
	}

	lowerReason := strings.ToLower(reason)
	for _, phrase := range superficialReasons {
		if strings.Contains(lowerReason, phrase) && len(reason) < 50 {
			issues = append(issues, fmt.Sprintf("Superficial completion reason: %q does not explain what was actually found or verified.", reason))
			break
		}
	}

	return GateResult{Passed: len(issues) == 0, Issues: issues}
}

// IssuesMessage formats a GateResult's issues into the observation text
// committed for a rejected finish, per spec §4.1's "INCOMPLETE GOAL" turn.
func (g GateResult) IssuesMessage() string {
	var b strings.Builder
	b.WriteString("INCOMPLETE GOAL: the finish action was rejected by the completeness gate.\n")
	b.WriteString("Issues:\n")
	for _, issue := range g.Issues {
		b.WriteString("- ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	b.WriteString("Address these before calling finish again.")
	return b.String()
}

func shellCommands(transcript []entity.TurnRecord) []string {
	var cmds []string
	for _, t := range transcript {
		if t.Action.ToolName != "shell" {
			continue
		}
		if cmd, ok := t.Action.Parameters["command"].(string); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

func anyContains(cmds []string, substr string) bool {
	for _, c := range cmds {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func anyGrepHasFlag(cmds []string, flags ...string) bool {
	for _, c := range cmds {
		if !strings.Contains(c, "grep") {
			continue
		}
		for _, f := range flags {
			if strings.Contains(c, f) {
				return true
			}
		}
	}
	return false
}

func anyTargetsPython(cmds []string) bool {
	for _, c := range cmds {
		if strings.Contains(c, ".py") {
			return true
		}
	}
	return false
}

func anyToolUsed(transcript []entity.TurnRecord, names ...string) bool {
	for _, t := range transcript {
		for _, n := range names {
			if t.Action.ToolName == n {
				return true
			}
		}
	}
	return false
}

func countMatching(cmds []string, substrs ...string) int {
	count := 0
	for _, c := range cmds {
		for _, s := range substrs {
			if strings.Contains(c, s) {
				count++
				break
			}
		}
	}
	return count
}
