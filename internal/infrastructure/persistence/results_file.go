package persistence

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/reactorctl/reactor/internal/infrastructure/workspace"
)

// WriteFinalResults persists the plain-UTF-8 final results file spec.md
// mandates whenever a run finishes successfully: a header, the complete
// untruncated execution trace, an extracted "final outputs" section
// pulled from the last few SUCCESS/stdout observations, and the last
// full command stdout if it's substantial. Returns the written path.
func WriteFinalResults(workspaceRoot string, state *entity.AgentState, completionReason, lastFullStdout string) (string, error) {
	goal := state.Goal().Description()
	hash := md5.Sum([]byte(goal))
	filename := fmt.Sprintf("final_result_%s_%s.txt", hex.EncodeToString(hash[:])[:8], time.Now().Format("20060102_150405"))

	var sb strings.Builder
	sb.WriteString(strings.Repeat("=", 29) + " header " + strings.Repeat("=", 29) + "\n")
	fmt.Fprintf(&sb, "Goal: %s\n", goal)
	fmt.Fprintf(&sb, "Completion Reason: %s\n", completionReason)
	fmt.Fprintf(&sb, "Turns Completed: %d\n", state.TurnCount())
	fmt.Fprintf(&sb, "Execution Time: %s - %s\n\n",
		state.StartTime().Format("2006-01-02 15:04:05"),
		state.EndTime().Format("2006-01-02 15:04:05"))

	sb.WriteString(strings.Repeat("=", 12) + " EXECUTION TRACE " + strings.Repeat("=", 12) + "\n")
	for _, t := range state.Transcript() {
		fmt.Fprintf(&sb, "--- TURN %d ---\n", t.Turn)
		fmt.Fprintf(&sb, "Thought: %s\n", t.Thought)
		fmt.Fprintf(&sb, "Action: %+v\n", t.Action)
		fmt.Fprintf(&sb, "Observation: %s\n\n", t.Observation)
	}

	if outputs := extractFinalOutputs(state.Transcript()); outputs != "" {
		sb.WriteString(strings.Repeat("=", 12) + " FINAL OUTPUTS " + strings.Repeat("=", 12) + "\n\n")
		sb.WriteString(outputs)
	}

	if len(lastFullStdout) >= 100 {
		sb.WriteString("\n" + strings.Repeat("=", 12) + " COMPLETE FINAL OUTPUT " + strings.Repeat("=", 12) + "\n")
		sb.WriteString("# This is the complete, untruncated output from the final command:\n\n")
		sb.WriteString(lastFullStdout)
		sb.WriteString("\n")
	}

	path, err := workspace.Validate(workspaceRoot, filename, workspace.OpWrite)
	if err != nil {
		return "", fmt.Errorf("validate final results path: %w", err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write final results file: %w", err)
	}
	return path, nil
}

var stdoutRe = regexp.MustCompile(`(?s)stdout:\s*(.+)`)

// extractFinalOutputs pulls stdout content out of the last <=3 turns whose
// observation began "SUCCESS" and contained "stdout:" — mirrors the
// teacher's significant-output threshold of >50 chars per match.
func extractFinalOutputs(transcript []entity.TurnRecord) string {
	recent := transcript
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	var sb strings.Builder
	for _, t := range recent {
		if !strings.Contains(t.Observation, "SUCCESS") || !strings.Contains(t.Observation, "stdout:") {
			continue
		}
		m := stdoutRe.FindStringSubmatch(t.Observation)
		if len(m) < 2 {
			continue
		}
		content := strings.TrimSpace(m[1])
		if len(content) <= 50 {
			continue
		}
		fmt.Fprintf(&sb, "From Turn %d (%s):\n%s\n\n", t.Turn, t.Action.ToolName, content)
	}
	return sb.String()
}
