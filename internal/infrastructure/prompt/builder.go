// Package prompt implements the Prompt Builder & Context Truncator: the
// turn-aware prompt assembler that renders an AgentState into the single
// string sent to the LLM, keeping it under a token budget via progressive
// truncation and, failing that, dropping the oldest turns.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	reactctx "github.com/reactorctl/reactor/internal/domain/context"
	"github.com/reactorctl/reactor/internal/domain/entity"
	"github.com/reactorctl/reactor/internal/domain/tool"
	"go.uber.org/zap"
)

// canonicalIntents is the advisory intent vocabulary surfaced to the model;
// dispatch always resolves by tool_name, never by intent.
var canonicalIntents = []string{
	"lint_code", "format_code", "run_tests", "install_dependencies",
	"parse_structured_data", "check_for_secrets", "search_codebase",
	"read_file", "write_file", "list_files", "provision_tool",
	"check_tool_availability", "ask_user", "confirm_with_user",
}

const reactInstructions = `You are operating an autonomous ReAct loop: Reflect on the goal and the
steps so far, Strategize your next move, Act by calling exactly one tool,
then Observe its result before reflecting again.

Respond in this exact shape:

Thought: <your reasoning about the current state and what to do next>
Intent: <one of the canonical intents below, or omit if none fits>
Action: {"tool_name": "<tool>", "parameters": {...}, "reason": "<optional>"}

Call the "finish" tool only when the goal is fully and verifiably
satisfied; a premature finish will be rejected and you will be asked to
continue. Issue exactly one Action per turn.`

// Config bounds the Builder's token budget.
type Config struct {
	MaxTokensPerTurn int // hard ceiling; truncation escalates until under this
	WarningThreshold int // soft threshold; crossing it only logs a warning
	ModelName        string
}

// DefaultConfig returns the spec's suggested budget (hard ceiling within
// the 8000-12000 range, soft warning around 6000).
func DefaultConfig() Config {
	return Config{MaxTokensPerTurn: 10000, WarningThreshold: 6000}
}

// Builder assembles prompts from an AgentState.
type Builder struct {
	registry  tool.Registry
	tokenizer reactctx.Tokenizer
	cfg       Config
	workspace string
	logger    *zap.Logger

	// summarizerHook is set only via EnableSummarization; nil means the
	// plain drop-oldest-turn escalation with no digest.
	summarizerHook *summarizerHook
}

// NewBuilder creates a Builder. A nil tokenizer falls back to the
// char-count estimator (chars/4 rounded down, plus one; CJK-aware) used when no model-specific
// tokenizer is wired.
func NewBuilder(registry tool.Registry, tokenizer reactctx.Tokenizer, cfg Config, workspace string, logger *zap.Logger) *Builder {
	if tokenizer == nil {
		tokenizer = reactctx.NewSimpleTokenizer()
	}
	return &Builder{registry: registry, tokenizer: tokenizer, cfg: cfg, workspace: workspace, logger: logger}
}

// Build renders state into the next prompt, applying progressive
// truncation and, if necessary, dropping the oldest turns to fit the
// token budget. It never fails: an empty transcript and a degenerate
// budget both still produce a valid (if minimal) prompt.
func (b *Builder) Build(state *entity.AgentState) string {
	skeleton := b.skeleton(state)
	transcript := state.Transcript()

	for dropped := 0; ; dropped++ {
		history := transcript[dropped:]
		digest := b.summarizeDropped(context.Background(), transcript[:dropped])

		for level, cfg := range aggressionLevels {
			historyText := digest + b.formatHistory(history, cfg)
			prompt := b.assemble(skeleton, historyText, state, len(transcript)+1)
			tokens := b.tokenizer.Count(prompt)

			if tokens <= b.cfg.MaxTokensPerTurn {
				if tokens > b.cfg.WarningThreshold {
					b.logger.Warn("prompt over soft token threshold",
						zap.Int("tokens", tokens),
						zap.Int("aggression_level", level),
						zap.Int("turns_dropped", dropped))
				}
				return prompt
			}
		}

		if len(history) == 0 {
			// Nothing left to drop; return the most aggressive rendering
			// even though it still exceeds the ceiling.
			historyText := digest + b.formatHistory(history, aggressionLevels[len(aggressionLevels)-1])
			return b.assemble(skeleton, historyText, state, len(transcript)+1)
		}

		b.logger.Warn("prompt still over budget at maximum aggression, dropping oldest turn",
			zap.Int("turn", history[0].Turn))
	}
}

// skeleton renders the parts of the prompt that do not depend on the
// truncation level: system role, available tools, goal, security
// boundaries.
func (b *Builder) skeleton(state *entity.AgentState) string {
	var b1 strings.Builder
	b1.WriteString(reactInstructions)
	b1.WriteString("\n\nCanonical intents: ")
	b1.WriteString(strings.Join(canonicalIntents, ", "))
	b1.WriteString("\n\n")
	b1.WriteString(BuildRuntimeBlock(RuntimeBlockOptions{ModelName: b.cfg.ModelName, Workspace: b.workspace}))
	b1.WriteString("\n\n")
	b1.WriteString(b.toolsSection())
	b1.WriteString("\n\nGOAL:\n")
	b1.WriteString(state.Goal().Description())
	b1.WriteString("\n\nHARD SECURITY BOUNDARIES:\n")
	b1.WriteString("- All file and shell operations are confined to the workspace root; any path that resolves outside it is rejected.\n")
	b1.WriteString("- Tool calls run under a sandbox with a per-call timeout; a call that exceeds it is abandoned and reported as a failure.\n")
	b1.WriteString("- The \"finish\" tool is intercepted by the controller and checked for completeness before the run ends.")
	return b1.String()
}

func (b *Builder) toolsSection() string {
	defs := b.registry.List()
	var s strings.Builder
	s.WriteString("Available tools:")
	for _, def := range defs {
		s.WriteString(fmt.Sprintf("\n- %s: %s", def.Name, def.Description))
	}
	return s.String()
}

// assemble concatenates the skeleton, the optional PREVIOUS STEPS section,
// and the current turn header.
func (b *Builder) assemble(skeleton, historyText string, state *entity.AgentState, turn int) string {
	var s strings.Builder
	s.WriteString(skeleton)
	if historyText != "" {
		s.WriteString("\n\nPREVIOUS STEPS:\n")
		s.WriteString(historyText)
	}
	s.WriteString(fmt.Sprintf("\n\nTURN %d:", turn))
	return s.String()
}

// formatHistory renders every turn record as 4 labeled lines plus a blank
// separator, truncating each turn's observation at the given aggression
// level.
func (b *Builder) formatHistory(history []entity.TurnRecord, cfg aggressionConfig) string {
	if len(history) == 0 {
		return ""
	}
	var s strings.Builder
	for _, t := range history {
		s.WriteString(formatTurn(t, cfg))
	}
	return strings.TrimRight(s.String(), "\n") + "\n"
}

func formatTurn(t entity.TurnRecord, cfg aggressionConfig) string {
	actionJSON, _ := json.Marshal(t.Action)
	obs := truncateObservation(t.Observation, cfg)

	var s strings.Builder
	s.WriteString(fmt.Sprintf("Turn %d:\n", t.Turn))
	s.WriteString(fmt.Sprintf("Thought: %s\n", t.Thought))
	if t.Intent != "" {
		s.WriteString(fmt.Sprintf("Intent: %s\n", t.Intent))
	}
	s.WriteString(fmt.Sprintf("Action: %s\n", string(actionJSON)))
	s.WriteString(fmt.Sprintf("Observation: %s\n\n", obs))
	return s.String()
}
