package context

import (
	"context"
	"fmt"
	"strings"
)

// Summarizer generates a compact summary of a message history.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}

// ModelClient is the minimal LLM call surface a Summarizer needs.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMSummarizer asks a model to compress a message history into a summary.
type LLMSummarizer struct {
	client          ModelClient
	maxInputTokens  int
	maxOutputTokens int
	summaryPrompt   string
}

// SummarizerConfig configures an LLMSummarizer.
type SummarizerConfig struct {
	MaxInputTokens  int
	MaxOutputTokens int
	CustomPrompt    string
}

// DefaultSummarizerConfig returns the default input/output token budget.
func DefaultSummarizerConfig() *SummarizerConfig {
	return &SummarizerConfig{
		MaxInputTokens:  8000,
		MaxOutputTokens: 500,
		CustomPrompt:    "",
	}
}

// NewLLMSummarizer creates an LLMSummarizer.
func NewLLMSummarizer(client ModelClient, config *SummarizerConfig) *LLMSummarizer {
	if config == nil {
		config = DefaultSummarizerConfig()
	}

	prompt := config.CustomPrompt
	if prompt == "" {
		prompt = defaultSummaryPrompt
	}

	return &LLMSummarizer{
		client:          client,
		maxInputTokens:  config.MaxInputTokens,
		maxOutputTokens: config.MaxOutputTokens,
		summaryPrompt:   prompt,
	}
}

const defaultSummaryPrompt = `Compress the following history into a concise summary, preserving:
1. The user's core goal
2. Important actions and decisions already taken
3. Key file or configuration changes
4. Unresolved issues or open items

Keep it under 300 words, as a bullet list.

History:
%s

Summary:`

// Summarize formats messages within the input token budget and asks the
// model for a summary.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var sb strings.Builder
	tokenizer := NewSimpleTokenizer()
	totalTokens := 0

	for _, msg := range messages {
		line := fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content)
		lineTokens := tokenizer.Count(line)

		if totalTokens+lineTokens > s.maxInputTokens {
			sb.WriteString("... (earlier messages omitted)\n")
			break
		}

		sb.WriteString(line)
		totalTokens += lineTokens
	}

	prompt := fmt.Sprintf(s.summaryPrompt, sb.String())

	summary, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	return summary, nil
}

// SimpleSummarizer extracts keyword-matching lines without calling a
// model — used by tests and as a no-LLM fallback.
type SimpleSummarizer struct{}

// NewSimpleSummarizer creates a SimpleSummarizer.
func NewSimpleSummarizer() *SimpleSummarizer {
	return &SimpleSummarizer{}
}

// Summarize extracts messages mentioning error/completion/creation/
// modification keywords, capped at the 10 most recent matches.
func (s *SimpleSummarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var points []string

	for _, msg := range messages {
		content := strings.ToLower(msg.Content)
		if strings.Contains(content, "error") ||
			strings.Contains(content, "done") ||
			strings.Contains(content, "created") ||
			strings.Contains(content, "modified") {
			summary := msg.Content
			if len(summary) > 100 {
				summary = summary[:100] + "..."
			}
			points = append(points, fmt.Sprintf("- [%s] %s", msg.Role, summary))
		}
	}

	if len(points) == 0 {
		return fmt.Sprintf("%d history messages total", len(messages)), nil
	}

	if len(points) > 10 {
		points = points[len(points)-10:]
	}

	return strings.Join(points, "\n"), nil
}
