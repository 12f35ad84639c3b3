package context

import (
	"context"
	"strings"
	"testing"
)

func TestSimpleSummarizer(t *testing.T) {
	summarizer := NewSimpleSummarizer()
	ctx := context.Background()

	t.Run("Empty messages", func(t *testing.T) {
		summary, err := summarizer.Summarize(ctx, []Message{})
		if err != nil {
			t.Fatalf("Summarize failed: %v", err)
		}
		if summary != "" {
			t.Errorf("Expected empty summary, got %s", summary)
		}
	})

	t.Run("Messages with keywords", func(t *testing.T) {
		messages := []Message{
			{Role: "user", Content: "Please fix the error in the code"},
			{Role: "assistant", Content: "I have done the fix"},
			{Role: "user", Content: "Great, now modify the config"},
		}

		summary, err := summarizer.Summarize(ctx, messages)
		if err != nil {
			t.Fatalf("Summarize failed: %v", err)
		}

		if summary == "" {
			t.Error("Summary should not be empty")
		}

		// Should contain keyword matches
		if !strings.Contains(summary, "error") && !strings.Contains(summary, "done") {
			t.Error("Summary should contain extracted keywords")
		}
	})

	t.Run("Messages without keywords", func(t *testing.T) {
		messages := []Message{
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hi there"},
		}

		summary, err := summarizer.Summarize(ctx, messages)
		if err != nil {
			t.Fatalf("Summarize failed: %v", err)
		}

		// Should return count-based summary
		if !strings.Contains(summary, "2") {
			t.Errorf("Expected count in summary, got %s", summary)
		}
	})
}
