package prompt

import (
	"context"
	"fmt"

	reactctx "github.com/reactorctl/reactor/internal/domain/context"
	"github.com/reactorctl/reactor/internal/domain/entity"
)

// summarizerHook is an optional, default-off hook set through
// EnableSummarization: when set on a Builder,
// dropped turns (the ones escalation removes from history to fit the
// token budget) are folded into a single summary line instead of being
// discarded outright. Off by default because the base algorithm in
// spec.md already has a well-defined behavior without it; this is a
// supplemental improvement, not a required path.
type summarizerHook struct {
	summarizer reactctx.Summarizer
}

// EnableSummarization wires summarizer into b; every subsequent Build call
// that drops turns will first ask summarizer for a one-line digest of the
// dropped history and prepend it to PREVIOUS STEPS.
func (b *Builder) EnableSummarization(summarizer reactctx.Summarizer) {
	b.summarizerHook = &summarizerHook{summarizer: summarizer}
}

// summarizeDropped renders dropped turns as context.Message and asks the
// wired summarizer for a digest. Errors or a nil hook both mean "no
// summary" — the caller proceeds with plain truncation either way.
func (b *Builder) summarizeDropped(ctx context.Context, dropped []entity.TurnRecord) string {
	if b.summarizerHook == nil || len(dropped) == 0 {
		return ""
	}

	msgs := make([]reactctx.Message, 0, len(dropped))
	for _, t := range dropped {
		msgs = append(msgs, reactctx.Message{
			Role:    "assistant",
			Content: fmt.Sprintf("Turn %d: %s -> %s", t.Turn, t.Thought, t.Observation),
		})
	}

	summary, err := b.summarizerHook.summarizer.Summarize(ctx, msgs)
	if err != nil || summary == "" {
		return ""
	}
	return fmt.Sprintf("[summary of %d earlier turns]\n%s\n\n", len(dropped), summary)
}
