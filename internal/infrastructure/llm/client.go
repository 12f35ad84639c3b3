// Package llm implements the LLM transport: a vendor-agnostic synchronous
// text-in/text-out client the Agent Controller calls once per turn. The
// wire format of any particular vendor is out of scope; Client only
// promises a prompt in, a completion out.
package llm

import "context"

// Request is one turn's LLM call: the fully assembled prompt string from
// the Prompt Builder, plus the sampling knobs the Controller's config
// exposes.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response is the model's reply. TokensUsed is best-effort; transports
// that don't report usage leave it zero.
type Response struct {
	Content    string
	ModelUsed  string
	TokensUsed int
}

// Client is the synchronous oracle the Controller depends on: a prompt
// in, a completion out. No streaming — the Controller parses a complete
// response per turn.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}
