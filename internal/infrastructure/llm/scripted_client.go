package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient is a deterministic Client test double: it replays a
// fixed sequence of responses regardless of the prompt it's given,
// driving the §8 end-to-end scenarios without a network dependency.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	calls     int
}

// ScriptedResponse is one canned turn: either a Content to return, or an
// Err to return instead.
type ScriptedResponse struct {
	Content string
	Err     error
}

// NewScriptedClient creates a client that replays responses in order,
// one per call. A call past the end of the script returns an error.
func NewScriptedClient(responses ...ScriptedResponse) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// Generate implements Client.
func (c *ScriptedClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.calls >= len(c.responses) {
		return nil, fmt.Errorf("scripted client exhausted after %d calls", c.calls)
	}
	next := c.responses[c.calls]
	c.calls++

	if next.Err != nil {
		return nil, next.Err
	}
	return &Response{Content: next.Content, ModelUsed: req.Model}, nil
}

// Calls returns how many times Generate has been invoked.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
