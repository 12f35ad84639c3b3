package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClientConfig configures HTTPClient. The wire shape is an
// OpenAI-style chat completion request/response body — the one vendor
// protocol common enough to stand in for "some HTTP LLM endpoint"
// without this transport taking on any single vendor's SDK.
type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient is a minimal net/http + encoding/json transport. It speaks
// one request/response shape; swapping vendors means swapping BaseURL,
// not this code — the vendor wire format is deliberately out of this
// module's design scope.
type HTTPClient struct {
	cfg    HTTPClientConfig
	http   *http.Client
	breaker *CircuitBreaker
}

// NewHTTPClient creates an HTTPClient with a 3-minute default timeout
// and a circuit breaker that opens after 5 consecutive failures.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker(5, 30*time.Second),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate implements Client.
func (c *HTTPClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !c.breaker.Allow() {
		return nil, &TransportError{Kind: ErrKindTransient, Message: "circuit breaker open, provider recently failing"}
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("empty response body")
	}

	c.breaker.RecordSuccess()
	return &Response{
		Content:    parsed.Choices[0].Message.Content,
		ModelUsed:  parsed.Model,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}
