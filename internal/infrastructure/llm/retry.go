package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls CallWithRetry's backoff schedule.
type RetryConfig struct {
	MaxRetries int           // spec §9 recommends 2
	BaseWait   time.Duration // exponential: BaseWait, 2x, 4x, ...
}

// DefaultRetryConfig matches spec §9's "2 retries, exponential not
// required" recommendation with a modest exponential backoff anyway,
// following the teacher's retry shape.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseWait: 2 * time.Second}
}

// CallWithRetry invokes client.Generate, retrying transient failures per
// cfg with exponential backoff. Returns the classified error on a
// non-retryable failure, and an error wrapping the last failure once the
// retries are exhausted.
func CallWithRetry(ctx context.Context, client Client, req *Request, cfg RetryConfig, logger *zap.Logger) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := cfg.BaseWait * time.Duration(1<<(attempt-1))
			logger.Info("retrying LLM call",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := client.Generate(ctx, req)
		if err == nil {
			if resp == nil || resp.Content == "" {
				lastErr = fmt.Errorf("empty response body")
				continue
			}
			return resp, nil
		}

		lastErr = err
		classified := Classify(err)
		if !classified.IsRetryable() {
			return nil, classified
		}
	}

	return nil, fmt.Errorf("LLM call failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
