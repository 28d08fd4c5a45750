package llm

import (
	"context"
	"iter"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

// RetryConfig bounds the backoff around opening a completion stream.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// RetryConfigFromEnv reads LLM_MAX_RETRIES (default 2), LLM_RETRY_INITIAL
// (default 1s) and LLM_RETRY_MAX_ELAPSED (default 30s).
func RetryConfigFromEnv() RetryConfig {
	return RetryConfig{
		MaxRetries:      uint64(max(0, config.GetInt("LLM_MAX_RETRIES", 2))),
		InitialInterval: config.GetDuration("LLM_RETRY_INITIAL", time.Second),
		MaxElapsed:      config.GetDuration("LLM_RETRY_MAX_ELAPSED", 30*time.Second),
	}
}

type retryingProvider struct {
	base Provider
	cfg  RetryConfig
}

// WithRetry restarts a stream that fails before producing any text. Once an
// increment has been delivered, errors pass through unchanged.
func WithRetry(base Provider, cfg RetryConfig) Provider {
	if base == nil {
		return nil
	}
	return &retryingProvider{base: base, cfg: cfg}
}

func (p *retryingProvider) Name() string { return p.base.Name() }

func (p *retryingProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		emitted := false
		stopped := false
		op := func() error {
			done := metrics.TimeProvider("llm", p.base.Name())
			for chunk, err := range p.base.Stream(ctx, req) {
				if err != nil {
					done(false)
					if emitted || ctx.Err() != nil {
						return backoff.Permanent(err)
					}
					return err
				}
				emitted = true
				if !yield(chunk, nil) {
					stopped = true
					break
				}
			}
			done(true)
			return nil
		}
		eb := backoff.NewExponentialBackOff()
		if p.cfg.InitialInterval > 0 {
			eb.InitialInterval = p.cfg.InitialInterval
		}
		eb.MaxElapsedTime = p.cfg.MaxElapsed
		err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, p.cfg.MaxRetries), ctx))
		if err != nil && !stopped {
			yield("", err)
		}
	}
}
