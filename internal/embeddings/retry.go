package embeddings

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

// RetryConfig bounds the exponential backoff around provider calls.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// RetryConfigFromEnv reads EMBEDDINGS_MAX_RETRIES (default 3),
// EMBEDDINGS_RETRY_INITIAL (default 500ms) and EMBEDDINGS_RETRY_MAX_ELAPSED (default 30s).
func RetryConfigFromEnv() RetryConfig {
	return RetryConfig{
		MaxRetries:      uint64(max(0, config.GetInt("EMBEDDINGS_MAX_RETRIES", 3))),
		InitialInterval: config.GetDuration("EMBEDDINGS_RETRY_INITIAL", 500*time.Millisecond),
		MaxElapsed:      config.GetDuration("EMBEDDINGS_RETRY_MAX_ELAPSED", 30*time.Second),
	}
}

type retryingProvider struct {
	base Provider
	cfg  RetryConfig
}

// WithRetry retries failed Embed calls with exponential backoff. Context
// cancellation stops retrying immediately.
func WithRetry(base Provider, cfg RetryConfig) Provider {
	if base == nil {
		return nil
	}
	return &retryingProvider{base: base, cfg: cfg}
}

func (p *retryingProvider) Name() string    { return p.base.Name() }
func (p *retryingProvider) Dimensions() int { return p.base.Dimensions() }

func (p *retryingProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	var out [][]float32
	op := func() error {
		done := metrics.TimeProvider("embeddings", p.base.Name())
		vecs, err := p.base.Embed(ctx, inputs)
		done(err == nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = vecs
		return nil
	}
	if err := backoff.Retry(op, newBackOff(ctx, p.cfg)); err != nil {
		return nil, err
	}
	return out, nil
}

func newBackOff(ctx context.Context, cfg RetryConfig) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		eb.InitialInterval = cfg.InitialInterval
	}
	eb.MaxElapsedTime = cfg.MaxElapsed
	return backoff.WithContext(backoff.WithMaxRetries(eb, cfg.MaxRetries), ctx)
}
