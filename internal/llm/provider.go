// Package llm streams chat completions from the configured language model.
package llm

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 3000
)

// ErrorMessage is shown in place of a completion that failed.
const ErrorMessage = "An error occurred while processing your request. Please try again."

// ErrNotConfigured is returned by NewFromEnv when LLM_PROVIDER is unknown or
// its credentials are missing.
var ErrNotConfigured = errors.New("llm provider not configured")

// Request is one system+user exchange.
type Request struct {
	System string
	Prompt string
	// JSON asks the model for a single JSON object.
	JSON        bool
	Temperature *float64
	MaxTokens   int
}

func (r Request) temperature() float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return DefaultTemperature
}

func (r Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

// Provider streams text increments. The sequence ends after the first
// non-nil error.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Collect drains a stream into one string.
func Collect(ctx context.Context, p Provider, req Request) (string, error) {
	var sb strings.Builder
	for chunk, err := range p.Stream(ctx, req) {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}

// NewFromEnv builds the provider named by LLM_PROVIDER (openai, groq,
// ollama, gemini), wrapped with WithRetry.
func NewFromEnv() (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(config.GetString("LLM_PROVIDER", "openai")) {
	case "openai":
		p, err = newOpenAIFromEnv()
	case "groq":
		p, err = newGroqFromEnv()
	case "ollama":
		p, err = newOllamaFromEnv()
	case "gemini", "google":
		p, err = newGeminiFromEnv()
	default:
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(p, RetryConfigFromEnv()), nil
}

func errSeq(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) { yield("", err) }
}
