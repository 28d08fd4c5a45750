package embeddings

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Provider defines a simple embeddings provider interface.
// Implementations should be concurrency-safe.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "ollama").
	Name() string
	// Dimensions returns the embedding dimensionality this provider produces.
	Dimensions() int
	// Embed returns one embedding per input string.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ErrNotConfigured is returned when a query needs embeddings but
// EMBEDDINGS_PROVIDER is unset or its credentials are missing.
var ErrNotConfigured = errors.New("embeddings provider not configured")

// NewFromEnv constructs a provider based on environment variables.
// EMBEDDINGS_PROVIDER: "openai", "ollama", "gemini", "vertexai", "localai", or empty for disabled.
// The result is wrapped with WithRetry using EMBEDDINGS_MAX_RETRIES.
func NewFromEnv() Provider {
	var p Provider
	switch strings.ToLower(strings.TrimSpace(os.Getenv("EMBEDDINGS_PROVIDER"))) {
	case "openai":
		p = newOpenAIFromEnv()
	case "ollama":
		p = newOllamaFromEnv()
	case "gemini", "google-gemini", "google_genai", "google":
		p = newGeminiFromEnv()
	case "vertex", "vertexai", "google-vertex":
		p = newVertexFromEnv()
	case "localai", "llamacpp", "llama.cpp":
		p = newLocalAIFromEnv()
	}
	if p == nil {
		return nil
	}
	return WithRetry(p, RetryConfigFromEnv())
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	if p == nil {
		return nil, ErrNotConfigured
	}
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, errors.New("embeddings provider returned no vector")
	}
	return vecs[0], nil
}

func f64to32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = float32(v[i])
	}
	return out
}
