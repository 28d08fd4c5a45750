package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

type ollamaProvider struct {
	client *api.Client
	model  string
	dims   int
}

func newOllamaFromEnv() Provider {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		return nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil
	}
	// Default to 60s to tolerate cold model loads; EMBEDDINGS_HTTP_TIMEOUT is a compatibility alias.
	timeout := config.GetDuration("OLLAMA_HTTP_TIMEOUT", config.GetDuration("EMBEDDINGS_HTTP_TIMEOUT", 60*time.Second))
	return NewOllama(u, config.GetString("OLLAMA_EMBEDDINGS_MODEL", "nomic-embed-text"),
		config.GetInt("OLLAMA_EMBEDDINGS_DIMS", 768), &http.Client{Timeout: timeout})
}

// NewOllama builds a provider against an Ollama server.
func NewOllama(host *url.URL, model string, dims int, httpClient *http.Client) Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ollamaProvider{client: api.NewClient(host, httpClient), model: model, dims: dims}
}

func (p *ollamaProvider) Name() string    { return "ollama" }
func (p *ollamaProvider) Dimensions() int { return p.dims }

func (p *ollamaProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{Model: p.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings error: %w", err)
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(inputs))
	}
	return resp.Embeddings, nil
}
