package embeddings

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

// openAIProvider serves both OpenAI and OpenAI-compatible servers (LocalAI,
// llama.cpp) through the official SDK.
type openAIProvider struct {
	name   string
	client *openai.Client
	model  string
	dims   int
	// requestDims asks text-embedding-3 models for shortened vectors
	requestDims bool
}

func newOpenAIFromEnv() Provider {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil
	}
	model := config.GetString("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small")
	dims := 1536
	if strings.Contains(model, "large") {
		dims = 3072
	}
	requestDims := false
	if d := config.GetInt("OPENAI_EMBEDDINGS_DIMS", 0); d > 0 && strings.HasPrefix(model, "text-embedding-3") {
		dims, requestDims = d, true
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := config.GetString("OPENAI_BASE_URL", ""); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return NewOpenAI("openai", model, dims, requestDims, opts...)
}

func newLocalAIFromEnv() Provider {
	base := config.GetString("LOCALAI_BASE_URL", "http://localhost:8080/v1")
	model := config.GetString("LOCALAI_EMBEDDINGS_MODEL", "text-embedding-ada-002")
	dims := 1536
	if strings.Contains(model, "large") {
		dims = 3072
	}
	dims = config.GetInt("LOCALAI_EMBEDDINGS_DIMS", dims)
	opts := []option.RequestOption{option.WithBaseURL(base), option.WithAPIKey(os.Getenv("LOCALAI_API_KEY"))}
	return NewOpenAI("localai", model, dims, false, opts...)
}

// NewOpenAI builds a provider over the OpenAI embeddings endpoint.
func NewOpenAI(name, model string, dims int, requestDims bool, opts ...option.RequestOption) Provider {
	c := openai.NewClient(opts...)
	return &openAIProvider{name: name, client: &c, model: model, dims: dims, requestDims: requestDims}
}

func (p *openAIProvider) Name() string    { return p.name }
func (p *openAIProvider) Dimensions() int { return p.dims }

func (p *openAIProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.requestDims {
		params.Dimensions = openai.Int(int64(p.dims))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s embeddings error: %w", p.name, err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%s embeddings returned %d vectors for %d inputs", p.name, len(resp.Data), len(inputs))
	}
	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openai.Embedding) int { return int(a.Index - b.Index) })
	res := make([][]float32, 0, len(data))
	for _, d := range data {
		res = append(res, f64to32(d.Embedding))
	}
	return res, nil
}
