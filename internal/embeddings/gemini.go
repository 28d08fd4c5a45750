package embeddings

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

// genaiProvider covers both the Gemini API and Vertex AI backends.
type genaiProvider struct {
	name   string
	client *genai.Client
	model  string
	dims   int
}

func newGeminiFromEnv() Provider {
	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		return nil
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil
	}
	return &genaiProvider{
		name:   "gemini",
		client: client,
		model:  config.GetString("GEMINI_EMBEDDINGS_MODEL", "text-embedding-004"),
		dims:   config.GetInt("GEMINI_EMBEDDINGS_DIMS", 768),
	}
}

func (p *genaiProvider) Name() string    { return p.name }
func (p *genaiProvider) Dimensions() int { return p.dims }

func (p *genaiProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	contents := make([]*genai.Content, 0, len(inputs))
	for _, in := range inputs {
		contents = append(contents, genai.NewContentFromText(in, genai.RoleUser))
	}
	dims := int32(p.dims)
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{OutputDimensionality: &dims})
	if err != nil {
		return nil, fmt.Errorf("%s embeddings error: %w", p.name, err)
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", p.name, len(resp.Embeddings), len(inputs))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
