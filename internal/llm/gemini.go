package llm

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

type geminiProvider struct {
	client *genai.Client
	model  string
}

func newGeminiFromEnv() (Provider, error) {
	key := config.GetString("GOOGLE_API_KEY", config.GetString("GEMINI_API_KEY", ""))
	if key == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY is required", ErrNotConfigured)
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiProvider{client: client, model: config.GetString("LLM_MODEL", "gemini-2.0-flash")}, nil
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		cfg := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(req.temperature())),
			MaxOutputTokens: int32(req.maxTokens()),
		}
		if req.System != "" {
			cfg.SystemInstruction = genai.Text(req.System)[0]
		}
		if req.JSON {
			cfg.ResponseMIMEType = "application/json"
		}
		for result, err := range p.client.Models.GenerateContentStream(ctx, p.model, genai.Text(req.Prompt), cfg) {
			if err != nil {
				yield("", fmt.Errorf("gemini generate failed: %w", err))
				return
			}
			if text := result.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}
