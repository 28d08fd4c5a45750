package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

var errStopped = errors.New("consumer stopped")

type ollamaProvider struct {
	client *api.Client
	model  string
}

func newOllamaFromEnv() (Provider, error) {
	model := config.GetString("LLM_MODEL", "llama3.2")
	host := config.GetString("OLLAMA_HOST", "")
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client from environment: %w", err)
		}
		return &ollamaProvider{client: client, model: model}, nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST: %w", err)
	}
	return NewOllama(u, model, nil), nil
}

// NewOllama builds a streaming chat provider against an Ollama server.
func NewOllama(host *url.URL, model string, httpClient *http.Client) Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ollamaProvider{client: api.NewClient(host, httpClient), model: model}
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		messages := make([]api.Message, 0, 2)
		if req.System != "" {
			messages = append(messages, api.Message{Role: "system", Content: req.System})
		}
		messages = append(messages, api.Message{Role: "user", Content: req.Prompt})
		chatReq := &api.ChatRequest{
			Model:    p.model,
			Messages: messages,
			Options: map[string]any{
				"temperature": req.temperature(),
				"num_predict": req.maxTokens(),
			},
		}
		if req.JSON {
			chatReq.Format = json.RawMessage(`"json"`)
		}
		err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			if !yield(resp.Message.Content, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield("", fmt.Errorf("ollama chat failed: %w", err))
		}
	}
}
