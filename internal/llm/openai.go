package llm

import (
	"context"
	"fmt"
	"iter"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/openai/openai-go/v2/shared/constant"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// openAIProvider talks to OpenAI and OpenAI-compatible APIs (Groq).
type openAIProvider struct {
	name   string
	client *openai.Client
	model  string
}

func newOpenAIFromEnv() (Provider, error) {
	key := config.GetString("OPENAI_API_KEY", "")
	if key == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is required", ErrNotConfigured)
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if base := config.GetString("OPENAI_BASE_URL", ""); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return NewOpenAI("openai", config.GetString("LLM_MODEL", "gpt-4o"), opts...), nil
}

func newGroqFromEnv() (Provider, error) {
	key := config.GetString("GROQ_API_KEY", "")
	if key == "" {
		return nil, fmt.Errorf("%w: GROQ_API_KEY is required", ErrNotConfigured)
	}
	return NewOpenAI("groq", config.GetString("LLM_MODEL", "llama-3.3-70b-versatile"),
		option.WithAPIKey(key), option.WithBaseURL(config.GetString("GROQ_BASE_URL", groqBaseURL))), nil
}

// NewOpenAI builds a streaming chat provider over the OpenAI SDK.
func NewOpenAI(name, model string, opts ...option.RequestOption) Provider {
	c := openai.NewClient(opts...)
	return &openAIProvider{name: name, client: &c, model: model}
}

func (p *openAIProvider) Name() string { return p.name }

func (p *openAIProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
		if req.System != "" {
			messages = append(messages, openai.SystemMessage(req.System))
		}
		messages = append(messages, openai.UserMessage(req.Prompt))
		params := openai.ChatCompletionNewParams{
			Model:               shared.ChatModel(p.model),
			Messages:            messages,
			Temperature:         openai.Float(req.temperature()),
			MaxCompletionTokens: openai.Int(int64(req.maxTokens())),
		}
		if req.JSON {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: constant.JSONObject("").Default()},
			}
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("%s chat completion failed: %w", p.name, err))
		}
	}
}
