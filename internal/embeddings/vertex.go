package embeddings

import (
	"context"

	"google.golang.org/genai"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

// newVertexFromEnv uses application default credentials for the project in
// VERTEX_PROJECT (or GOOGLE_CLOUD_PROJECT).
func newVertexFromEnv() Provider {
	project := config.GetString("VERTEX_PROJECT", config.GetString("GOOGLE_CLOUD_PROJECT", ""))
	if project == "" {
		return nil
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		Project:  project,
		Location: config.GetString("VERTEX_LOCATION", "us-central1"),
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil
	}
	return &genaiProvider{
		name:   "vertexai",
		client: client,
		model:  config.GetString("VERTEX_EMBEDDINGS_MODEL", "text-embedding-005"),
		dims:   config.GetInt("VERTEX_EMBEDDINGS_DIMS", 768),
	}
}
