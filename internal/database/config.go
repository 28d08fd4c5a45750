package database

import (
	"os"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

// Config holds the database configuration
type Config struct {
	URL              string
	AuthToken        string
	ProjectsDir      string
	MultiProjectMode bool
	EmbeddingDims    int
	// EmbeddingsAdaptMode is passed to embeddings.WrapToDims when the
	// provider's dims differ from the schema ("pad_or_truncate" by default).
	EmbeddingsAdaptMode string

	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdleSec int
	ConnMaxLifeSec int
}

// NewConfig creates a new Config from environment variables
func NewConfig() *Config {
	url := os.Getenv("LIBSQL_URL")
	if url == "" {
		url = "file:./libsql.db"
	}

	return &Config{
		URL:                 url,
		AuthToken:           os.Getenv("LIBSQL_AUTH_TOKEN"),
		EmbeddingDims:       config.GetInt("EMBEDDING_DIMS", 4),
		EmbeddingsAdaptMode: config.GetString("EMBEDDINGS_ADAPT_MODE", ""),
		MaxOpenConns:        config.GetInt("DB_MAX_OPEN_CONNS", 0),
		MaxIdleConns:        config.GetInt("DB_MAX_IDLE_CONNS", 0),
		ConnMaxIdleSec:      config.GetInt("DB_CONN_MAX_IDLE_SEC", 0),
		ConnMaxLifeSec:      config.GetInt("DB_CONN_MAX_LIFETIME_SEC", 0),
	}
}
