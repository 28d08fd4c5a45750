package mindgraph

import (
	"strings"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/database"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/excerpts"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/history"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/neo4jstore"
)

// Graph backends.
const (
	GraphLibSQL = "libsql"
	GraphNeo4j  = "neo4j"
)

// Config exposes a stable wrapper over the internal backend configurations.
// Zero-valued fields keep whatever the environment selected.
type Config struct {
	// libSQL
	URL              string
	AuthToken        string
	ProjectsDir      string
	MultiProjectMode bool
	EmbeddingDims    int
	// EmbeddingsAdaptMode is "pad_or_truncate", "truncate_normalize" or "strict".
	EmbeddingsAdaptMode string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxIdleSec      int
	ConnMaxLifeSec      int

	// GraphBackend is GraphLibSQL or GraphNeo4j.
	GraphBackend  string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// ExcerptsBackend is libsql, file, qdrant, pgvector or none.
	ExcerptsBackend  string
	ChunksFile       string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	PGVectorURL      string
	PGVectorTable    string

	// HistoryBackend is file, redis or none.
	HistoryBackend string
	HistoryDir     string
	RedisURL       string
}

// ConfigFromEnv reads every backend's environment variables. GRAPH_BACKEND
// defaults to libsql.
func ConfigFromEnv() (*Config, error) {
	db := database.NewConfig()
	nc := neo4jstore.NewConfig()
	hc := history.NewConfig()
	xc, err := excerpts.NewConfig()
	if err != nil {
		return nil, err
	}
	return &Config{
		URL:                 db.URL,
		AuthToken:           db.AuthToken,
		ProjectsDir:         db.ProjectsDir,
		MultiProjectMode:    db.MultiProjectMode,
		EmbeddingDims:       db.EmbeddingDims,
		EmbeddingsAdaptMode: db.EmbeddingsAdaptMode,
		MaxOpenConns:        db.MaxOpenConns,
		MaxIdleConns:        db.MaxIdleConns,
		ConnMaxIdleSec:      db.ConnMaxIdleSec,
		ConnMaxLifeSec:      db.ConnMaxLifeSec,

		GraphBackend:  strings.ToLower(config.GetString("GRAPH_BACKEND", GraphLibSQL)),
		Neo4jURI:      nc.URI,
		Neo4jUser:     nc.User,
		Neo4jPassword: nc.Password,
		Neo4jDatabase: nc.Database,

		ExcerptsBackend:  xc.Backend,
		ChunksFile:       xc.ChunksFile,
		QdrantURL:        xc.QdrantURL,
		QdrantAPIKey:     xc.QdrantKey,
		QdrantCollection: xc.Collection,
		PGVectorURL:      xc.PGConnStr,
		PGVectorTable:    xc.PGTable,

		HistoryBackend: hc.Backend,
		HistoryDir:     hc.Dir,
		RedisURL:       hc.RedisURL,
	}, nil
}

func (c *Config) databaseConfig() *database.Config {
	multi := c.MultiProjectMode || c.ProjectsDir != ""
	return &database.Config{
		URL:                 c.URL,
		AuthToken:           c.AuthToken,
		ProjectsDir:         c.ProjectsDir,
		MultiProjectMode:    multi,
		EmbeddingDims:       c.EmbeddingDims,
		EmbeddingsAdaptMode: c.EmbeddingsAdaptMode,
		MaxOpenConns:        c.MaxOpenConns,
		MaxIdleConns:        c.MaxIdleConns,
		ConnMaxIdleSec:      c.ConnMaxIdleSec,
		ConnMaxLifeSec:      c.ConnMaxLifeSec,
	}
}

func (c *Config) neo4jConfig() neo4jstore.Config {
	return neo4jstore.Config{URI: c.Neo4jURI, User: c.Neo4jUser, Password: c.Neo4jPassword, Database: c.Neo4jDatabase}
}

// excerptsConfig keeps the env threshold and overlays the backend fields.
func (c *Config) excerptsConfig() (excerpts.Config, error) {
	xc, err := excerpts.NewConfig()
	if err != nil {
		return xc, err
	}
	xc.Backend = orEnv(c.ExcerptsBackend, xc.Backend)
	xc.ChunksFile = orEnv(c.ChunksFile, xc.ChunksFile)
	xc.QdrantURL = orEnv(c.QdrantURL, xc.QdrantURL)
	xc.QdrantKey = orEnv(c.QdrantAPIKey, xc.QdrantKey)
	xc.Collection = orEnv(c.QdrantCollection, xc.Collection)
	xc.PGConnStr = orEnv(c.PGVectorURL, xc.PGConnStr)
	xc.PGTable = orEnv(c.PGVectorTable, xc.PGTable)
	if c.EmbeddingDims > 0 {
		xc.Dims = c.EmbeddingDims
	}
	return xc, nil
}

func (c *Config) historyConfig() history.Config {
	hc := history.NewConfig()
	hc.Backend = orEnv(c.HistoryBackend, hc.Backend)
	hc.Dir = orEnv(c.HistoryDir, hc.Dir)
	hc.RedisURL = orEnv(c.RedisURL, hc.RedisURL)
	return hc
}

func (c *Config) usesLibSQL() bool {
	graph := c.GraphBackend == "" || c.GraphBackend == GraphLibSQL
	xb := strings.ToLower(c.ExcerptsBackend)
	return graph || xb == "" || xb == "libsql"
}

func orEnv(v, env string) string {
	if v == "" {
		return env
	}
	return v
}
