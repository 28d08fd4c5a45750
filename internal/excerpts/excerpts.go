// Package excerpts retrieves free-text book excerpts by embedding similarity
// from one of several backends.
package excerpts

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/database"
)

// DefaultThreshold is the minimum similarity for an excerpt to be used.
const DefaultThreshold = 0.35

// Index returns the topN excerpts with similarity >= threshold, best first.
type Index interface {
	TopExcerpts(ctx context.Context, vec []float32, threshold float64, topN int) ([]apptype.TextExcerpt, error)
}

// Writer is implemented by backends that can store excerpts.
type Writer interface {
	UpsertExcerpts(ctx context.Context, docs []Document) error
}

// Document is one stored chunk. Path is its unique key; Label groups chunks.
type Document struct {
	Path      string
	Label     string
	Content   string
	Embedding []float32
}

// Config selects and configures the backend.
type Config struct {
	Backend    string
	Threshold  float64
	ChunksFile string
	QdrantURL  string
	QdrantKey  string
	Collection string
	PGConnStr  string
	PGTable    string
	Dims       int
}

// NewConfig reads EXCERPTS_BACKEND (libsql|file|qdrant|pgvector|none) and the
// backend-specific variables. context.excerpt_threshold in the tuning file
// overrides EXCERPTS_THRESHOLD.
func NewConfig() (Config, error) {
	cfg := Config{
		Backend:    strings.ToLower(config.GetString("EXCERPTS_BACKEND", "libsql")),
		Threshold:  config.GetFloat("EXCERPTS_THRESHOLD", DefaultThreshold),
		ChunksFile: config.GetString("CHUNK_EMBEDDINGS_FILE", "chunk_embeddings.json"),
		QdrantURL:  config.GetString("QDRANT_URL", "http://localhost:6334"),
		QdrantKey:  config.GetString("QDRANT_API_KEY", ""),
		Collection: config.GetString("QDRANT_COLLECTION", "excerpts"),
		PGConnStr:  config.GetString("PGVECTOR_URL", ""),
		PGTable:    config.GetString("PGVECTOR_TABLE", "excerpts"),
		Dims:       config.GetInt("EMBEDDING_DIMS", 4),
	}
	t, err := config.TuningFromEnv()
	if err != nil {
		return cfg, err
	}
	if t.Context.ExcerptThreshold != nil {
		cfg.Threshold = *t.Context.ExcerptThreshold
	}
	return cfg, nil
}

// Open builds the configured backend. dm and project are used by the libsql
// backend only. The returned close function is never nil.
func Open(ctx context.Context, cfg Config, dm *database.DBManager, project string) (Index, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "libsql":
		if dm == nil {
			return nil, noop, fmt.Errorf("libsql excerpt backend requires a database")
		}
		return LibSQL(dm, project), noop, nil
	case "file":
		idx, err := LoadFile(cfg.ChunksFile)
		if err != nil {
			return nil, noop, err
		}
		return idx, noop, nil
	case "qdrant":
		idx, err := NewQdrant(cfg.QdrantURL, cfg.QdrantKey, cfg.Collection, cfg.Dims)
		if err != nil {
			return nil, noop, err
		}
		return idx, idx.Close, nil
	case "pgvector":
		idx, err := NewPGVector(ctx, cfg.PGConnStr, cfg.PGTable, cfg.Dims)
		if err != nil {
			return nil, noop, err
		}
		return idx, idx.Close, nil
	case "none":
		return None{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown excerpts backend %q", cfg.Backend)
	}
}

// None is an Index with no content.
type None struct{}

func (None) TopExcerpts(context.Context, []float32, float64, int) ([]apptype.TextExcerpt, error) {
	return []apptype.TextExcerpt{}, nil
}

type libsqlIndex struct {
	dm      *database.DBManager
	project string
}

// LibSQL serves excerpts from the excerpts table of a project database.
func LibSQL(dm *database.DBManager, project string) Index {
	return &libsqlIndex{dm: dm, project: project}
}

func (l *libsqlIndex) TopExcerpts(ctx context.Context, vec []float32, threshold float64, topN int) ([]apptype.TextExcerpt, error) {
	return l.dm.TopExcerpts(ctx, l.project, vec, threshold, topN)
}

func (l *libsqlIndex) UpsertExcerpts(ctx context.Context, docs []Document) error {
	rows := make([]database.Excerpt, len(docs))
	for i, d := range docs {
		rows[i] = database.Excerpt{Path: d.Path, Label: d.Label, Content: d.Content, Embedding: d.Embedding}
	}
	return l.dm.UpsertExcerpts(ctx, l.project, rows)
}
