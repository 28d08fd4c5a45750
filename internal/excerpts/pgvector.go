package excerpts

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorIndex serves excerpts from a Postgres table with a vector column.
type PGVectorIndex struct {
	pool  *pgxpool.Pool
	table string
	dims  int
}

// NewPGVector opens a pool with pgvector types registered on every connection.
func NewPGVector(ctx context.Context, connStr, table string, dims int) (*PGVectorIndex, error) {
	if connStr == "" {
		return nil, fmt.Errorf("PGVECTOR_URL is required for the pgvector excerpt backend")
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgvector connection string: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgvector pool: %w", err)
	}
	return &PGVectorIndex{pool: pool, table: table, dims: dims}, nil
}

func (p *PGVectorIndex) TopExcerpts(ctx context.Context, vec []float32, threshold float64, topN int) ([]apptype.TextExcerpt, error) {
	done := metrics.TimeOp("pgvector_top_excerpts")
	success := false
	defer func() { done(success) }()
	out := make([]apptype.TextExcerpt, 0)
	if topN <= 0 {
		success = true
		return out, nil
	}
	q := fmt.Sprintf(`SELECT label, content, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1, path
		LIMIT $3`, p.table)
	rows, err := p.pool.Query(ctx, q, pgvector.NewVector(vec), threshold, topN)
	if err != nil {
		return nil, fmt.Errorf("pgvector excerpt search failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ex apptype.TextExcerpt
		if err := rows.Scan(&ex.Label, &ex.Content, &ex.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan excerpt: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating excerpts: %w", err)
	}
	success = true
	return out, nil
}

// EnsureSchema creates the excerpts table when missing.
func (p *PGVectorIndex) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		path TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL
	)`, p.table, p.dims)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.table, err)
	}
	return nil
}

// UpsertExcerpts writes documents in one batch. Every document must carry
// its embedding.
func (p *PGVectorIndex) UpsertExcerpts(ctx context.Context, docs []Document) error {
	if err := p.EnsureSchema(ctx); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	upsert := fmt.Sprintf(`INSERT INTO %s (path, label, content, embedding) VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET label = EXCLUDED.label, content = EXCLUDED.content, embedding = EXCLUDED.embedding`, p.table)
	for _, d := range docs {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("excerpt %q has no embedding", d.Path)
		}
		batch.Queue(upsert, d.Path, d.Label, d.Content, pgvector.NewVector(d.Embedding))
	}
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to store excerpt %d: %w", i, err)
		}
	}
	return nil
}

func (p *PGVectorIndex) Close() error {
	p.pool.Close()
	return nil
}
