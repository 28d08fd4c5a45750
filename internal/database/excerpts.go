package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

// Excerpt is a stored text chunk. Path is unique; Label groups chunks (a book).
type Excerpt struct {
	Path      string
	Label     string
	Content   string
	Embedding []float32
}

const topExcerptsScanSQL = `SELECT label, content, similarity FROM (
    SELECT id, label, content, 1 - vector_distance_cos(embedding, vector32(?)) AS similarity
    FROM excerpts
    WHERE embedding IS NOT NULL AND embedding != vector32(?)
) WHERE similarity >= ?
ORDER BY similarity DESC, id ASC
LIMIT ?`

const topExcerptsANNSQL = `WITH vt AS (
    SELECT id FROM vector_top_k('idx_excerpts_embedding', vector32(?), ?)
)
SELECT label, content, similarity FROM (
    SELECT x.id, x.label, x.content, 1 - vector_distance_cos(x.embedding, vector32(?)) AS similarity
    FROM vt JOIN excerpts x ON x.id = vt.id
    WHERE x.embedding != vector32(?)
) WHERE similarity >= ?
ORDER BY similarity DESC, id ASC
LIMIT ?`

// TopExcerpts returns the topN excerpts with similarity >= threshold, best first.
func (dm *DBManager) TopExcerpts(ctx context.Context, projectName string, vector []float32, threshold float64, topN int) ([]apptype.TextExcerpt, error) {
	done := metrics.TimeOp("db_top_excerpts")
	success := false
	defer func() { done(success) }()
	out := make([]apptype.TextExcerpt, 0)
	if topN <= 0 {
		success = true
		return out, nil
	}
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, err
	}
	vs, err := dm.vectorToString(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to convert search embedding: %w", err)
	}
	zero := dm.vectorZeroString()

	var rows *sql.Rows
	useTopK := dm.caps(projectName).vectorTopK
	if useTopK {
		stmt, perr := dm.getPreparedStmt(ctx, projectName, db, topExcerptsANNSQL)
		if perr != nil {
			return nil, perr
		}
		// over-fetch since the threshold applies after the ANN cut
		rows, err = stmt.QueryContext(ctx, vs, topN*4, vs, zero, threshold, topN)
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "no such function: vector_top_k") {
			dm.setCaps(dm.resolveProject(projectName), capFlags{checked: true})
			useTopK = false
		} else if err != nil {
			return nil, fmt.Errorf("failed ANN excerpt search: %w", err)
		}
	}
	if !useTopK {
		stmt, perr := dm.getPreparedStmt(ctx, projectName, db, topExcerptsScanSQL)
		if perr != nil {
			return nil, perr
		}
		rows, err = stmt.QueryContext(ctx, vs, zero, threshold, topN)
		if err != nil {
			return nil, vectorQueryError("excerpts", err)
		}
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

// UpsertExcerpts stores chunks keyed by path, embedding content when needed.
func (dm *DBManager) UpsertExcerpts(ctx context.Context, projectName string, excerpts []Excerpt) error {
	done := metrics.TimeOp("db_upsert_excerpts")
	success := false
	defer func() { done(success) }()
	texts := make([]string, len(excerpts))
	vecs := make([][]float32, len(excerpts))
	for i, x := range excerpts {
		if x.Path == "" || x.Content == "" {
			return fmt.Errorf("excerpt %d requires path and content", i)
		}
		texts[i] = x.Content
		vecs[i] = x.Embedding
	}
	if err := dm.embedMissing(ctx, texts, vecs); err != nil {
		return err
	}
	db, err := dm.getDB(projectName)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for i, x := range excerpts {
		vs, err := dm.vectorToString(vecs[i])
		if err != nil {
			return fmt.Errorf("failed to convert embedding for excerpt %q: %w", x.Path, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO excerpts (path, label, content, embedding) VALUES (?, ?, ?, vector32(?))
            ON CONFLICT(path) DO UPDATE SET label = excluded.label, content = excluded.content, embedding = excluded.embedding`,
			x.Path, x.Label, x.Content, vs); err != nil {
			return fmt.Errorf("failed to upsert excerpt %q: %w", x.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit excerpts: %w", err)
	}
	success = true
	return nil
}
