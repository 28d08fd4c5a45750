package excerpts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/database"
)

func writeChunk(t *testing.T, dir, book, name, content string) string {
	t.Helper()
	bookDir := filepath.Join(dir, "books", book)
	require.NoError(t, os.MkdirAll(bookDir, 0o755))
	txt := filepath.Join(bookDir, name+".txt")
	require.NoError(t, os.WriteFile(txt, []byte(content), 0o600))
	return filepath.Join(bookDir, name+".json")
}

func TestFileIndex(t *testing.T) {
	dir := t.TempDir()
	m := map[string][]float32{
		writeChunk(t, dir, "Meditations", "c1", "You have power over your mind."): {1, 0, 0},
		writeChunk(t, dir, "Meditations", "c2", "The impediment to action advances action."): {0.9, 0.1, 0},
		writeChunk(t, dir, "Walden", "c1", "I went to the woods."): {0.7, 0.7, 0},
		writeChunk(t, dir, "Walden", "c2", "Unrelated."): {0, 0, 1},
		filepath.Join(dir, "books", "Lost", "gone.json"): {1, 0, 0},
	}
	file := filepath.Join(dir, "chunk_embeddings.json")
	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, b, 0o600))

	idx, err := LoadFile(file)
	require.NoError(t, err)

	got, err := idx.TopExcerpts(context.Background(), []float32{1, 0, 0}, DefaultThreshold, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Meditations", got[0].Label)
	assert.Equal(t, "You have power over your mind.", got[0].Content)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "Meditations", got[1].Label)
	assert.Equal(t, "Walden", got[2].Label)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
	}

	got, err = idx.TopExcerpts(context.Background(), []float32{1, 0, 0}, 0.995, 5)
	require.NoError(t, err)
	require.Len(t, got, 1, "missing .txt is skipped")

	got, err = idx.TopExcerpts(context.Background(), []float32{1, 0, 0}, DefaultThreshold, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{nope"), 0o600))
	_, err = LoadFile(bad)
	require.Error(t, err)
}

func TestBookLabel(t *testing.T) {
	assert.Equal(t, "Walden", BookLabel(filepath.Join("data", "books", "Walden", "chunk_3.txt")))
}

func TestLibSQLIndex(t *testing.T) {
	cfg := database.NewConfig()
	cfg.URL = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg.EmbeddingDims = 4
	dm, err := database.NewDBManager(cfg, nil)
	require.NoError(t, err)
	defer dm.Close()

	idx := LibSQL(dm, "default")
	w, ok := idx.(Writer)
	require.True(t, ok)
	ctx := context.Background()
	require.NoError(t, w.UpsertExcerpts(ctx, []Document{
		{Path: "books/Walden/c1.txt", Label: "Walden", Content: "I went to the woods.", Embedding: []float32{1, 0, 0, 0}},
		{Path: "books/Walden/c2.txt", Label: "Walden", Content: "Far away.", Embedding: []float32{0, 1, 0, 0}},
	}))
	got, err := idx.TopExcerpts(ctx, []float32{1, 0, 0, 0}, DefaultThreshold, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Walden", got[0].Label)
	assert.Equal(t, "I went to the woods.", got[0].Content)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	idx, closeFn, err := Open(ctx, Config{Backend: "none"}, nil, "")
	require.NoError(t, err)
	require.NoError(t, closeFn())
	got, err := idx.TopExcerpts(ctx, []float32{1}, 0, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, _, err = Open(ctx, Config{Backend: "libsql"}, nil, "")
	require.Error(t, err)

	_, _, err = Open(ctx, Config{Backend: "weaviate"}, nil, "")
	require.Error(t, err)

	_, _, err = Open(ctx, Config{Backend: "pgvector"}, nil, "")
	require.Error(t, err)
}

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("EXCERPTS_BACKEND", "")
	t.Setenv("EXCERPTS_THRESHOLD", "")
	t.Setenv("MINDGRAPH_TUNING_FILE", "")
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "libsql", cfg.Backend)
	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	assert.Equal(t, "chunk_embeddings.json", cfg.ChunksFile)
}
