package excerpts

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ranking"
)

// FileIndex serves chunks precomputed into a JSON map of
// "<dir>/<book>/<chunk>.json" -> embedding. Content lives in the sibling
// .txt file, read on demand. The label is the book directory name.
type FileIndex struct {
	paths      []string
	embeddings map[string][]float32
	readFile   func(string) ([]byte, error)
}

// LoadFile reads the chunk embeddings map.
func LoadFile(path string) (*FileIndex, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk embeddings %s: %w", path, err)
	}
	var m map[string][]float32
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to parse chunk embeddings %s: %w", path, err)
	}
	return NewFileIndex(m), nil
}

// NewFileIndex builds an index over an in-memory embeddings map.
func NewFileIndex(m map[string][]float32) *FileIndex {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return &FileIndex{paths: paths, embeddings: m, readFile: os.ReadFile}
}

func (f *FileIndex) TopExcerpts(ctx context.Context, vec []float32, threshold float64, topN int) ([]apptype.TextExcerpt, error) {
	out := make([]apptype.TextExcerpt, 0)
	if topN <= 0 {
		return out, nil
	}
	type hit struct {
		path string
		sim  float64
	}
	hits := make([]hit, 0)
	for _, p := range f.paths {
		if sim := ranking.Cosine(vec, f.embeddings[p]); sim >= threshold {
			hits = append(hits, hit{path: p, sim: sim})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(b.sim, a.sim) })

	for _, h := range hits {
		if len(out) == topN {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		txt := strings.TrimSuffix(h.path, ".json") + ".txt"
		content, err := f.readFile(txt)
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", txt).Msg("chunk text file not found")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %s: %w", txt, err)
		}
		out = append(out, apptype.TextExcerpt{Label: BookLabel(txt), Content: string(content), Similarity: h.sim})
	}
	return out, nil
}

// BookLabel is the name of the directory holding a chunk file.
func BookLabel(path string) string {
	return filepath.Base(filepath.Dir(path))
}
