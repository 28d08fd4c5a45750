package database

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// vectorZeroString builds a zero vector string for current embedding dims
func (dm *DBManager) vectorZeroString() string {
	dims := dm.config.EmbeddingDims
	if dims <= 0 {
		dims = 4
	}
	parts := make([]string, dims)
	for i := range parts {
		parts[i] = "0.0"
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}

// vectorToString converts a float32 array to libSQL vector string format.
// An empty input becomes the zero vector.
func (dm *DBManager) vectorToString(numbers []float32) (string, error) {
	if len(numbers) == 0 {
		return dm.vectorZeroString(), nil
	}

	dims := dm.config.EmbeddingDims
	if dims <= 0 {
		dims = 4
	}
	if len(numbers) != dims {
		return "", fmt.Errorf("vector must have exactly %d dimensions, got %d", dims, len(numbers))
	}

	strNumbers := make([]string, len(numbers))
	for i, n := range numbers {
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			log.Warn().Float32("value", n).Msg("invalid vector value, using 0.0")
			n = 0
		}
		strNumbers[i] = fmt.Sprintf("%f", n)
	}
	return fmt.Sprintf("[%s]", strings.Join(strNumbers, ", ")), nil
}

// ExtractVector decodes an F32_BLOB (little-endian float32s).
func (dm *DBManager) ExtractVector(embedding []byte) ([]float32, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	dims := dm.config.EmbeddingDims
	if dims <= 0 {
		dims = 4
	}
	expectedBytes := dims * 4
	if len(embedding) != expectedBytes {
		return nil, fmt.Errorf("invalid embedding size: expected %d bytes for %d-dimensional vector, got %d", expectedBytes, dims, len(embedding))
	}

	vector := make([]float32, dims)
	for i := 0; i < dims; i++ {
		bits := binary.LittleEndian.Uint32(embedding[i*4 : (i+1)*4])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// embedMissing fills empty vectors in place using the configured provider.
// texts[i] is the input for vecs[i].
func (dm *DBManager) embedMissing(ctx context.Context, texts []string, vecs [][]float32) error {
	if dm.provider == nil {
		return nil
	}
	inputs := make([]string, 0, len(texts))
	idxs := make([]int, 0, len(texts))
	for i := range texts {
		if len(vecs[i]) == 0 {
			inputs = append(inputs, texts[i])
			idxs = append(idxs, i)
		}
	}
	if len(inputs) == 0 {
		return nil
	}
	out, err := dm.provider.Embed(ctx, inputs)
	if err != nil {
		return fmt.Errorf("{\"error\":{\"code\":\"EMBEDDINGS_PROVIDER_ERROR\",\"message\":%q}}", err.Error())
	}
	if len(out) != len(inputs) {
		return fmt.Errorf("{\"error\":{\"code\":\"EMBEDDINGS_PROVIDER_ERROR\",\"message\":\"provider returned mismatched embeddings count\"}}")
	}
	for j, idx := range idxs {
		vecs[idx] = out[j]
	}
	return nil
}
