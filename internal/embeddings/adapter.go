package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Adapt modes for WrapToDims.
const (
	AdaptPadOrTruncate     = "pad_or_truncate"
	AdaptTruncateNormalize = "truncate_normalize"
	AdaptStrict            = "strict"
)

// adaptingProvider coerces vectors to the schema's dimensionality so query
// and stored embeddings stay comparable.
type adaptingProvider struct {
	base       Provider
	targetDims int
	mode       string
}

// WrapToDims returns a Provider whose vectors have targetDims entries. Modes:
// pad_or_truncate (default; "pad" and "truncate" are aliases) zero-pads or
// cuts; truncate_normalize also rescales to unit length, which suits
// Matryoshka-style models; strict fails on any mismatch. If base already
// matches, it is returned unchanged.
func WrapToDims(base Provider, targetDims int, mode string) Provider {
	if base == nil || targetDims <= 0 || base.Dimensions() == targetDims {
		return base
	}
	m := strings.ToLower(strings.TrimSpace(mode))
	switch m {
	case AdaptTruncateNormalize, AdaptStrict:
	default:
		m = AdaptPadOrTruncate
	}
	return &adaptingProvider{base: base, targetDims: targetDims, mode: m}
}

func (p *adaptingProvider) Name() string { return p.base.Name() }

func (p *adaptingProvider) Dimensions() int { return p.targetDims }

func (p *adaptingProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	vecs, err := p.base.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) != p.targetDims && p.mode == AdaptStrict {
			return nil, fmt.Errorf("{\"error\":{\"code\":\"EMBEDDING_DIMS_MISMATCH\",\"message\":\"provider %s returned %d dims, schema expects %d\"}}", p.base.Name(), len(v), p.targetDims)
		}
		out[i] = resize(v, p.targetDims)
		if p.mode == AdaptTruncateNormalize && len(v) > p.targetDims {
			normalize(out[i])
		}
	}
	return out, nil
}

func resize(v []float32, target int) []float32 {
	if len(v) >= target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}

func normalize(v []float32) {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return
	}
	n := math.Sqrt(sq)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}
