package neo4jstore

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func f64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func toFloat32s(v any) []float32 {
	switch xs := v.(type) {
	case []any:
		out := make([]float32, len(xs))
		for i, x := range xs {
			out[i] = float32(f64(x))
		}
		return out
	case []float64:
		out := make([]float32, len(xs))
		for i, x := range xs {
			out[i] = float32(x)
		}
		return out
	case []float32:
		return xs
	}
	return nil
}

// toDate accepts Neo4j dates, Go times and YYYY-MM-DD strings.
func toDate(v any) *time.Time {
	var t time.Time
	switch d := v.(type) {
	case neo4j.Date:
		t = d.Time()
	case neo4j.LocalDateTime:
		t = d.Time()
	case time.Time:
		t = d
	case string:
		p, err := time.Parse(dateLayout, d)
		if err != nil {
			return nil
		}
		t = p
	default:
		return nil
	}
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &t
}
