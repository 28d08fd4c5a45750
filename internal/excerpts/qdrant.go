package excerpts

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

// QdrantIndex stores excerpts as points with "path", "label" and "content"
// payload fields in a cosine collection.
type QdrantIndex struct {
	client     *qd.Client
	collection string
	dims       int
}

// NewQdrant connects over gRPC. rawURL defaults its port to 6334.
func NewQdrant(rawURL, apiKey, collection string, dims int) (*QdrantIndex, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant URL: %w", err)
	}
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}
	client, err := qd.NewClient(&qd.Config{Host: u.Hostname(), Port: port, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantIndex{client: client, collection: collection, dims: dims}, nil
}

func (q *QdrantIndex) TopExcerpts(ctx context.Context, vec []float32, threshold float64, topN int) ([]apptype.TextExcerpt, error) {
	done := metrics.TimeOp("qdrant_top_excerpts")
	success := false
	defer func() { done(success) }()
	out := make([]apptype.TextExcerpt, 0)
	if topN <= 0 {
		success = true
		return out, nil
	}
	limit := uint64(topN)
	score := float32(threshold)
	points, err := q.client.Query(ctx, &qd.QueryPoints{
		CollectionName: q.collection,
		Query:          qd.NewQuery(vec...),
		WithPayload:    qd.NewWithPayload(true),
		Limit:          &limit,
		ScoreThreshold: &score,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant excerpt search failed: %w", err)
	}
	for _, p := range points {
		out = append(out, apptype.TextExcerpt{
			Label:      p.Payload["label"].GetStringValue(),
			Content:    p.Payload["content"].GetStringValue(),
			Similarity: float64(p.Score),
		})
	}
	success = true
	return out, nil
}

// EnsureCollection creates the cosine collection when it is missing.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(q.dims),
			Distance: qd.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}
	return nil
}

// UpsertExcerpts writes points keyed by a UUID derived from each path.
// Every document must carry its embedding.
func (q *QdrantIndex) UpsertExcerpts(ctx context.Context, docs []Document) error {
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}
	points := make([]*qd.PointStruct, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("excerpt %q has no embedding", d.Path)
		}
		points = append(points, &qd.PointStruct{
			Id:      qd.NewIDUUID(pointID(d.Path)),
			Vectors: qd.NewVectors(d.Embedding...),
			Payload: map[string]*qd.Value{
				"path":    qd.NewValueString(d.Path),
				"label":   qd.NewValueString(d.Label),
				"content": qd.NewValueString(d.Content),
			},
		})
	}
	if len(points) == 0 {
		return nil
	}
	wait := true
	if _, err := q.client.Upsert(ctx, &qd.UpsertPoints{CollectionName: q.collection, Points: points, Wait: &wait}); err != nil {
		return fmt.Errorf("failed to upsert excerpts to %s: %w", q.collection, err)
	}
	return nil
}

func (q *QdrantIndex) Close() error { return q.client.Close() }

// pointID derives a stable point UUID from a chunk path.
func pointID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
}
