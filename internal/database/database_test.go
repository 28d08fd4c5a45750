package database

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

const testProject = "test-project"

func setupTestDB(t *testing.T) (*DBManager, func()) {
	config := NewConfig()
	// Use an in-memory database for testing.
	// The `cache=shared` is crucial for sharing the connection across different
	// calls to `sql.Open` within the same process.
	config.URL = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	config.EmbeddingDims = 4
	db, err := NewDBManager(config, nil)
	require.NoError(t, err)

	cleanup := func() {
		err := db.Close()
		assert.NoError(t, err)
	}

	return db, cleanup
}

type fakeProvider struct{}

func (fakeProvider) Name() string    { return "fake" }
func (fakeProvider) Dimensions() int { return 4 }
func (fakeProvider) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if strings.Contains(strings.ToLower(in), "climate") {
			out[i] = []float32{1, 0, 0, 0}
		} else {
			out[i] = []float32{0, 1, 0, 0}
		}
	}
	return out, nil
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func candidateIDs(items []apptype.CandidateItem, kind apptype.CandidateKind) []string {
	var out []string
	for _, it := range items {
		if it.Kind == kind {
			out = append(out, it.ID)
		}
	}
	return out
}

func seedCandidates(t *testing.T, db *DBManager, project string) {
	ctx := context.Background()
	require.NoError(t, db.UpsertEvents(ctx, project, []apptype.CandidateItem{
		apptype.NewEvent("ev-recent", []float32{1, 0, 0, 0}, apptype.EventFields{Name: "Climate bill", StartDate: day(2024, 6, 1), Emotion: "hope", EmotionIntensity: 0.6}),
		apptype.NewEvent("ev-old", []float32{0.9, 0.1, 0, 0}, apptype.EventFields{Name: "Kyoto", StartDate: day(1960, 1, 1)}),
		apptype.NewEvent("ev-undated", []float32{1, 0, 0, 0}, apptype.EventFields{Name: "Undated"}),
		apptype.NewEvent("ev-orthogonal", []float32{0, 0, 1, 0}, apptype.EventFields{Name: "Football", StartDate: day(2024, 6, 2)}),
	}))
	require.NoError(t, db.UpsertClaims(ctx, project, []apptype.CandidateItem{
		apptype.NewClaim("cl-1", []float32{0.8, 0.6, 0, 0}, apptype.ClaimFields{Content: "Carbon taxes work", Source: "paper", Confidence: 0.7}),
		apptype.NewClaim("cl-2", []float32{0, 0, 0, 1}, apptype.ClaimFields{Content: "Unrelated"}),
	}))
}

func TestTopCandidatesWindowAndThreshold(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	seedCandidates(t, db, testProject)
	ctx := context.Background()

	today := day(2024, 6, 15)
	items, err := db.TopCandidates(ctx, testProject, apptype.CandidateQuery{
		Vector:    []float32{1, 0, 0, 0},
		Threshold: 0.3,
		Mode:      apptype.DateRangeRecent,
		Window:    apptype.TimeWindow{NotBefore: day(2024, 3, 15), NotAfter: today},
		MaxItems:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-recent"}, candidateIDs(items, apptype.KindEvent))
	assert.Equal(t, []string{"cl-1"}, candidateIDs(items, apptype.KindClaim))

	for _, it := range items {
		require.Len(t, it.Embedding, 4)
		if it.Kind == apptype.KindEvent {
			assert.Equal(t, "hope", it.Event.Emotion)
			assert.Equal(t, *day(2024, 6, 1), *it.Event.StartDate)
			assert.InDelta(t, 1.0, it.Similarity, 1e-4)
		} else {
			assert.Equal(t, "paper", it.Claim.Source)
			assert.InDelta(t, 0.8, it.Similarity, 1e-4)
		}
	}

	// historic: strictly before the cut-off
	items, err = db.TopCandidates(ctx, testProject, apptype.CandidateQuery{
		Vector:    []float32{1, 0, 0, 0},
		Threshold: 0.3,
		Mode:      apptype.DateRangeHistoric,
		Window:    apptype.TimeWindow{NotAfter: today, Before: day(1974, 6, 15)},
		MaxItems:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-old"}, candidateIDs(items, apptype.KindEvent))
}

func TestTopCandidatesUndatedOnlyWhenIncluded(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	seedCandidates(t, db, testProject)
	q := apptype.CandidateQuery{
		Vector:    []float32{1, 0, 0, 0},
		Threshold: 0.3,
		Mode:      apptype.DateRangeUnspecified,
		Window:    apptype.TimeWindow{NotAfter: day(2024, 6, 15)},
		MaxItems:  2,
	}

	items, err := db.TopCandidates(context.Background(), testProject, q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ev-recent", "ev-old"}, candidateIDs(items, apptype.KindEvent))

	q.IncludeUndated = true
	items, err = db.TopCandidates(context.Background(), testProject, q)
	require.NoError(t, err)
	events := candidateIDs(items, apptype.KindEvent)
	assert.Len(t, events, 2)
	assert.NotContains(t, events, "ev-old", "lowest similarity falls outside the limit")
	assert.Contains(t, events, "ev-undated")
}

func TestTopCandidatesLimitsEventsByCombinedScore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	seedCandidates(t, db, testProject)
	today := day(2024, 6, 15)
	scoring := &apptype.EventScoring{
		Today: *today, SimilarityWeight: 0.7, TimeWeight: 0.3,
		RecentDecay: 0.33, HistoricScale: 50, DefaultScale: 5, UndatedRelevance: 0.5,
	}

	// historic favours the oldest event even though it is the least similar
	items, err := db.TopCandidates(context.Background(), testProject, apptype.CandidateQuery{
		Vector:    []float32{1, 0, 0, 0},
		Threshold: 0.3,
		Mode:      apptype.DateRangeHistoric,
		Window:    apptype.TimeWindow{NotAfter: today},
		MaxItems:  1,
		Scoring:   scoring,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-old"}, candidateIDs(items, apptype.KindEvent))
	ev := items[0]
	assert.InDelta(t, 1-math.Exp(-apptype.YearsAgo(*day(1960, 1, 1), *today)/50), ev.TimeRelevance, 1e-9)
	assert.InDelta(t, 0.7*ev.Similarity+0.3*ev.TimeRelevance, ev.CombinedScore, 1e-9)
}

func TestTopCandidatesRejectsEmptyVector(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	_, err := db.TopCandidates(context.Background(), testProject, apptype.CandidateQuery{})
	assert.Error(t, err)
	_, err = db.TopCandidates(context.Background(), testProject, apptype.CandidateQuery{Vector: []float32{1, 0}})
	assert.Error(t, err, "dimension mismatch")
}

func TestUpsertEventsAutoEmbed(t *testing.T) {
	config := NewConfig()
	config.URL = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	config.EmbeddingDims = 4
	db, err := NewDBManager(config, fakeProvider{})
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.UpsertEvents(ctx, testProject, []apptype.CandidateItem{
		apptype.NewEvent("e1", nil, apptype.EventFields{Name: "Climate march", StartDate: day(2024, 1, 1)}),
		apptype.NewEvent("e2", nil, apptype.EventFields{Name: "Chess final", StartDate: day(2024, 1, 1)}),
	}))
	items, err := db.TopCandidates(ctx, testProject, apptype.CandidateQuery{
		Vector: []float32{1, 0, 0, 0}, Threshold: 0.5, Mode: apptype.DateRangeUnspecified, MaxItems: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, candidateIDs(items, apptype.KindEvent))

	// upsert replaces
	require.NoError(t, db.UpsertEvents(ctx, testProject, []apptype.CandidateItem{
		apptype.NewEvent("e1", []float32{0, 0, 1, 0}, apptype.EventFields{Name: "Climate march", StartDate: day(2024, 1, 1)}),
	}))
	items, err = db.TopCandidates(ctx, testProject, apptype.CandidateQuery{
		Vector: []float32{1, 0, 0, 0}, Threshold: 0.5, Mode: apptype.DateRangeUnspecified, MaxItems: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.Error(t, db.UpsertEvents(ctx, testProject, []apptype.CandidateItem{apptype.NewClaim("c", nil, apptype.ClaimFields{Content: "x"})}))
}

func TestRelatedConcepts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, db.UpsertConcepts(ctx, testProject, []apptype.ConceptNode{
		{Name: "Climate", Description: "long-term weather"},
		{Name: "Carbon", Description: "element"},
		{Name: "Policy"},
		{Name: "Economy"},
		{Name: "Isolated"},
	}))
	require.NoError(t, db.UpsertConceptRelations(ctx, testProject, []apptype.ConceptRelationship{
		{Source: "Carbon", Target: "Climate", Type: "affects"},
		{Source: "Climate", Target: "Policy", Type: "drives"},
		{Source: "Policy", Target: "Economy", Type: "shapes"},
		{Source: "Policy", Target: "Economy", Type: "shapes"}, // duplicate ignored
	}))

	nodes, rels, err := db.RelatedConcepts(ctx, testProject, []string{"Policy", "Climate", "Climate", "Isolated", "Missing"}, 7)
	require.NoError(t, err)
	assert.Equal(t, []apptype.ConceptRelationship{
		{Source: "Climate", Target: "Carbon", Type: "affects"},
		{Source: "Climate", Target: "Policy", Type: "drives"},
		{Source: "Policy", Target: "Climate", Type: "drives"},
		{Source: "Policy", Target: "Economy", Type: "shapes"},
	}, rels)
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	assert.Equal(t, []string{"Climate", "Carbon", "Policy", "Economy"}, names)
	assert.Equal(t, "long-term weather", nodes[0].Description)

	_, rels, err = db.RelatedConcepts(ctx, testProject, []string{"Climate"}, 1)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	nodes, rels, err = db.RelatedConcepts(ctx, testProject, nil, 7)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Empty(t, rels)

	err = db.UpsertConceptRelations(ctx, testProject, []apptype.ConceptRelationship{{Source: "Climate", Target: "Nope", Type: "x"}})
	assert.Error(t, err)
}

func TestTopExcerpts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, db.UpsertExcerpts(ctx, testProject, []Excerpt{
		{Path: "books/a/1.txt", Label: "a", Content: "first", Embedding: []float32{1, 0, 0, 0}},
		{Path: "books/a/2.txt", Label: "a", Content: "second", Embedding: []float32{0.6, 0.8, 0, 0}},
		{Path: "books/b/1.txt", Label: "b", Content: "third", Embedding: []float32{0, 1, 0, 0}},
	}))

	got, err := db.TopExcerpts(ctx, testProject, []float32{1, 0, 0, 0}, 0.35, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Equal(t, "a", got[1].Label)

	got, err = db.TopExcerpts(ctx, testProject, []float32{1, 0, 0, 0}, 0.35, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = db.TopExcerpts(ctx, testProject, []float32{1, 0, 0, 0}, 0.35, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMultiProject(t *testing.T) {
	dir, err := os.MkdirTemp("", "mindgraph-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	config := &Config{
		ProjectsDir:      dir,
		MultiProjectMode: true,
		EmbeddingDims:    4,
	}
	db, err := NewDBManager(config, nil)
	require.NoError(t, err)
	defer db.Close()

	seedCandidates(t, db, "project1")
	q := apptype.CandidateQuery{Vector: []float32{1, 0, 0, 0}, Threshold: 0.3, Mode: apptype.DateRangeUnspecified, MaxItems: 10}

	items, err := db.TopCandidates(context.Background(), "project1", q)
	require.NoError(t, err)
	assert.NotEmpty(t, items)

	items, err = db.TopCandidates(context.Background(), "project2", q)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = db.TopCandidates(context.Background(), "", q)
	assert.Error(t, err)
}

func TestInvalidEmbeddingDims(t *testing.T) {
	_, err := NewDBManager(&Config{URL: "file:dims?mode=memory&cache=shared", EmbeddingDims: 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_EMBEDDING_DIMS")
}

func TestVectorCodec(t *testing.T) {
	dm := &DBManager{config: &Config{EmbeddingDims: 2}}
	s, err := dm.vectorToString([]float32{0.5, -1})
	require.NoError(t, err)
	assert.Equal(t, "[0.500000, -1.000000]", s)

	s, err = dm.vectorToString(nil)
	require.NoError(t, err)
	assert.Equal(t, "[0.0, 0.0]", s)

	_, err = dm.vectorToString([]float32{1})
	assert.Error(t, err)

	v, err := dm.ExtractVector([]byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0xc0})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2}, v)

	_, err = dm.ExtractVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

// FuzzExtractVector checks blob decoding never panics.
func FuzzExtractVector(f *testing.F) {
	f.Add([]byte{1, 2, 3})
	f.Add([]byte{})
	f.Add([]byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0xc0})
	dm := &DBManager{config: &Config{EmbeddingDims: 2}}
	f.Fuzz(func(t *testing.T, b []byte) {
		v, err := dm.ExtractVector(b)
		if err == nil && len(b) > 0 {
			assert.Len(t, v, 2)
		}
	})
}
