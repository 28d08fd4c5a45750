// Package neo4jstore implements the graph query layer on Neo4j, for graphs
// whose events, claims and concepts live as labelled nodes with embedding
// properties.
package neo4jstore

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

const (
	dateLayout             = "2006-01-02"
	defaultMaxPerConcept   = 7
	unlimited              = math.MaxInt32
	similarityThresholdEps = 1e-6
)

// Config holds connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// NewConfig reads NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD and NEO4J_DATABASE.
func NewConfig() Config {
	return Config{
		URI:      config.GetString("NEO4J_URI", "bolt://localhost:7687"),
		User:     config.GetString("NEO4J_USER", "neo4j"),
		Password: config.GetString("NEO4J_PASSWORD", ""),
		Database: config.GetString("NEO4J_DATABASE", ""),
	}
}

// Store runs read queries in managed transactions.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// New opens a driver. Connectivity is checked lazily; call Ping to verify.
func New(cfg Config) (*Store, error) {
	drv, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Store{driver: drv, database: cfg.Database}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

const topEventsCypher = `
MATCH (n:Event)
WHERE n.embedding IS NOT NULL AND size(n.embedding) = size($vec)
  AND ((n.start_date IS NULL AND $undated)
       OR (n.start_date IS NOT NULL
           AND n.start_date <= date($notAfter)
           AND ($notBefore IS NULL OR n.start_date >= date($notBefore))
           AND ($before IS NULL OR n.start_date < date($before))))
WITH n,
     reduce(dot = 0.0, i IN range(0, size(n.embedding) - 1) | dot + n.embedding[i] * $vec[i]) AS dot,
     sqrt(reduce(l2 = 0.0, x IN n.embedding | l2 + x * x)) AS norm
WITH n, CASE WHEN norm = 0 OR $qnorm = 0 THEN 0.0 ELSE dot / (norm * $qnorm) END AS similarity
WHERE similarity >= $threshold
WITH n, similarity,
     CASE WHEN n.start_date IS NULL THEN null
          ELSE toFloat(duration.inDays(n.start_date, date($today)).days) / 365.25 END AS years_ago
WITH n, similarity,
     CASE
       WHEN years_ago IS NULL THEN $undatedRelevance
       WHEN $mode IN ['recent', 'latest'] THEN exp(-years_ago * $recentDecay)
       WHEN $mode = 'historic' THEN 1 - exp(-years_ago / $historicScale)
       ELSE 1.0 / (1.0 + years_ago / $defaultScale)
     END AS time_relevance
WITH n, similarity, time_relevance, $simWeight * similarity + $timeWeight * time_relevance AS combined_score
RETURN coalesce(n.id, elementId(n)) AS id, n.name AS name, n.description AS description,
       n.start_date AS start_date, n.emotion AS emotion, n.emotion_intensity AS emotion_intensity,
       n.embedding AS embedding, similarity, time_relevance, combined_score
ORDER BY combined_score DESC, similarity DESC
LIMIT $limit`

const topClaimsCypher = `
MATCH (n:Claim)
WHERE n.embedding IS NOT NULL AND size(n.embedding) = size($vec)
WITH n,
     reduce(dot = 0.0, i IN range(0, size(n.embedding) - 1) | dot + n.embedding[i] * $vec[i]) AS dot,
     sqrt(reduce(l2 = 0.0, x IN n.embedding | l2 + x * x)) AS norm
WITH n, CASE WHEN norm = 0 OR $qnorm = 0 THEN 0.0 ELSE dot / (norm * $qnorm) END AS similarity
WHERE similarity >= $threshold
RETURN coalesce(n.id, elementId(n)) AS id, n.content AS content, n.source AS source,
       n.confidence AS confidence, n.embedding AS embedding, similarity
ORDER BY similarity DESC
LIMIT $limit`

// TopCandidates mirrors the libSQL store: up to q.MaxItems events inside
// q.Window, ordered by combined score when q.Scoring is set, and up to
// q.MaxItems claims, each clearing q.Threshold.
func (s *Store) TopCandidates(ctx context.Context, q apptype.CandidateQuery) ([]apptype.CandidateItem, error) {
	done := metrics.TimeOp("neo4j_top_candidates")
	success := false
	defer func() { done(success) }()
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("search embedding cannot be empty")
	}
	vec := make([]float64, len(q.Vector))
	var sq float64
	for i, v := range q.Vector {
		vec[i] = float64(v)
		sq += vec[i] * vec[i]
	}
	limit := int64(q.MaxItems)
	if limit <= 0 {
		limit = unlimited
	}
	params := map[string]any{
		"vec":       vec,
		"qnorm":     math.Sqrt(sq),
		"threshold": q.Threshold - similarityThresholdEps,
		"limit":     limit,
		"undated":   q.IncludeUndated,
		"notAfter":  formatDate(q.Window.NotAfter, "9999-12-31"),
		"notBefore": optionalDate(q.Window.NotBefore),
		"before":    optionalDate(q.Window.Before),
	}
	maps.Copy(params, scoringParams(q))

	sess := s.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)
	res, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		out := make([]apptype.CandidateItem, 0)
		events, err := tx.Run(ctx, topEventsCypher, params)
		if err != nil {
			return nil, err
		}
		for events.Next(ctx) {
			out = append(out, eventFromRecord(events.Record()))
		}
		if err := events.Err(); err != nil {
			return nil, err
		}
		claims, err := tx.Run(ctx, topClaimsCypher, params)
		if err != nil {
			return nil, err
		}
		for claims.Next(ctx) {
			out = append(out, claimFromRecord(claims.Record()))
		}
		return out, claims.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute neo4j similarity search: %w", err)
	}
	success = true
	return res.([]apptype.CandidateItem), nil
}

const relatedCypher = `
UNWIND $names AS seed
MATCH (c1:Concept {name: seed})-[r]-(c2:Concept)
WITH c1, c2, type(r) AS rel
ORDER BY c1.name, c2.name, rel
WITH c1, collect({name: c2.name, description: c2.description, rel: rel})[0..$max] AS neighbours
UNWIND neighbours AS nb
RETURN c1.name AS source, c1.description AS source_description,
       nb.rel AS type, nb.name AS target, nb.description AS target_description
ORDER BY source, target, type`

// RelatedConcepts returns one-hop neighbours in either direction, at most
// maxPerConcept per seed, ordered by (seed, neighbour, type).
func (s *Store) RelatedConcepts(ctx context.Context, names []string, maxPerConcept int) ([]apptype.ConceptNode, []apptype.ConceptRelationship, error) {
	done := metrics.TimeOp("neo4j_related_concepts")
	success := false
	defer func() { done(success) }()
	nodes := make([]apptype.ConceptNode, 0)
	rels := make([]apptype.ConceptRelationship, 0)
	seeds := uniqueSorted(names)
	if len(seeds) == 0 {
		success = true
		return nodes, rels, nil
	}
	if maxPerConcept <= 0 {
		maxPerConcept = defaultMaxPerConcept
	}

	sess := s.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)
	res, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, relatedCypher, map[string]any{"names": seeds, "max": int64(maxPerConcept)})
		if err != nil {
			return nil, err
		}
		return records.Collect(ctx)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query related concepts: %w", err)
	}
	seen := make(map[string]struct{})
	addNode := func(name, desc string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		nodes = append(nodes, apptype.ConceptNode{Name: name, Description: desc})
	}
	for _, rec := range res.([]*neo4j.Record) {
		m := rec.AsMap()
		src, dst := str(m["source"]), str(m["target"])
		addNode(src, str(m["source_description"]))
		addNode(dst, str(m["target_description"]))
		rels = append(rels, apptype.ConceptRelationship{Source: src, Target: dst, Type: str(m["type"])})
	}
	success = true
	return nodes, rels, nil
}

func eventFromRecord(rec *neo4j.Record) apptype.CandidateItem {
	m := rec.AsMap()
	ev := apptype.EventFields{
		Name:             str(m["name"]),
		Description:      str(m["description"]),
		StartDate:        toDate(m["start_date"]),
		Emotion:          str(m["emotion"]),
		EmotionIntensity: f64(m["emotion_intensity"]),
	}
	item := apptype.NewEvent(str(m["id"]), toFloat32s(m["embedding"]), ev)
	item.Similarity = f64(m["similarity"])
	item.TimeRelevance = f64(m["time_relevance"])
	item.CombinedScore = f64(m["combined_score"])
	return item
}

func claimFromRecord(rec *neo4j.Record) apptype.CandidateItem {
	m := rec.AsMap()
	cl := apptype.ClaimFields{Content: str(m["content"]), Source: str(m["source"]), Confidence: f64(m["confidence"])}
	item := apptype.NewClaim(str(m["id"]), toFloat32s(m["embedding"]), cl)
	item.Similarity = f64(m["similarity"])
	return item
}

// scoringParams feeds the event formula to Cypher. Without scoring the
// weights collapse the combined score to plain similarity.
func scoringParams(q apptype.CandidateQuery) map[string]any {
	sc := apptype.EventScoring{SimilarityWeight: 1, DefaultScale: 1, HistoricScale: 1, Today: time.Now().UTC()}
	if q.Scoring != nil {
		sc = *q.Scoring
	}
	return map[string]any{
		"mode":             string(q.Mode),
		"today":            sc.Today.Format(dateLayout),
		"simWeight":        sc.SimilarityWeight,
		"timeWeight":       sc.TimeWeight,
		"recentDecay":      sc.RecentDecay,
		"historicScale":    sc.HistoricScale,
		"defaultScale":     sc.DefaultScale,
		"undatedRelevance": sc.UndatedRelevance,
	}
}

func formatDate(t *time.Time, def string) string {
	if t == nil {
		return def
	}
	return t.Format(dateLayout)
}

func optionalDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func uniqueSorted(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
