package neo4jstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

var relTypeRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// UpsertCandidates merges events and claims by id.
func (s *Store) UpsertCandidates(ctx context.Context, items []apptype.CandidateItem) error {
	events := make([]map[string]any, 0)
	claims := make([]map[string]any, 0)
	for i, it := range items {
		if it.ID == "" || len(it.Embedding) == 0 {
			return fmt.Errorf("item %d requires id and embedding", i)
		}
		emb := make([]float64, len(it.Embedding))
		for j, v := range it.Embedding {
			emb[j] = float64(v)
		}
		switch {
		case it.Kind == apptype.KindEvent && it.Event != nil:
			events = append(events, map[string]any{
				"id":         it.ID,
				"embedding":  emb,
				"start_date": optionalDate(it.Event.StartDate),
				"props": map[string]any{
					"name":              it.Event.Name,
					"description":       it.Event.Description,
					"emotion":           it.Event.Emotion,
					"emotion_intensity": it.Event.EmotionIntensity,
				},
			})
		case it.Kind == apptype.KindClaim && it.Claim != nil:
			claims = append(claims, map[string]any{
				"id":        it.ID,
				"embedding": emb,
				"props": map[string]any{
					"content":    it.Claim.Content,
					"source":     it.Claim.Source,
					"confidence": it.Claim.Confidence,
				},
			})
		default:
			return fmt.Errorf("item %d has kind %q without fields", i, it.Kind)
		}
	}
	if len(events) > 0 {
		if err := s.write(ctx, `UNWIND $rows AS row
MERGE (n:Event {id: row.id})
SET n += row.props, n.embedding = row.embedding,
    n.start_date = CASE WHEN row.start_date IS NULL THEN null ELSE date(row.start_date) END`,
			map[string]any{"rows": events}); err != nil {
			return err
		}
	}
	if len(claims) > 0 {
		return s.write(ctx, `UNWIND $rows AS row
MERGE (n:Claim {id: row.id})
SET n += row.props, n.embedding = row.embedding`, map[string]any{"rows": claims})
	}
	return nil
}

// UpsertConcepts merges concepts by name.
func (s *Store) UpsertConcepts(ctx context.Context, concepts []apptype.ConceptNode) error {
	rows := make([]map[string]any, 0, len(concepts))
	for _, c := range concepts {
		if c.Name == "" {
			return fmt.Errorf("concept name cannot be empty")
		}
		rows = append(rows, map[string]any{"name": c.Name, "description": c.Description})
	}
	return s.write(ctx, `UNWIND $rows AS row
MERGE (c:Concept {name: row.name}) SET c.description = row.description`, map[string]any{"rows": rows})
}

// UpsertConceptRelations merges typed edges. Relationship types cannot be
// parameterised in Cypher, so they are validated and inlined.
func (s *Store) UpsertConceptRelations(ctx context.Context, relations []apptype.ConceptRelationship) error {
	for _, r := range relations {
		if !relTypeRe.MatchString(r.Type) {
			return fmt.Errorf("invalid relationship type %q", r.Type)
		}
		cypher := fmt.Sprintf(`MATCH (a:Concept {name: $source}), (b:Concept {name: $target})
MERGE (a)-[:%s]->(b)
RETURN count(*) AS n`, r.Type)
		if err := s.write(ctx, cypher, map[string]any{"source": r.Source, "target": r.Target}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) write(ctx context.Context, cypher string, params map[string]any) error {
	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)
	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to write to neo4j: %w", err)
	}
	return nil
}
