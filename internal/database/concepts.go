package database

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

// DefaultMaxPerConcept caps relationships returned per seed concept.
const DefaultMaxPerConcept = 7

const neighborsSQL = `SELECT c1.name, c1.description, r.relation_type, c2.name, c2.description
FROM concepts c1
JOIN concept_relations r ON r.source = c1.name OR r.target = c1.name
JOIN concepts c2 ON c2.name = CASE WHEN r.source = c1.name THEN r.target ELSE r.source END
WHERE c1.name = ?
ORDER BY c2.name, r.relation_type
LIMIT ?`

// RelatedConcepts resolves one-hop neighbours of the named concepts in either
// direction. Seeds are visited in name order, each contributing at most
// maxPerConcept edges reported as (seed, neighbour, type). Nodes are
// deduplicated by name; seeds without edges are omitted.
func (dm *DBManager) RelatedConcepts(ctx context.Context, projectName string, names []string, maxPerConcept int) ([]apptype.ConceptNode, []apptype.ConceptRelationship, error) {
	done := metrics.TimeOp("db_related_concepts")
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
		maxPerConcept = DefaultMaxPerConcept
	}
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, nil, err
	}
	stmt, err := dm.getPreparedStmt(ctx, projectName, db, neighborsSQL)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{})
	addNode := func(name, desc string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		nodes = append(nodes, apptype.ConceptNode{Name: name, Description: desc})
	}
	for _, seed := range seeds {
		rows, err := stmt.QueryContext(ctx, seed, maxPerConcept)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to query concept neighbours for %q: %w", seed, err)
		}
		for rows.Next() {
			var srcName, srcDesc, relType, dstName, dstDesc string
			if err := rows.Scan(&srcName, &srcDesc, &relType, &dstName, &dstDesc); err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("failed to scan concept relationship: %w", err)
			}
			addNode(srcName, srcDesc)
			addNode(dstName, dstDesc)
			rels = append(rels, apptype.ConceptRelationship{Source: srcName, Target: dstName, Type: relType})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, nil, err
		}
	}
	success = true
	return nodes, rels, nil
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

// UpsertConcepts inserts concepts or refreshes their descriptions.
func (dm *DBManager) UpsertConcepts(ctx context.Context, projectName string, concepts []apptype.ConceptNode) error {
	done := metrics.TimeOp("db_upsert_concepts")
	success := false
	defer func() { done(success) }()
	db, err := dm.getDB(projectName)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, c := range concepts {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("concept name cannot be empty")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO concepts (name, description) VALUES (?, ?)
            ON CONFLICT(name) DO UPDATE SET description = excluded.description`, c.Name, c.Description); err != nil {
			return fmt.Errorf("failed to upsert concept %q: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit concepts: %w", err)
	}
	success = true
	return nil
}

// UpsertConceptRelations records typed edges. Both endpoints must exist.
func (dm *DBManager) UpsertConceptRelations(ctx context.Context, projectName string, relations []apptype.ConceptRelationship) error {
	done := metrics.TimeOp("db_upsert_concept_relations")
	success := false
	defer func() { done(success) }()
	db, err := dm.getDB(projectName)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, r := range relations {
		if r.Source == "" || r.Target == "" || r.Type == "" {
			return fmt.Errorf("relation requires source, target and type")
		}
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM concepts WHERE name IN (?, ?)`, r.Source, r.Target).Scan(&n); err != nil {
			return fmt.Errorf("failed to check relation endpoints: %w", err)
		}
		want := 2
		if r.Source == r.Target {
			want = 1
		}
		if n != want {
			return fmt.Errorf("relation %s -%s-> %s references an unknown concept", r.Source, r.Type, r.Target)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO concept_relations (source, target, relation_type) VALUES (?, ?, ?)`,
			r.Source, r.Target, r.Type); err != nil {
			return fmt.Errorf("failed to insert relation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit relations: %w", err)
	}
	success = true
	return nil
}
