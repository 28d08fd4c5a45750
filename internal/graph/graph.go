// Package graph is the narrow query surface over the knowledge graph plus the
// candidate retrieval step that feeds the ranker.
package graph

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/database"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/ranking"
)

// DefaultPoolFactor scales the ranked caps into the store's candidate limit.
const DefaultPoolFactor = 4

// Store is implemented by the libSQL and Neo4j backends.
type Store interface {
	TopCandidates(ctx context.Context, q apptype.CandidateQuery) ([]apptype.CandidateItem, error)
	RelatedConcepts(ctx context.Context, names []string, maxPerConcept int) ([]apptype.ConceptNode, []apptype.ConceptRelationship, error)
}

type libsqlStore struct {
	dm      *database.DBManager
	project string
}

// LibSQL binds a DBManager to one project.
func LibSQL(dm *database.DBManager, project string) Store {
	return &libsqlStore{dm: dm, project: project}
}

func (s *libsqlStore) TopCandidates(ctx context.Context, q apptype.CandidateQuery) ([]apptype.CandidateItem, error) {
	return s.dm.TopCandidates(ctx, s.project, q)
}

func (s *libsqlStore) RelatedConcepts(ctx context.Context, names []string, maxPerConcept int) ([]apptype.ConceptNode, []apptype.ConceptRelationship, error) {
	return s.dm.RelatedConcepts(ctx, s.project, names, maxPerConcept)
}

// Retriever fetches a candidate pool from a Store and ranks it.
type Retriever struct {
	store      Store
	ranker     *ranking.Ranker
	poolFactor int
}

// NewRetriever reads CANDIDATE_POOL_FACTOR when poolFactor <= 0.
func NewRetriever(store Store, ranker *ranking.Ranker, poolFactor int) *Retriever {
	if poolFactor <= 0 {
		poolFactor = config.GetInt("CANDIDATE_POOL_FACTOR", DefaultPoolFactor)
	}
	if poolFactor <= 0 {
		poolFactor = DefaultPoolFactor
	}
	return &Retriever{store: store, ranker: ranker, poolFactor: poolFactor}
}

// Store returns the underlying graph store.
func (r *Retriever) Store() Store { return r.store }

// Ranked returns the top maxEvents events and maxClaims claims for vec. The
// store selects its event pool by the ranker's combined score.
func (r *Retriever) Ranked(ctx context.Context, vec []float32, mode apptype.DateRangeMode, maxEvents, maxClaims int) ([]apptype.CandidateItem, []apptype.CandidateItem, error) {
	limit := max(maxEvents, maxClaims)
	if limit <= 0 {
		return []apptype.CandidateItem{}, []apptype.CandidateItem{}, nil
	}
	today := r.ranker.Today()
	scoring := r.ranker.Scoring(today)
	q := apptype.CandidateQuery{
		Vector:         vec,
		Threshold:      r.ranker.Config().SimilarityThreshold,
		Mode:           mode,
		Window:         r.ranker.Window(mode, today),
		MaxItems:       limit * r.poolFactor,
		IncludeUndated: r.ranker.KeepsUndated(mode),
		Scoring:        &scoring,
	}
	candidates, err := r.store.TopCandidates(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve candidates: %w", err)
	}
	events, claims := r.ranker.Rank(vec, mode, candidates, maxEvents, maxClaims)
	return events, claims, nil
}

// Related resolves the concept neighbourhood of names.
func (r *Retriever) Related(ctx context.Context, names []string, maxPerConcept int) ([]apptype.ConceptNode, []apptype.ConceptRelationship, error) {
	nodes, rels, err := r.store.RelatedConcepts(ctx, names, maxPerConcept)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve related concepts: %w", err)
	}
	return nodes, rels, nil
}
