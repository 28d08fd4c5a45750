package mindgraph

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/excerpts"
)

// Re-exported so callers outside this module can build queries and seed data.
type (
	Query               = apptype.Query
	Turn                = apptype.Turn
	CandidateItem       = apptype.CandidateItem
	EventFields         = apptype.EventFields
	ClaimFields         = apptype.ClaimFields
	ConceptNode         = apptype.ConceptNode
	ConceptRelationship = apptype.ConceptRelationship
	Excerpt             = excerpts.Document
)

// UpsertCandidates stores events and claims in the project's graph.
func (s *Service) UpsertCandidates(ctx context.Context, project string, items []CandidateItem) error {
	project, err := s.resolveProject(project)
	if err != nil {
		return err
	}
	if s.neo != nil {
		return s.neo.UpsertCandidates(ctx, items)
	}
	var events, claims []CandidateItem
	for _, it := range items {
		switch it.Kind {
		case apptype.KindEvent:
			events = append(events, it)
		case apptype.KindClaim:
			claims = append(claims, it)
		default:
			return fmt.Errorf("unknown candidate kind %q for %s", it.Kind, it.ID)
		}
	}
	if len(events) > 0 {
		if err := s.dm.UpsertEvents(ctx, project, events); err != nil {
			return err
		}
	}
	if len(claims) > 0 {
		return s.dm.UpsertClaims(ctx, project, claims)
	}
	return nil
}

// UpsertConcepts stores concept nodes.
func (s *Service) UpsertConcepts(ctx context.Context, project string, concepts []ConceptNode) error {
	project, err := s.resolveProject(project)
	if err != nil {
		return err
	}
	if s.neo != nil {
		return s.neo.UpsertConcepts(ctx, concepts)
	}
	return s.dm.UpsertConcepts(ctx, project, concepts)
}

// UpsertConceptRelations stores typed edges between concepts.
func (s *Service) UpsertConceptRelations(ctx context.Context, project string, rels []ConceptRelationship) error {
	project, err := s.resolveProject(project)
	if err != nil {
		return err
	}
	if s.neo != nil {
		return s.neo.UpsertConceptRelations(ctx, rels)
	}
	return s.dm.UpsertConceptRelations(ctx, project, rels)
}

// UpsertExcerpts stores excerpts when the configured index is writable.
func (s *Service) UpsertExcerpts(ctx context.Context, project string, docs []Excerpt) error {
	project, err := s.resolveProject(project)
	if err != nil {
		return err
	}
	idx := s.shared
	if idx == nil {
		idx = excerpts.LibSQL(s.dm, project)
	}
	w, ok := idx.(excerpts.Writer)
	if !ok {
		return fmt.Errorf("excerpt backend %q is read-only", s.xcfg.Backend)
	}
	return w.UpsertExcerpts(ctx, docs)
}

// Constructors for seeded items.
var (
	NewEvent = apptype.NewEvent
	NewClaim = apptype.NewClaim
)
