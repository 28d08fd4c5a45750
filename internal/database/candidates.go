package database

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

const dateLayout = "2006-01-02"

// similarity prefilter slack; the ranker recomputes cosine in float64
const thresholdSlack = 1e-6

const topEventsSQL = `SELECT id, name, description, start_date, emotion, emotion_intensity, embedding, similarity FROM (
    SELECT id, name, description, start_date, emotion, emotion_intensity, embedding,
           1 - vector_distance_cos(embedding, vector32(?)) AS similarity
    FROM events
    WHERE embedding IS NOT NULL AND embedding != vector32(?)
      AND ((start_date IS NULL AND ? = 1)
           OR (start_date >= ? AND start_date <= ? AND start_date < ?))
) WHERE similarity >= ?
ORDER BY similarity DESC`

const topClaimsSQL = `SELECT id, content, source, confidence, embedding, similarity FROM (
    SELECT id, content, source, confidence, embedding,
           1 - vector_distance_cos(embedding, vector32(?)) AS similarity
    FROM claims
    WHERE embedding IS NOT NULL AND embedding != vector32(?)
) WHERE similarity >= ?
ORDER BY similarity DESC
LIMIT ?`

// TopCandidates returns up to q.MaxItems events and q.MaxItems claims whose
// similarity to q.Vector clears q.Threshold. Events are filtered by q.Window
// in SQL, then cut to the best q.MaxItems by q.Scoring when it is set.
// Undated events are returned only with q.IncludeUndated.
func (dm *DBManager) TopCandidates(ctx context.Context, projectName string, q apptype.CandidateQuery) ([]apptype.CandidateItem, error) {
	done := metrics.TimeOp("db_top_candidates")
	success := false
	defer func() { done(success) }()
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, err
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("search embedding cannot be empty")
	}
	vectorString, err := dm.vectorToString(q.Vector)
	if err != nil {
		return nil, fmt.Errorf("failed to convert search embedding: %w", err)
	}
	zero := dm.vectorZeroString()
	limit := q.MaxItems
	if limit <= 0 {
		limit = -1
	}
	threshold := q.Threshold - thresholdSlack

	events, err := dm.topEvents(ctx, projectName, db, q, vectorString, zero, threshold, limit)
	if err != nil {
		return nil, err
	}
	claims, err := dm.topClaims(ctx, projectName, db, vectorString, zero, threshold, limit)
	if err != nil {
		return nil, err
	}
	success = true
	return append(events, claims...), nil
}

func (dm *DBManager) topEvents(ctx context.Context, projectName string, db *sql.DB, q apptype.CandidateQuery, vec, zero string, threshold float64, limit int) ([]apptype.CandidateItem, error) {
	notBefore, notAfter, before := "0000-01-01", "9999-12-31", "9999-12-31"
	if q.Window.NotBefore != nil {
		notBefore = q.Window.NotBefore.Format(dateLayout)
	}
	if q.Window.NotAfter != nil {
		notAfter = q.Window.NotAfter.Format(dateLayout)
	}
	if q.Window.Before != nil {
		before = q.Window.Before.Format(dateLayout)
	}
	undated := 0
	if q.IncludeUndated {
		undated = 1
	}

	stmt, err := dm.getPreparedStmt(ctx, projectName, db, topEventsSQL)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, vec, zero, undated, notBefore, notAfter, before, threshold)
	if err != nil {
		return nil, vectorQueryError("events", err)
	}
	defer rows.Close()

	out := make([]apptype.CandidateItem, 0)
	for rows.Next() {
		var (
			id, name, description, emotion string
			startDate                      sql.NullString
			intensity, similarity          float64
			blob                           []byte
		)
		if err := rows.Scan(&id, &name, &description, &startDate, &emotion, &intensity, &blob, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		vector, err := dm.ExtractVector(blob)
		if err != nil {
			log.Warn().Err(err).Str("event", id).Msg("skipping event with unreadable embedding")
			continue
		}
		ev := apptype.EventFields{Name: name, Description: description, Emotion: emotion, EmotionIntensity: intensity}
		if startDate.Valid && startDate.String != "" {
			t, err := time.Parse(dateLayout, startDate.String)
			if err != nil {
				log.Warn().Err(err).Str("event", id).Msg("skipping event with malformed start_date")
				continue
			}
			ev.StartDate = &t
		}
		item := apptype.NewEvent(id, vector, ev)
		item.Similarity = similarity
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return bestEvents(out, q, limit), nil
}

// bestEvents keeps the top limit events, by combined score when q carries
// scoring and by similarity otherwise. A negative limit keeps everything.
func bestEvents(events []apptype.CandidateItem, q apptype.CandidateQuery, limit int) []apptype.CandidateItem {
	if q.Scoring != nil {
		for i := range events {
			events[i].CombinedScore, events[i].TimeRelevance = q.Scoring.Combined(q.Mode, events[i].Similarity, events[i].Event.StartDate)
		}
		slices.SortStableFunc(events, func(a, b apptype.CandidateItem) int {
			return cmp.Compare(b.CombinedScore, a.CombinedScore)
		})
	}
	if limit >= 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

func (dm *DBManager) topClaims(ctx context.Context, projectName string, db *sql.DB, vec, zero string, threshold float64, limit int) ([]apptype.CandidateItem, error) {
	stmt, err := dm.getPreparedStmt(ctx, projectName, db, topClaimsSQL)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, vec, zero, threshold, limit)
	if err != nil {
		return nil, vectorQueryError("claims", err)
	}
	defer rows.Close()

	out := make([]apptype.CandidateItem, 0)
	for rows.Next() {
		var (
			id, content, source    string
			confidence, similarity float64
			blob                   []byte
		)
		if err := rows.Scan(&id, &content, &source, &confidence, &blob, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		vector, err := dm.ExtractVector(blob)
		if err != nil {
			log.Warn().Err(err).Str("claim", id).Msg("skipping claim with unreadable embedding")
			continue
		}
		item := apptype.NewClaim(id, vector, apptype.ClaimFields{Content: content, Source: source, Confidence: confidence})
		item.Similarity = similarity
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claims: %w", err)
	}
	return out, nil
}

func vectorQueryError(what string, err error) error {
	low := strings.ToLower(err.Error())
	if strings.Contains(low, "no such function: vector_distance_cos") || strings.Contains(low, "no such function: vector32") {
		return fmt.Errorf("{\"error\":{\"code\":\"VECTOR_SEARCH_UNSUPPORTED\",\"message\":\"Vector search functions are unavailable in this libSQL build\"}}")
	}
	return fmt.Errorf("failed to execute %s similarity search: %w", what, err)
}

// UpsertEvents inserts or replaces events. Missing embeddings are generated
// from "name: description" when a provider is configured.
func (dm *DBManager) UpsertEvents(ctx context.Context, projectName string, items []apptype.CandidateItem) error {
	done := metrics.TimeOp("db_upsert_events")
	success := false
	defer func() { done(success) }()
	texts := make([]string, len(items))
	vecs := make([][]float32, len(items))
	for i, it := range items {
		if it.Kind != apptype.KindEvent || it.Event == nil {
			return fmt.Errorf("item %d is not an event", i)
		}
		if it.ID == "" || strings.TrimSpace(it.Event.Name) == "" {
			return fmt.Errorf("event %d requires id and name", i)
		}
		texts[i] = strings.TrimSpace(it.Event.Name + ": " + it.Event.Description)
		vecs[i] = it.Embedding
	}
	if err := dm.embedMissing(ctx, texts, vecs); err != nil {
		return err
	}
	db, err := dm.getDB(projectName)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, it := range items {
		vs, err := dm.vectorToString(vecs[i])
		if err != nil {
			return fmt.Errorf("failed to convert embedding for event %q: %w", it.ID, err)
		}
		var start sql.NullString
		if it.Event.StartDate != nil {
			start = sql.NullString{String: it.Event.StartDate.UTC().Format(dateLayout), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO events (id, name, description, start_date, emotion, emotion_intensity, embedding)
            VALUES (?, ?, ?, ?, ?, ?, vector32(?))
            ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                description = excluded.description,
                start_date = excluded.start_date,
                emotion = excluded.emotion,
                emotion_intensity = excluded.emotion_intensity,
                embedding = excluded.embedding`,
			it.ID, it.Event.Name, it.Event.Description, start, it.Event.Emotion, it.Event.EmotionIntensity, vs)
		if err != nil {
			return fmt.Errorf("failed to upsert event %q: %w", it.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	success = true
	return nil
}

// UpsertClaims inserts or replaces claims, embedding content when needed.
func (dm *DBManager) UpsertClaims(ctx context.Context, projectName string, items []apptype.CandidateItem) error {
	done := metrics.TimeOp("db_upsert_claims")
	success := false
	defer func() { done(success) }()
	texts := make([]string, len(items))
	vecs := make([][]float32, len(items))
	for i, it := range items {
		if it.Kind != apptype.KindClaim || it.Claim == nil {
			return fmt.Errorf("item %d is not a claim", i)
		}
		if it.ID == "" || strings.TrimSpace(it.Claim.Content) == "" {
			return fmt.Errorf("claim %d requires id and content", i)
		}
		texts[i] = it.Claim.Content
		vecs[i] = it.Embedding
	}
	if err := dm.embedMissing(ctx, texts, vecs); err != nil {
		return err
	}
	db, err := dm.getDB(projectName)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, it := range items {
		vs, err := dm.vectorToString(vecs[i])
		if err != nil {
			return fmt.Errorf("failed to convert embedding for claim %q: %w", it.ID, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO claims (id, content, source, confidence, embedding)
            VALUES (?, ?, ?, ?, vector32(?))
            ON CONFLICT(id) DO UPDATE SET
                content = excluded.content,
                source = excluded.source,
                confidence = excluded.confidence,
                embedding = excluded.embedding`,
			it.ID, it.Claim.Content, it.Claim.Source, it.Claim.Confidence, vs)
		if err != nil {
			return fmt.Errorf("failed to upsert claim %q: %w", it.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit claims: %w", err)
	}
	success = true
	return nil
}
