package apptype

import (
	"strings"
	"time"
)

// DateRangeMode is the coarse temporal intent of a query.
type DateRangeMode string

const (
	DateRangeRecent      DateRangeMode = "recent"
	DateRangeLatest      DateRangeMode = "latest"
	DateRangeHistoric    DateRangeMode = "historic"
	DateRangeUnspecified DateRangeMode = "unspecified"
)

// ParseDateRangeMode maps free text onto a mode; unknown values are unspecified.
func ParseDateRangeMode(s string) DateRangeMode {
	switch DateRangeMode(strings.ToLower(strings.TrimSpace(s))) {
	case DateRangeRecent:
		return DateRangeRecent
	case DateRangeLatest:
		return DateRangeLatest
	case DateRangeHistoric:
		return DateRangeHistoric
	default:
		return DateRangeUnspecified
	}
}

// ReasoningType tags a chain-of-thought sub-question.
type ReasoningType string

const (
	ReasoningDeductive ReasoningType = "deductive"
	ReasoningInductive ReasoningType = "inductive"
	ReasoningAbductive ReasoningType = "abductive"
	ReasoningAbstract  ReasoningType = "abstract"
)

// Valid reports whether r is one of the known reasoning types.
func (r ReasoningType) Valid() bool {
	switch r {
	case ReasoningDeductive, ReasoningInductive, ReasoningAbductive, ReasoningAbstract:
		return true
	}
	return false
}

// Turn is one prior user/assistant exchange.
type Turn struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}

// Query is the raw caller input plus optional history.
type Query struct {
	Text           string `json:"question"`
	ConversationID string `json:"conversationId,omitempty"`
	History        []Turn `json:"history,omitempty"`
}

// CoTQuestion is a decomposed sub-question.
type CoTQuestion struct {
	Question       string          `json:"question"`
	ReasoningTypes []ReasoningType `json:"reasoning_types"`
}

// ReasoningLabel joins the reasoning types for prompts ("deductive, inductive").
func (q CoTQuestion) ReasoningLabel() string {
	parts := make([]string, len(q.ReasoningTypes))
	for i, r := range q.ReasoningTypes {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

// IdealMix holds per-query retrieval budgets.
type IdealMix struct {
	Events int `json:"events" yaml:"events"`
	Claims int `json:"claims" yaml:"claims"`
	Chunks int `json:"chunks" yaml:"chunks"`
}

// DefaultIdealMix is used whenever extraction does not supply a mix.
func DefaultIdealMix() IdealMix {
	return IdealMix{Events: 27, Claims: 27, Chunks: 3}
}

// QueryElements is the structured decomposition of a raw query.
type QueryElements struct {
	KeyEntities             []string      `json:"key_entities"`
	KeyConcepts             []string      `json:"key_concepts"`
	TimeReference           *string       `json:"time_reference"`
	ChainOfThoughtQuestions []CoTQuestion `json:"chain_of_thought_questions"`
	IdealMix                IdealMix      `json:"ideal_mix"`
	// Partial is set when the elements were recovered from malformed output.
	Partial bool `json:"partial,omitempty"`
}

// DefaultQueryElements is the all-defaults object.
func DefaultQueryElements() QueryElements {
	return QueryElements{
		KeyEntities:             []string{},
		KeyConcepts:             []string{},
		ChainOfThoughtQuestions: []CoTQuestion{},
		IdealMix:                DefaultIdealMix(),
	}
}

// CandidateKind discriminates CandidateItem.
type CandidateKind string

const (
	KindEvent CandidateKind = "event"
	KindClaim CandidateKind = "claim"
)

// EventFields are the event-only attributes of a candidate.
type EventFields struct {
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	Emotion          string     `json:"emotion,omitempty"`
	EmotionIntensity float64    `json:"emotion_intensity,omitempty"`
}

// ClaimFields are the claim-only attributes of a candidate.
type ClaimFields struct {
	Content    string  `json:"content"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// CandidateItem is a scored event or claim.
type CandidateItem struct {
	Kind          CandidateKind `json:"kind"`
	ID            string        `json:"id"`
	Embedding     []float32     `json:"-"`
	Similarity    float64       `json:"similarity"`
	TimeRelevance float64       `json:"time_relevance"`
	CombinedScore float64       `json:"combined_score"`
	Event         *EventFields  `json:"event,omitempty"`
	Claim         *ClaimFields  `json:"claim,omitempty"`
}

// NewEvent builds an event candidate.
func NewEvent(id string, embedding []float32, ev EventFields) CandidateItem {
	return CandidateItem{Kind: KindEvent, ID: id, Embedding: embedding, Event: &ev}
}

// NewClaim builds a claim candidate.
func NewClaim(id string, embedding []float32, cl ClaimFields) CandidateItem {
	return CandidateItem{Kind: KindClaim, ID: id, Embedding: embedding, Claim: &cl}
}

// ConceptNode is a concept in the graph, keyed by name.
type ConceptNode struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"-"`
}

// ConceptRelationship is a typed edge between two concepts.
type ConceptRelationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// TextExcerpt is a ranked free-text excerpt.
type TextExcerpt struct {
	Label      string  `json:"label"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// RetrievalResult is the main retrieval output for one query.
type RetrievalResult struct {
	Events        []CandidateItem       `json:"events"`
	Claims        []CandidateItem       `json:"claims"`
	Concepts      []ConceptNode         `json:"concepts"`
	Relationships []ConceptRelationship `json:"relationships"`
	Excerpts      []TextExcerpt         `json:"excerpts"`
}
