package apptype

import "time"

// ProjectArgs provides a standard way to pass project context to tools.
type ProjectArgs struct {
	ProjectName string `json:"projectName,omitempty" jsonschema:"The name of the knowledge project to query. If not provided, the default project is used."`
}

// AskArgs represents the arguments for the ask tool
type AskArgs struct {
	ProjectArgs     ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Question        string      `json:"question" jsonschema:"The natural-language question to answer."`
	ConversationID  string      `json:"conversationId,omitempty" jsonschema:"Conversation whose stored history should be included."`
	History         []Turn      `json:"history,omitempty" jsonschema:"Inline prior turns; used instead of stored history when provided."`
	MaxCoTQuestions int         `json:"maxCoTQuestions,omitempty" jsonschema:"Maximum chain-of-thought sub-questions to fan out (default 2)."`
}

// AskResult is the aggregated streamed answer.
type AskResult struct {
	RequestID string `json:"requestId"`
	Answer    string `json:"answer"`
	Chunks    int    `json:"chunks"`
}

// RetrieveArgs represents the arguments for the retrieve_context tool
type RetrieveArgs struct {
	ProjectArgs ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Question    string      `json:"question" jsonschema:"Query text to embed and rank against."`
	Mode        string      `json:"mode,omitempty" jsonschema:"Date-range mode override: recent|latest|historic|unspecified. Derived from the question when omitted."`
	Events      int         `json:"events,omitempty" jsonschema:"Maximum events to return (default 27)."`
	Claims      int         `json:"claims,omitempty" jsonschema:"Maximum claims to return (default 27)."`
	Chunks      int         `json:"chunks,omitempty" jsonschema:"Maximum text excerpts to return (default 3)."`
	Concepts    []string    `json:"concepts,omitempty" jsonschema:"Concept names whose relationships should be resolved."`
}

// RetrieveResult is the structured output of retrieve_context.
type RetrieveResult struct {
	Mode   DateRangeMode   `json:"mode"`
	Result RetrievalResult `json:"result"`
}

// RelatedConceptsArgs represents the arguments for the related_concepts tool
type RelatedConceptsArgs struct {
	ProjectArgs   ProjectArgs `json:"projectArgs,omitempty" jsonschema:"Project context for the operation."`
	Names         []string    `json:"names" jsonschema:"Seed concept names (title case)."`
	MaxPerConcept int         `json:"maxPerConcept,omitempty" jsonschema:"Maximum relationships per seed concept (default 7)."`
}

// ConceptsResult represents the result of related_concepts.
type ConceptsResult struct {
	Concepts      []ConceptNode         `json:"concepts"`
	Relationships []ConceptRelationship `json:"relationships"`
}

// ExtractArgs represents the arguments for the extract_query tool
type ExtractArgs struct {
	Question     string `json:"question" jsonschema:"The raw query to decompose."`
	MaxQuestions int    `json:"maxQuestions,omitempty" jsonschema:"Cap on chain-of-thought sub-questions (default 2)."`
}

// ExtractResult pairs extracted elements with the keyword-derived mode.
type ExtractResult struct {
	Mode     DateRangeMode `json:"mode"`
	Elements QueryElements `json:"elements"`
}

// CandidateQuery is the graph-layer request for raw event and claim candidates.
// With Scoring set, stores keep the MaxItems events with the highest combined
// score; without it they keep the most similar.
type CandidateQuery struct {
	Vector         []float32
	Threshold      float64
	Mode           DateRangeMode
	Window         TimeWindow
	MaxItems       int
	IncludeUndated bool
	Scoring        *EventScoring
}

// TimeWindow bounds event start dates. Nil bounds are open.
type TimeWindow struct {
	NotBefore *time.Time
	NotAfter  *time.Time
	Before    *time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if w.NotBefore != nil && t.Before(*w.NotBefore) {
		return false
	}
	if w.NotAfter != nil && t.After(*w.NotAfter) {
		return false
	}
	if w.Before != nil && !t.Before(*w.Before) {
		return false
	}
	return true
}

// Health
type HealthArgs struct{}

type HealthResult struct {
	Name               string `json:"name"`
	Version            string `json:"version"`
	Revision           string `json:"revision"`
	BuildDate          string `json:"buildDate"`
	MultiProject       bool   `json:"multiProject"`
	EmbeddingDims      int    `json:"embeddingDims"`
	GraphBackend       string `json:"graphBackend"`
	ExcerptBackend     string `json:"excerptBackend"`
	HistoryBackend     string `json:"historyBackend"`
	LLMProvider        string `json:"llmProvider"`
	EmbeddingsProvider string `json:"embeddingsProvider"`
}
