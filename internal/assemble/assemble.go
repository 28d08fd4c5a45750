// Package assemble composes the bounded answer prompt from ranked knowledge.
package assemble

import (
	"slices"
	"strings"
	"unicode/utf8"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

const (
	DefaultMaxChars = 100000
	// TruncationMarker is appended after a hard cut.
	TruncationMarker = "...[truncated]"
)

// Config bounds the prompt length in runes.
type Config struct {
	MaxChars int
}

// NewConfig reads CONTEXT_MAX_CHARS, then context.max_chars from the tuning file.
func NewConfig() (Config, error) {
	cfg := Config{MaxChars: config.GetInt("CONTEXT_MAX_CHARS", DefaultMaxChars)}
	t, err := config.TuningFromEnv()
	if err != nil {
		return cfg, err
	}
	if t.Context.MaxChars != nil {
		cfg.MaxChars = *t.Context.MaxChars
	}
	return cfg, nil
}

// Input is everything that goes into one prompt.
type Input struct {
	Relationships []apptype.ConceptRelationship
	Events        []apptype.CandidateItem
	Claims        []apptype.CandidateItem
	Excerpts      []apptype.TextExcerpt
	CoTAnswers    []string
	History       []apptype.Turn
	Query         string
}

// Output is the assembled prompt. Length counts runes.
type Output struct {
	Prompt    string
	Truncated bool
	Length    int
}

type Assembler struct {
	cfg Config
}

func New(cfg Config) *Assembler {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	return &Assembler{cfg: cfg}
}

// Build renders every section in order, then hard-cuts at the budget.
func (a *Assembler) Build(in Input) Output {
	var sb strings.Builder
	sb.WriteString("# Information From Your Mind\n\n")
	WriteConceptMap(&sb, in.Relationships)
	writeEmotions(&sb, in.Events)
	sb.WriteString("## Memory\n")
	WriteEvents(&sb, in.Events)
	sb.WriteString("## Ideas\n")
	WriteClaims(&sb, in.Claims)
	writeExcerpts(&sb, in.Excerpts)
	sb.WriteString("# Chain-of-Thoughts Reasoning\n")
	for _, ans := range in.CoTAnswers {
		sb.WriteString(ans)
		sb.WriteString("\n")
	}
	writeHistory(&sb, in.History)
	sb.WriteString("\nUser: ")
	sb.WriteString(in.Query)
	sb.WriteString("\n\nAI: ")

	out := Truncate(sb.String(), a.cfg.MaxChars)
	metrics.Default().ObserveContextChars(out.Length, out.Truncated)
	return out
}

// Truncate cuts s to limit runes and appends TruncationMarker when it is
// longer. A negative limit counts as zero.
func Truncate(s string, limit int) Output {
	limit = max(limit, 0)
	n := utf8.RuneCountInString(s)
	if n <= limit {
		return Output{Prompt: s, Length: n}
	}
	cut := 0
	for i := range s {
		if cut == limit {
			s = s[:i]
			break
		}
		cut++
	}
	p := s + TruncationMarker
	return Output{Prompt: p, Truncated: true, Length: limit + utf8.RuneCountInString(TruncationMarker)}
}

// WriteConceptMap renders "Source type Target." lines.
func WriteConceptMap(sb *strings.Builder, rels []apptype.ConceptRelationship) {
	sb.WriteString("## Concept Map\n\n")
	if len(rels) == 0 {
		sb.WriteString("No relevant concept relationships found.\n")
		return
	}
	for _, r := range rels {
		sb.WriteString(r.Source)
		sb.WriteString(" ")
		sb.WriteString(r.Type)
		sb.WriteString(" ")
		sb.WriteString(r.Target)
		sb.WriteString(".\n")
	}
}

func writeEmotions(sb *strings.Builder, events []apptype.CandidateItem) {
	emotions := make([]string, 0)
	for _, e := range events {
		if e.Event != nil && e.Event.Emotion != "" {
			emotions = append(emotions, e.Event.Emotion)
		}
	}
	slices.Sort(emotions)
	emotions = slices.Compact(emotions)
	sb.WriteString("\n## Emotional Context\n")
	sb.WriteString(strings.Join(emotions, ", "))
	sb.WriteString(".\n\n")
}

// WriteEvents renders "name: description" with optional emotion and start_date lines.
func WriteEvents(sb *strings.Builder, events []apptype.CandidateItem) {
	for _, e := range events {
		if e.Event == nil {
			continue
		}
		name := orDefault(e.Event.Name, "Unnamed Event")
		desc := orDefault(e.Event.Description, "No description.")
		sb.WriteString(name + ": " + desc + "\n")
		if e.Event.Emotion != "" {
			sb.WriteString("  emotion: " + e.Event.Emotion + "\n")
		}
		if e.Event.StartDate != nil {
			sb.WriteString("  start_date: " + e.Event.StartDate.Format("2006-01-02") + "\n")
		}
		sb.WriteString("\n")
	}
}

// WriteClaims renders claim content with an optional source line.
func WriteClaims(sb *strings.Builder, claims []apptype.CandidateItem) {
	for _, c := range claims {
		if c.Claim == nil {
			continue
		}
		sb.WriteString(orDefault(c.Claim.Content, "No content") + "\n")
		if c.Claim.Source != "" {
			sb.WriteString("  source: " + c.Claim.Source + "\n")
		}
		sb.WriteString("\n")
	}
}

// writeExcerpts groups excerpts by label in first-seen order.
func writeExcerpts(sb *strings.Builder, excerpts []apptype.TextExcerpt) {
	sb.WriteString("## Knowledge From Books You Have Read\n\n")
	groups := orderedmap.New[string, []string]()
	for _, x := range excerpts {
		label := orDefault(x.Label, "Unknown Source")
		prev, _ := groups.Get(label)
		groups.Set(label, append(prev, x.Content))
	}
	for pair := groups.Oldest(); pair != nil; pair = pair.Next() {
		sb.WriteString("From " + pair.Key + ":\n\n")
		for _, content := range pair.Value {
			sb.WriteString(content)
			sb.WriteString("\n\n")
		}
	}
}

func writeHistory(sb *strings.Builder, turns []apptype.Turn) {
	sb.WriteString("\n# Conversation History\n")
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, "User: "+t.User+"\nAI: "+t.AI)
	}
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
