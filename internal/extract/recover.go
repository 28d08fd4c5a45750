package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

const jsonString = `"((?:[^"\\]|\\.)*)"`

var (
	entitiesRe  = regexp.MustCompile(`(?s)"key_entities"\s*:\s*\[(.*?)\]`)
	conceptsRe  = regexp.MustCompile(`(?s)"key_concepts"\s*:\s*\[(.*?)\]`)
	timeRefRe   = regexp.MustCompile(`"time_reference"\s*:\s*` + jsonString)
	questionRe  = regexp.MustCompile(`(?s)"question"\s*:\s*` + jsonString + `(?:\s*,\s*"reasoning_types"\s*:\s*\[([^\]]*)\])?`)
	stringLitRe = regexp.MustCompile(jsonString)
)

// Recover pulls whatever fields it can out of a malformed or truncated reply.
// ok is false when nothing usable was found.
func Recover(raw string, defMix apptype.IdealMix) (apptype.QueryElements, bool) {
	el := defaults(defMix)
	found := false
	if m := entitiesRe.FindStringSubmatch(raw); m != nil {
		el.KeyEntities = stringsIn(m[1])
		found = found || len(el.KeyEntities) > 0
	}
	if m := conceptsRe.FindStringSubmatch(raw); m != nil {
		el.KeyConcepts = stringsIn(m[1])
		found = found || len(el.KeyConcepts) > 0
	}
	if m := timeRefRe.FindStringSubmatch(raw); m != nil {
		if tr := unquote(m[1]); tr != "" {
			el.TimeReference = &tr
			found = true
		}
	}
	for _, m := range questionRe.FindAllStringSubmatch(raw, -1) {
		q := toQuestion(unquote(m[1]), stringsIn(m[2]))
		if q.Question != "" {
			el.ChainOfThoughtQuestions = append(el.ChainOfThoughtQuestions, q)
			found = true
		}
	}
	el.Partial = found
	return el, found
}

func stringsIn(s string) []string {
	out := make([]string, 0)
	for _, m := range stringLitRe.FindAllStringSubmatch(s, -1) {
		out = append(out, unquote(m[1]))
	}
	return out
}

func unquote(s string) string {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return strings.TrimSpace(u)
	}
	return strings.TrimSpace(s)
}
