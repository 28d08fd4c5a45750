// Package history loads prior conversation turns by conversation id.
package history

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

// Store loads and appends conversation turns. Unknown ids have empty history.
type Store interface {
	Load(ctx context.Context, conversationID string) ([]apptype.Turn, error)
	Append(ctx context.Context, conversationID string, turn apptype.Turn) error
}

var idRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ValidateID rejects ids that could escape the history directory or key space.
func ValidateID(id string) error {
	if !idRe.MatchString(id) || strings.Trim(id, ".") == "" {
		return fmt.Errorf("invalid conversation id %q", id)
	}
	return nil
}

// Config selects the backend.
type Config struct {
	Backend     string
	Dir         string
	RedisURL    string
	TrimLatest  bool
	AppendTurns bool
}

// NewConfig reads HISTORY_BACKEND (file|redis|none, default file),
// HISTORY_DIR, REDIS_URL, HISTORY_TRIM_LATEST (default true) and
// HISTORY_APPEND (default false).
func NewConfig() Config {
	return Config{
		Backend:     strings.ToLower(config.GetString("HISTORY_BACKEND", "file")),
		Dir:         config.GetString("HISTORY_DIR", "conversation_histories"),
		RedisURL:    config.GetString("REDIS_URL", "redis://localhost:6379/0"),
		TrimLatest:  config.GetBool("HISTORY_TRIM_LATEST", true),
		AppendTurns: config.GetBool("HISTORY_APPEND", false),
	}
}

// Open builds the configured store. The close function is never nil.
func Open(cfg Config) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "file":
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "redis":
		s, err := NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "none":
		return None{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

// TrimLatest drops the final turn. Callers that record the current question
// before asking use it so the question is not repeated in the prompt.
func TrimLatest(turns []apptype.Turn) []apptype.Turn {
	if len(turns) == 0 {
		return turns
	}
	return turns[:len(turns)-1]
}

// None keeps no history.
type None struct{}

func (None) Load(context.Context, string) ([]apptype.Turn, error) { return []apptype.Turn{}, nil }
func (None) Append(context.Context, string, apptype.Turn) error   { return nil }
