package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

// RedisStore keeps each conversation as a list of JSON turns at
// conversation:{id}:turns.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// NewRedisStoreFromURL parses a redis:// URL.
func NewRedisStoreFromURL(rawURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return NewRedisStore(redis.NewClient(opt)), nil
}

func key(id string) string { return "conversation:" + id + ":turns" }

func (s *RedisStore) Load(ctx context.Context, id string) ([]apptype.Turn, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	raw, err := s.rdb.LRange(ctx, key(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history %s: %w", id, err)
	}
	turns := make([]apptype.Turn, 0, len(raw))
	for i, r := range raw {
		var t apptype.Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("failed to parse history %s entry %d: %w", id, i, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, id string, turn apptype.Turn) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	b, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to encode turn: %w", err)
	}
	if err := s.rdb.RPush(ctx, key(id), b).Err(); err != nil {
		return fmt.Errorf("failed to append history %s: %w", id, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
