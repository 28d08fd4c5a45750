package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conversation_histories")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	turns, err := s.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, s.Append(ctx, "c1", apptype.Turn{User: "hi", AI: "hello"}))
	require.NoError(t, s.Append(ctx, "c1", apptype.Turn{User: "why?", AI: "because"}))
	turns, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []apptype.Turn{{User: "hi", AI: "hello"}, {User: "why?", AI: "because"}}, turns)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte(`[{"user":"u","ai":"a"}]`), 0o600))
	turns, err = s.Load(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, []apptype.Turn{{User: "u", AI: "a"}}, turns)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0o600))
	_, err = s.Load(ctx, "broken")
	require.Error(t, err)
}

func TestValidateID(t *testing.T) {
	for _, bad := range []string{"", "..", "../etc/passwd", "a/b", "a b"} {
		assert.Error(t, ValidateID(bad), bad)
	}
	for _, ok := range []string{"abc", "conv-1", "2024.01_x"} {
		assert.NoError(t, ValidateID(ok), ok)
	}
}

func TestRedisStore(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	defer m.Close()

	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	turns, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, s.Append(ctx, "c1", apptype.Turn{User: "hi", AI: "hello"}))
	require.NoError(t, s.Append(ctx, "c1", apptype.Turn{User: "more", AI: "sure"}))
	turns, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []apptype.Turn{{User: "hi", AI: "hello"}, {User: "more", AI: "sure"}}, turns)

	items, err := m.List("conversation:c1:turns")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = m.Lpush("conversation:bad:turns", "not json")
	require.NoError(t, err)
	_, err = s.Load(ctx, "bad")
	require.Error(t, err)
}

func TestTrimLatest(t *testing.T) {
	assert.Empty(t, TrimLatest(nil))
	assert.Equal(t, []apptype.Turn{{User: "a"}}, TrimLatest([]apptype.Turn{{User: "a"}, {User: "b"}}))
}

func TestOpen(t *testing.T) {
	s, closeFn, err := Open(Config{Backend: "none"})
	require.NoError(t, err)
	defer closeFn()
	turns, err := s.Load(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, turns)

	_, _, err = Open(Config{Backend: "mongo"})
	require.Error(t, err)

	_, _, err = Open(Config{Backend: "file", Dir: t.TempDir()})
	require.NoError(t, err)
}
