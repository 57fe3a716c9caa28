package redisstore

import (
	"context"
	"io"
	"log/slog"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore подключается к REDIS_ADDR, если он задан, иначе к miniredis в процессе
func openTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"
	s, err := Open(ctx, Options{Addr: addr, Prefix: prefix}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() {
		s.rdb.Del(ctx, s.ledger, s.profiles)
		s.Close()
	})
	return s
}

func TestRedisLedgerSetSemantics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, "A", "@news")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(ctx, "A", "@News")
	require.NoError(t, err)
	assert.False(t, added)

	removed, err := s.Remove(ctx, "A", "@news")
	require.NoError(t, err)
	assert.True(t, removed)

	targets, err := s.Targets(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, targets)

	require.NoError(t, s.Forget(ctx, "A"))
	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisProfiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	profiles := s.Profiles()

	p := domain.Profile{Phone: "+15550001234", UserID: "7", Username: "x", FirstName: "X", CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, profiles.Put(ctx, "X", p))

	got, ok, err := profiles.Get(ctx, "X")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)

	require.NoError(t, profiles.Delete(ctx, "X"))
	_, ok, err = profiles.Get(ctx, "X")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLedgerConcurrentAdds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Add(ctx, "A", fmt.Sprintf("@chan%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	targets, err := s.Targets(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, targets, n)
}

func TestRedisLedgerAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, "A", "@one")
	require.NoError(t, err)
	_, err = s.Add(ctx, "B", "@two")
	require.NoError(t, err)
	_, err = s.Add(ctx, "B", "@three")
	require.NoError(t, err)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"A": {"@one"}, "B": {"@two", "@three"}}, all)

	removed, err := s.Remove(ctx, "A", "@missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisLedgerCorruptEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.rdb.HSet(ctx, s.ledger, "A", "not json").Err())

	_, err := s.Targets(ctx, "A")
	assert.True(t, domain.IsKind(err, domain.KindPersistence))
	_, err = s.Add(ctx, "A", "@news")
	assert.True(t, domain.IsKind(err, domain.KindPersistence))
}

func TestRedisOpenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, Options{Addr: addr}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, domain.IsKind(err, domain.KindPersistence))
}
