package dedup

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

var reliance = types.IdentityKey{Symbol: "reliance", Quarter: 3, FiscalYear: 2025}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func newBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
		"badger": newBadgerStore(t),
	}
}

func TestGateKey(t *testing.T) {
	g := NewGate(NewMemoryStore())
	assert.Equal(t, "processed:RELIANCE:Q3FY2025", g.Key(reliance))

	g = NewGate(NewMemoryStore(), WithPrefix("seen"))
	assert.Equal(t, "seen:RELIANCE:Q3FY2025", g.Key(reliance))
}

func TestAdmitSequential(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			g := NewGate(store)
			ctx := context.Background()

			first, err := g.Admit(ctx, reliance)
			require.NoError(t, err)
			second, err := g.Admit(ctx, reliance)
			require.NoError(t, err)

			assert.True(t, first)
			assert.False(t, second)

			other, err := g.Admit(ctx, types.IdentityKey{Symbol: "RELIANCE", Quarter: 4, FiscalYear: 2025})
			require.NoError(t, err)
			assert.True(t, other, "a different period is a different identity")
		})
	}
}

func TestAdmitConcurrent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			g := NewGate(store)
			var admitted atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := g.Admit(context.Background(), reliance)
					assert.NoError(t, err)
					if ok {
						admitted.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), admitted.Load())
		})
	}
}

func TestRedisExpiryAllowsReadmission(t *testing.T) {
	store, mr := newRedisStore(t)
	g := NewGate(store, WithTTL(time.Minute))
	ctx := context.Background()

	ok, err := g.Admit(ctx, reliance)
	require.NoError(t, err)
	require.True(t, ok)

	ttl := mr.TTL(g.Key(reliance))
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(61 * time.Second)
	ok, err = g.Admit(ctx, reliance)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	g := NewGate(store, WithTTL(time.Hour))
	ctx := context.Background()

	ok, _ := g.Admit(ctx, reliance)
	assert.True(t, ok)

	now = now.Add(59 * time.Minute)
	ok, _ = g.Admit(ctx, reliance)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = g.Admit(ctx, reliance)
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			g := NewGate(store)
			ctx := context.Background()
			for _, sym := range []string{"TCS", "INFY", "RELIANCE"} {
				_, err := g.Admit(ctx, types.IdentityKey{Symbol: sym, Quarter: 3, FiscalYear: 2025})
				require.NoError(t, err)
			}

			n, err := g.Clear(ctx, "tcs")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			ok, err := g.Admit(ctx, types.IdentityKey{Symbol: "TCS", Quarter: 3, FiscalYear: 2025})
			require.NoError(t, err)
			assert.True(t, ok)

			n, err = g.Clear(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, 3, n)
		})
	}
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup", "snapshot.json")

	s1, err := NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	ok, err := NewGate(s1).Admit(context.Background(), reliance)
	require.NoError(t, err)
	require.True(t, ok)

	s2, err := NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, s2.Len())

	ok, err = NewGate(s2).Admit(context.Background(), reliance)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelease(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			g := NewGate(store)
			ctx := context.Background()

			ok, err := g.Admit(ctx, reliance)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, g.Release(ctx, reliance))

			ok, err = g.Admit(ctx, reliance)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestReleaseDeletesOnlyThatIdentity(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			g := NewGate(store)
			ctx := context.Background()
			// "Q3FY202" is a string prefix of "Q3FY2025"
			short := types.IdentityKey{Symbol: "RELIANCE", Quarter: 3, FiscalYear: 202}

			for _, id := range []types.IdentityKey{reliance, short} {
				ok, err := g.Admit(ctx, id)
				require.NoError(t, err)
				require.True(t, ok)
			}

			require.NoError(t, g.Release(ctx, short))
			require.NoError(t, g.Release(ctx, short), "releasing a missing record")

			ok, err := g.Admit(ctx, reliance)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestClaim(t *testing.T) {
	g := NewGate(NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, g.Claim(ctx, reliance))

	err := g.Claim(ctx, reliance)
	require.Error(t, err)
	assert.ErrorIs(t, err, rerrors.ErrDedupRejected)
	assert.Equal(t, rerrors.DedupRejected, rerrors.KindOf(err))
	assert.False(t, rerrors.KindOf(err).Terminal())
}

func TestMemoryStoreEvictsOnInsert(t *testing.T) {
	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for _, k := range []string{"processed:A:Q3FY2025", "processed:B:Q3FY2025"} {
		ok, err := store.SetIfAbsent(ctx, k, "x", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	now = now.Add(2 * time.Minute)
	ok, err := store.SetIfAbsent(ctx, "processed:C:Q3FY2025", "x", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	store.mutex.Lock()
	defer store.mutex.Unlock()
	assert.Len(t, store.records, 1)
	assert.Contains(t, store.records, "processed:C:Q3FY2025")
}
