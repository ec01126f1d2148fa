package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

func testAnn(symbol string) types.Announcement {
	date := time.Date(2025, time.January, 16, 17, 30, 0, 0, time.UTC)
	return types.Announcement{
		Source:        "nse",
		Symbol:        symbol,
		Date:          date,
		Description:   "Financial results for the quarter ended December 31, 2024",
		AttachmentURL: "https://example.com/" + symbol + ".pdf",
		DiscoveredAt:  date.Add(time.Second),
		Identity:      types.IdentityKey{Symbol: symbol, Quarter: 3, FiscalYear: 2025},
	}
}

func TestChanQueueDropPolicy(t *testing.T) {
	q := NewChanQueue(1, PolicyDrop, time.Second)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, testAnn("TCS")))
	err := q.Push(ctx, testAnn("INFY"))
	assert.ErrorIs(t, err, rerrors.ErrQueueFull)
	assert.Equal(t, 1, q.Len(ctx))
}

func TestChanQueueBlockPolicyTimesOut(t *testing.T) {
	q := NewChanQueue(1, PolicyBlock, 30*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, testAnn("TCS")))

	start := time.Now()
	err := q.Push(ctx, testAnn("INFY"))
	assert.ErrorIs(t, err, rerrors.ErrQueueFull)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestChanQueueBlockPolicyWaitsForSpace(t *testing.T) {
	q := NewChanQueue(1, PolicyBlock, time.Second)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, testAnn("TCS")))

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Pop(ctx)
	}()
	require.NoError(t, q.Push(ctx, testAnn("INFY")))

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INFY", got.Symbol)
}

func TestChanQueueCloseDrains(t *testing.T) {
	q := NewChanQueue(4, PolicyBlock, time.Second)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, testAnn("TCS")))
	require.NoError(t, q.Push(ctx, testAnn("INFY")))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(ctx, testAnn("WIPRO")), ErrQueueClosed)

	var got []string
	for {
		ann, err := q.Pop(ctx)
		if err != nil {
			assert.ErrorIs(t, err, ErrQueueClosed)
			break
		}
		got = append(got, ann.Symbol)
	}
	assert.ElementsMatch(t, []string{"TCS", "INFY"}, got)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBlock, p)

	p, err = ParsePolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)

	_, err = ParsePolicy("spill")
	assert.ErrorIs(t, err, rerrors.ErrConfigInvalid)
}

func newRedisQueue(t *testing.T, size int, policy Policy) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueue(client, "", size, policy, 50*time.Millisecond), mr
}

func TestRedisQueueWireFormat(t *testing.T) {
	q, mr := newRedisQueue(t, 10, PolicyBlock)
	ctx := context.Background()

	ann := testAnn("RELIANCE")
	require.NoError(t, q.Push(ctx, ann))

	items, err := mr.List(DefaultQueueKey)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(items[0]), &payload))
	for _, field := range []string{"source", "symbol", "date", "description", "attachment_url", "timestamp"} {
		assert.Contains(t, payload, field)
	}
	assert.Equal(t, "RELIANCE", payload["symbol"])
	assert.NotContains(t, payload, "attachment_text")
}

func TestRedisQueueCarriesCompanyName(t *testing.T) {
	q, _ := newRedisQueue(t, 10, PolicyBlock)
	ctx := context.Background()

	ann := testAnn("500325")
	ann.CompanyName = "Reliance Industries Ltd"
	require.NoError(t, q.Push(ctx, ann))

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Reliance Industries Ltd", got.CompanyName)
	assert.Equal(t, "Reliance Industries Ltd (500325)", got.DisplayName())
}

func TestRedisQueueFIFO(t *testing.T) {
	q, _ := newRedisQueue(t, 10, PolicyBlock)
	ctx := context.Background()

	for _, s := range []string{"TCS", "INFY", "WIPRO"} {
		require.NoError(t, q.Push(ctx, testAnn(s)))
	}
	assert.Equal(t, 3, q.Len(ctx))

	for _, want := range []string{"TCS", "INFY", "WIPRO"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.Symbol)
		assert.Equal(t, types.IdentityKey{Symbol: want, Quarter: 3, FiscalYear: 2025}, got.Identity)
		assert.True(t, got.DiscoveredAt.Equal(testAnn(want).DiscoveredAt))
	}
}

func TestRedisQueueBound(t *testing.T) {
	q, _ := newRedisQueue(t, 1, PolicyDrop)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, testAnn("TCS")))
	assert.ErrorIs(t, q.Push(ctx, testAnn("INFY")), rerrors.ErrQueueFull)

	blocking, _ := newRedisQueue(t, 1, PolicyBlock)
	require.NoError(t, blocking.Push(ctx, testAnn("TCS")))
	assert.ErrorIs(t, blocking.Push(ctx, testAnn("INFY")), rerrors.ErrQueueFull)
}

func TestRedisQueueRejectsInvalidPayload(t *testing.T) {
	q, mr := newRedisQueue(t, 10, PolicyBlock)
	_, err := mr.Lpush(DefaultQueueKey, `{"source":"nse","symbol":"TCS"}`)
	require.NoError(t, err)

	_, err = q.Pop(context.Background())
	require.Error(t, err)
	assert.Equal(t, rerrors.InvalidInput, rerrors.KindOf(err))
}

func TestRedisQueuePopHonoursCancel(t *testing.T) {
	q, _ := newRedisQueue(t, 10, PolicyBlock)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.Error(t, err)
}
