package directory

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

func newTestDirectory(t *testing.T) (*RedisDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return NewRedisDirectory(c, "test"), mr
}

func TestPublishAndClaim(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.PublishLabel(ctx, "m1", match.Label{GameID: "g", BetAmount: 100, Status: match.StatusWaiting}))
	assert.True(t, mr.Exists("test:label:m1"))

	got, err := mr.Get("test:label:m1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"gameId":"g","betAmount":100,"status":"waiting"}`, got)

	_, ok, err := d.Claim(ctx, "g", 50)
	require.NoError(t, err)
	assert.False(t, ok, "different bet must not match")

	id, ok, err := d.Claim(ctx, "g", 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", id)

	_, ok, err = d.Claim(ctx, "g", 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadyLabelLeavesPool(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.PublishLabel(ctx, "m1", match.Label{GameID: "g", BetAmount: 5, Status: match.StatusWaiting}))
	require.NoError(t, d.PublishLabel(ctx, "m1", match.Label{GameID: "g", BetAmount: 5, Status: match.StatusReady, MatchType: match.TypePVH}))

	_, ok, err := d.Claim(ctx, "g", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	l, found, err := d.Lookup(ctx, "m1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, match.TypePVH, l.MatchType)
}

func TestRemove(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()
	l := match.Label{GameID: "g", BetAmount: 5, Status: match.StatusWaiting}

	require.NoError(t, d.PublishLabel(ctx, "m1", l))
	require.NoError(t, d.Remove(ctx, "m1", l))

	assert.False(t, mr.Exists("test:label:m1"))
	_, ok, err := d.Claim(ctx, "g", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := d.Lookup(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, d.PublishLabel(ctx, "only", match.Label{GameID: "g", BetAmount: 1, Status: match.StatusWaiting}))

	var mu sync.Mutex
	winners := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := d.Claim(ctx, "g", 1)
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
