package enforcement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisGate(t *testing.T) (*RedisGate, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
		DB:   0,
	})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisGate(rdb, "moderation"), s
}

func TestRedisGateStatuses(t *testing.T) {
	gate, s := newRedisGate(t)
	s.HSet("moderation:banned", "status", "banned")
	s.HSet("moderation:suspended", "status", "Suspended")
	s.HSet("moderation:locked", "status", "tier_locked")
	s.HSet("moderation:practice", "status", "practice")
	s.HSet("moderation:shadow", "status", "shadow")
	s.HSet("moderation:odd", "status", "something-new")

	cases := map[string]matchmaking.Decision{
		"banned":    {CanEnter: false, Scope: domain.ScopeGlobal},
		"suspended": {CanEnter: false, Scope: domain.ScopeGlobal},
		"locked":    {CanEnter: true, Scope: domain.ScopeTierOnly},
		"practice":  {CanEnter: true, Scope: domain.ScopePractice},
		"shadow":    {CanEnter: true, Scope: domain.ScopeShadow},
		"odd":       {CanEnter: true, Scope: domain.ScopeGlobal},
		"unknown":   {CanEnter: true, Scope: domain.ScopeGlobal},
	}
	for player, want := range cases {
		got, err := gate.Evaluate(context.Background(), player)
		require.NoError(t, err, player)
		assert.Equal(t, want, got, player)
	}
}

func TestRedisGateLapsedRestriction(t *testing.T) {
	gate, s := newRedisGate(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }

	s.HSet("moderation:past", "status", "suspended", "until", now.Add(-time.Hour).Format(time.RFC3339))
	s.HSet("moderation:future", "status", "suspended", "until", now.Add(time.Hour).Format(time.RFC3339))
	s.HSet("moderation:garbled", "status", "suspended", "until", "next tuesday")

	d, err := gate.Evaluate(context.Background(), "past")
	require.NoError(t, err)
	assert.True(t, d.CanEnter)

	d, err = gate.Evaluate(context.Background(), "future")
	require.NoError(t, err)
	assert.False(t, d.CanEnter)

	_, err = gate.Evaluate(context.Background(), "garbled")
	assert.Error(t, err)
}

func TestRedisGateUnavailable(t *testing.T) {
	gate, s := newRedisGate(t)
	s.Close()

	_, err := gate.Evaluate(context.Background(), "anyone")
	assert.Error(t, err)
}

func TestStaticGate(t *testing.T) {
	gate := NewStaticGate(StaticLists{
		Banned:     []string{"villain"},
		TierLocked: []string{"locked", "both"},
		Shadow:     []string{"both", "villain"},
	})

	d, _ := gate.Evaluate(context.Background(), "villain")
	assert.False(t, d.CanEnter)

	d, _ = gate.Evaluate(context.Background(), "locked")
	assert.Equal(t, matchmaking.Decision{CanEnter: true, Scope: domain.ScopeTierOnly}, d)

	d, _ = gate.Evaluate(context.Background(), "both")
	assert.Equal(t, domain.ScopeShadow, d.Scope)

	d, _ = gate.Evaluate(context.Background(), "someone")
	assert.Equal(t, matchmaking.Decision{CanEnter: true, Scope: domain.ScopeGlobal}, d)
}
