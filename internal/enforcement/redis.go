package enforcement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/redis/go-redis/v9"
)

// Moderation statuses written by the moderation service
const (
	StatusBanned     = "banned"
	StatusSuspended  = "suspended"
	StatusTierLocked = "tier_locked"
	StatusPractice   = "practice"
	StatusShadow     = "shadow"
)

// RedisGateway is the part of the redis client the gate needs
type RedisGateway interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisGate reads each player's moderation record from a redis hash at
// <prefix>:<player id>. Fields: status, and until (RFC 3339) for
// restrictions that lapse on their own. A player with no record is in good
// standing.
type RedisGate struct {
	client RedisGateway
	prefix string
	now    func() time.Time
}

func NewRedisGate(client RedisGateway, keyPrefix string) *RedisGate {
	if keyPrefix == "" {
		keyPrefix = "moderation"
	}
	return &RedisGate{client: client, prefix: keyPrefix, now: time.Now}
}

func (g *RedisGate) key(playerID string) string {
	return g.prefix + ":" + playerID
}

// Evaluate maps the moderation record onto a queue decision
func (g *RedisGate) Evaluate(ctx context.Context, playerID string) (matchmaking.Decision, error) {
	record, err := g.client.HGetAll(ctx, g.key(playerID)).Result()
	if err != nil {
		return matchmaking.Decision{}, fmt.Errorf("reading moderation record: %w", err)
	}

	status := strings.ToLower(strings.TrimSpace(record["status"]))
	if until := record["until"]; until != "" && status != "" {
		expiry, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return matchmaking.Decision{}, fmt.Errorf("parsing moderation expiry %q: %w", until, err)
		}
		if !g.now().Before(expiry) {
			status = ""
		}
	}
	return decisionFor(status), nil
}

func decisionFor(status string) matchmaking.Decision {
	switch status {
	case StatusBanned, StatusSuspended:
		return matchmaking.Decision{CanEnter: false, Scope: domain.ScopeGlobal}
	case StatusTierLocked:
		return matchmaking.Decision{CanEnter: true, Scope: domain.ScopeTierOnly}
	case StatusPractice:
		return matchmaking.Decision{CanEnter: true, Scope: domain.ScopePractice}
	case StatusShadow:
		return matchmaking.Decision{CanEnter: true, Scope: domain.ScopeShadow}
	default:
		return matchmaking.Decision{CanEnter: true, Scope: domain.ScopeGlobal}
	}
}
