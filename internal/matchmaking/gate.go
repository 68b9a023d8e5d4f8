package matchmaking

import (
	"context"

	"github.com/ernie/arena-queue/internal/domain"
)

// Decision is the enforcement verdict for one player
type Decision struct {
	CanEnter bool
	Scope    domain.Scope
}

// EnforcementGate decides whether a player may queue and in which pool.
// The engine only reads decisions; it never changes moderation state.
type EnforcementGate interface {
	Evaluate(ctx context.Context, playerID string) (Decision, error)
}

// AllowAll admits every player into the global pool
type AllowAll struct{}

func (AllowAll) Evaluate(context.Context, string) (Decision, error) {
	return Decision{CanEnter: true, Scope: domain.ScopeGlobal}, nil
}

// GateFunc adapts a plain function to EnforcementGate
type GateFunc func(ctx context.Context, playerID string) (Decision, error)

func (f GateFunc) Evaluate(ctx context.Context, playerID string) (Decision, error) {
	return f(ctx, playerID)
}
