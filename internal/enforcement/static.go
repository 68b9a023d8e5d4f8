package enforcement

import (
	"context"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
)

// StaticGate decides from fixed player lists, for small deployments and
// local testing. Banned wins over any scope assignment.
type StaticGate struct {
	banned map[string]struct{}
	scopes map[string]domain.Scope
}

// StaticLists names the players in each restricted state
type StaticLists struct {
	Banned     []string
	TierLocked []string
	Practice   []string
	Shadow     []string
}

func NewStaticGate(lists StaticLists) *StaticGate {
	g := &StaticGate{
		banned: make(map[string]struct{}, len(lists.Banned)),
		scopes: make(map[string]domain.Scope),
	}
	for _, id := range lists.Banned {
		g.banned[id] = struct{}{}
	}
	assign := func(ids []string, scope domain.Scope) {
		for _, id := range ids {
			g.scopes[id] = domain.MostRestrictive(g.scopes[id], scope)
		}
	}
	assign(lists.TierLocked, domain.ScopeTierOnly)
	assign(lists.Practice, domain.ScopePractice)
	assign(lists.Shadow, domain.ScopeShadow)
	return g
}

func (g *StaticGate) Evaluate(_ context.Context, playerID string) (matchmaking.Decision, error) {
	if _, ok := g.banned[playerID]; ok {
		return matchmaking.Decision{CanEnter: false, Scope: domain.ScopeGlobal}, nil
	}
	if scope, ok := g.scopes[playerID]; ok {
		return matchmaking.Decision{CanEnter: true, Scope: scope}, nil
	}
	return matchmaking.Decision{CanEnter: true, Scope: domain.ScopeGlobal}, nil
}
