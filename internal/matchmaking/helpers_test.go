package matchmaking_test

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/ernie/arena-queue/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "arenaq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// policyGate resolves decisions from a per-player table; unknown players
// are admitted to the global pool
type policyGate map[string]matchmaking.Decision

func (g policyGate) Evaluate(_ context.Context, playerID string) (matchmaking.Decision, error) {
	if d, ok := g[playerID]; ok {
		return d, nil
	}
	return matchmaking.Decision{CanEnter: true, Scope: domain.ScopeGlobal}, nil
}

// recordingNotifier keeps every event it receives
type recordingNotifier struct {
	mu           sync.Mutex
	matched      []domain.MatchedEvent
	partyMatched []domain.PartyMatchedEvent
	roster       []domain.RosterEvent
	closed       []domain.PartyClosedEvent
}

func (r *recordingNotifier) OnMatched(_ context.Context, e domain.MatchedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matched = append(r.matched, e)
}

func (r *recordingNotifier) OnPartyMatched(_ context.Context, e domain.PartyMatchedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partyMatched = append(r.partyMatched, e)
}

func (r *recordingNotifier) OnRosterUpdated(_ context.Context, e domain.RosterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster = append(r.roster, e)
}

func (r *recordingNotifier) OnPartyClosed(_ context.Context, e domain.PartyClosedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, e)
}

func (r *recordingNotifier) matchedEvents() []domain.MatchedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MatchedEvent{}, r.matched...)
}

// panickyNotifier fails every delivery
type panickyNotifier struct{ matchmaking.Nop }

func (panickyNotifier) OnMatched(context.Context, domain.MatchedEvent) {
	panic("transport down")
}
