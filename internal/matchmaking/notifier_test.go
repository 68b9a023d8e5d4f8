package matchmaking_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	multi := matchmaking.Multi{a, b, matchmaking.Nop{}}

	multi.OnMatched(context.Background(), domain.MatchedEvent{PlayerID: "p"})
	multi.OnRosterUpdated(context.Background(), domain.RosterEvent{PartyID: "x"})

	assert.Len(t, a.matchedEvents(), 1)
	assert.Len(t, b.matchedEvents(), 1)
	assert.Len(t, a.roster, 1)
}

func TestAsyncDeliversBeforeClose(t *testing.T) {
	rec := &recordingNotifier{}
	async := matchmaking.NewAsync(rec, 16, quietLogger())

	for i := 0; i < 10; i++ {
		async.OnMatched(context.Background(), domain.MatchedEvent{PlayerID: "p"})
	}
	async.OnPartyClosed(context.Background(), domain.PartyClosedEvent{PartyID: "x"})
	async.Close()

	assert.Len(t, rec.matchedEvents(), 10)
	assert.Len(t, rec.closed, 1)

	// Events after Close are ignored
	async.OnMatched(context.Background(), domain.MatchedEvent{PlayerID: "late"})
	assert.Len(t, rec.matchedEvents(), 10)
	async.Close()
}

// blockingNotifier holds the worker until released
type blockingNotifier struct {
	matchmaking.Nop
	started chan struct{}
	release chan struct{}
	once    sync.Once
	count   int
	mu      sync.Mutex
}

func (b *blockingNotifier) OnMatched(context.Context, domain.MatchedEvent) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
}

func TestAsyncDropsWhenFull(t *testing.T) {
	blocker := &blockingNotifier{started: make(chan struct{}), release: make(chan struct{})}
	async := matchmaking.NewAsync(blocker, 2, quietLogger())

	async.OnMatched(context.Background(), domain.MatchedEvent{})
	<-blocker.started

	// The worker is busy; two fit in the buffer and the rest are dropped
	for i := 0; i < 5; i++ {
		async.OnMatched(context.Background(), domain.MatchedEvent{})
	}
	close(blocker.release)
	async.Close()

	blocker.mu.Lock()
	defer blocker.mu.Unlock()
	require.Equal(t, 3, blocker.count)
}

func TestAsyncSurvivesPanics(t *testing.T) {
	rec := &recordingNotifier{}
	async := matchmaking.NewAsync(matchmaking.Multi{panickyNotifier{}, rec}, 4, quietLogger())

	async.OnMatched(context.Background(), domain.MatchedEvent{})
	async.OnRosterUpdated(context.Background(), domain.RosterEvent{PartyID: "x"})
	async.Close()

	assert.Empty(t, rec.matchedEvents())
	assert.Len(t, rec.roster, 1)
}
