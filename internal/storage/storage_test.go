package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func queuedTicket(id, player string, created time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:        id,
		PlayerID:  player,
		Mode:      "duel",
		Scope:     domain.ScopeGlobal,
		Status:    domain.StatusQueued,
		CreatedAt: created,
		ExpiresAt: created.Add(2 * time.Minute),
		Version:   1,
	}
}

func queuedPartyTicket(id, party string, members ...string) *domain.PartyTicket {
	return &domain.PartyTicket{
		ID: id, PartyID: party, LeaderID: members[0], Members: members,
		Mode: "duel", Scope: domain.ScopeGlobal, Status: domain.StatusQueued,
		CreatedAt: epoch, ExpiresAt: epoch.Add(time.Minute), Version: 1,
	}
}

func TestTimestampsSortLexically(t *testing.T) {
	early := formatTimestamp(epoch.Add(999 * time.Millisecond))
	late := formatTimestamp(epoch.Add(time.Second))
	assert.Less(t, early, late)

	parsed, err := parseTimestamp(late)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(epoch.Add(time.Second)))

	local := time.FixedZone("UTC+2", 2*60*60)
	assert.Equal(t, formatTimestamp(epoch), formatTimestamp(epoch.In(local)))
}

func TestCreateTicketOncePerPlayer(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	stored, created, err := s.CreateTicket(ctx, queuedTicket("t1", "alice", epoch))
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "t1", stored.ID)
	assert.EqualValues(t, 1, stored.Version)

	stored, created, err = s.CreateTicket(ctx, queuedTicket("t2", "alice", epoch.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "t1", stored.ID)

	_, err = s.GetTicketByID(ctx, "t2")
	assert.Error(t, err)
}

func TestCreateTicketReplacesOwnStaleTicket(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, _, err := s.CreateTicket(ctx, queuedTicket("old", "alice", epoch))
	require.NoError(t, err)

	stored, created, err := s.CreateTicket(ctx, queuedTicket("new", "alice", epoch.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new", stored.ID)

	old, err := s.GetTicketByID(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, old.Status)
	assert.EqualValues(t, 2, old.Version)
}

func TestMarkMatchedChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, _, err := s.CreateTicket(ctx, queuedTicket("a", "alice", epoch))
	require.NoError(t, err)
	_, _, err = s.CreateTicket(ctx, queuedTicket("b", "bob", epoch.Add(time.Millisecond)))
	require.NoError(t, err)

	stale, err := s.GetTicketByID(ctx, "a")
	require.NoError(t, err)
	other, err := s.GetTicketByID(ctx, "b")
	require.NoError(t, err)

	// Someone else cancels alice first
	cancelled, err := s.CancelQueuedTicket(ctx, "alice", epoch.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, cancelled)

	err = s.WithTicketTx(ctx, func(tx matchmaking.TicketTx) error {
		return tx.MarkMatched(ctx, other, stale, "m1", epoch.Add(2*time.Second))
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	// bob was updated first; the rollback undid it
	bob, err := s.GetTicketByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, bob.Status)
	assert.EqualValues(t, 1, bob.Version)
}

func TestMarkMatchedCrossReferences(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, _, err := s.CreateTicket(ctx, queuedTicket("a", "alice", epoch))
	require.NoError(t, err)
	b, _, err := s.CreateTicket(ctx, queuedTicket("b", "bob", epoch))
	require.NoError(t, err)

	err = s.WithTicketTx(ctx, func(tx matchmaking.TicketTx) error {
		return tx.MarkMatched(ctx, a, b, "m1", epoch.Add(time.Second))
	})
	require.NoError(t, err)

	alice, err := s.LatestTicket(ctx, "alice", epoch.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMatched, alice.Status)
	assert.Equal(t, "bob", alice.OpponentID)
	assert.Equal(t, "b", alice.OpponentTicketID)
	assert.Equal(t, "m1", alice.MatchID)
	require.NotNil(t, alice.ResolvedAt)

	// Terminal tickets cannot be cancelled
	cancelled, err := s.CancelQueuedTicket(ctx, "alice", epoch.Add(2*time.Second))
	require.NoError(t, err)
	assert.Nil(t, cancelled)
}

func TestOldestCandidateFilters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tierTicket := func(id, player string, tier int, created time.Time) *domain.Ticket {
		tk := queuedTicket(id, player, created)
		tk.Scope = domain.ScopeTierOnly
		tk.Tier = tier
		return tk
	}
	for _, tk := range []*domain.Ticket{
		tierTicket("t-other-tier", "p1", 2, epoch),
		tierTicket("t-same-tier", "p2", 1, epoch.Add(time.Millisecond)),
		tierTicket("t-newer", "p3", 1, epoch.Add(2*time.Millisecond)),
	} {
		_, _, err := s.CreateTicket(ctx, tk)
		require.NoError(t, err)
	}

	own := tierTicket("own", "me", 1, epoch.Add(time.Second))
	var candidate *domain.Ticket
	err := s.WithTicketTx(ctx, func(tx matchmaking.TicketTx) error {
		var err error
		candidate, err = tx.OldestCandidate(ctx, own, epoch.Add(time.Second))
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, "t-same-tier", candidate.ID)

	// Past the TTL nothing qualifies
	err = s.WithTicketTx(ctx, func(tx matchmaking.TicketTx) error {
		var err error
		candidate, err = tx.OldestCandidate(ctx, own, epoch.Add(time.Hour))
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, candidate)
}

func TestLatestTicketSkipsStale(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, _, err := s.CreateTicket(ctx, queuedTicket("a", "alice", epoch))
	require.NoError(t, err)

	live, err := s.LatestTicket(ctx, "alice", epoch.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, live)

	stale, err := s.LatestTicket(ctx, "alice", epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestQueueDepth(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for i, p := range []string{"a", "b", "c"} {
		tk := queuedTicket(p, p, epoch.Add(time.Duration(i)*time.Millisecond))
		if p == "c" {
			tk.Mode = "ctf"
		}
		_, _, err := s.CreateTicket(ctx, tk)
		require.NoError(t, err)
	}

	depth, err := s.QueueDepth(ctx, epoch.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, depth[domain.Bucket{Mode: "duel", Scope: domain.ScopeGlobal}])
	assert.Equal(t, 1, depth[domain.Bucket{Mode: "ctf", Scope: domain.ScopeGlobal}])
}

func TestPartyTicketCandidatesMatchSize(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, created, err := s.CreatePartyTicket(ctx, queuedPartyTicket("trio", "p3", "a", "b", "c"))
	require.NoError(t, err)
	require.True(t, created)
	_, _, err = s.CreatePartyTicket(ctx, queuedPartyTicket("pair", "p2", "d", "e"))
	require.NoError(t, err)

	_, created, err = s.CreatePartyTicket(ctx, queuedPartyTicket("pair-again", "p2", "d", "e"))
	require.NoError(t, err)
	assert.False(t, created)

	own := queuedPartyTicket("own", "mine", "x", "y")
	var candidate *domain.PartyTicket
	err = s.WithPartyTicketTx(ctx, func(tx matchmaking.PartyTicketTx) error {
		var err error
		candidate, err = tx.OldestPartyCandidate(ctx, own, epoch.Add(time.Second))
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, "pair", candidate.ID)
	assert.Equal(t, []string{"d", "e"}, candidate.Members)
}

func TestPartyRosterOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateParty(ctx, &domain.Party{ID: "p", LeaderID: "lead", CreatedAt: epoch}))
	for _, m := range []string{"m1", "m2", "m3"} {
		_, _, err := s.AddPartyMember(ctx, "p", m, 5, epoch)
		require.NoError(t, err)
	}
	party, _, err := s.RemovePartyMember(ctx, "p", "m2", epoch)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead", "m1", "m3"}, party.Members)

	_, _, err = s.AddPartyMember(ctx, "p", "m4", 5, epoch)
	require.NoError(t, err)
	party, err = s.GetParty(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"lead", "m1", "m3", "m4"}, party.Members)

	_, err = s.GetParty(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)

	closed, _, err := s.CloseParty(ctx, "p", epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, closed.Open())

	_, _, err = s.CloseParty(ctx, "p", epoch.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)
}

func TestRosterChangesCancelQueuedTicketInSameCall(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := epoch.Add(time.Second)

	require.NoError(t, s.CreateParty(ctx, &domain.Party{ID: "p", LeaderID: "lead", CreatedAt: epoch}))
	_, _, err := s.AddPartyMember(ctx, "p", "m1", 5, epoch)
	require.NoError(t, err)

	_, _, err = s.CreatePartyTicket(ctx, queuedPartyTicket("t1", "p", "lead", "m1"))
	require.NoError(t, err)
	party, cancelled, err := s.AddPartyMember(ctx, "p", "m2", 5, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead", "m1", "m2"}, party.Members)
	require.NotNil(t, cancelled)
	assert.Equal(t, "t1", cancelled.ID)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	latest, err := s.LatestPartyTicket(ctx, "p", now)
	require.NoError(t, err)
	assert.Nil(t, latest)

	// Rejoining changes nothing and cancels nothing
	_, cancelled, err = s.AddPartyMember(ctx, "p", "m2", 5, now)
	require.NoError(t, err)
	assert.Nil(t, cancelled)

	_, _, err = s.CreatePartyTicket(ctx, queuedPartyTicket("t2", "p", "lead", "m1", "m2"))
	require.NoError(t, err)
	party, cancelled, err = s.RemovePartyMember(ctx, "p", "m2", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead", "m1"}, party.Members)
	require.NotNil(t, cancelled)
	assert.Equal(t, "t2", cancelled.ID)

	// The cancelled ticket can no longer be picked as a candidate
	var candidate *domain.PartyTicket
	err = s.WithPartyTicketTx(ctx, func(tx matchmaking.PartyTicketTx) error {
		var err error
		candidate, err = tx.OldestPartyCandidate(ctx, queuedPartyTicket("own", "other", "x", "y", "z"), now)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, candidate)

	_, _, err = s.CreatePartyTicket(ctx, queuedPartyTicket("t3", "p", "lead", "m1"))
	require.NoError(t, err)
	_, cancelled, err = s.CloseParty(ctx, "p", now)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, "t3", cancelled.ID)

	_, cancelled, err = s.RemovePartyMember(ctx, "p", "m1", now)
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)
	assert.Nil(t, cancelled)
}

func TestOneQueuedIntentAcrossQueues(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, created, err := s.CreateTicket(ctx, queuedTicket("solo", "b", epoch))
	require.NoError(t, err)
	require.True(t, created)

	_, _, err = s.CreatePartyTicket(ctx, queuedPartyTicket("pt", "p", "a", "b"))
	assert.ErrorIs(t, err, domain.ErrAlreadyQueued)
	latest, err := s.LatestPartyTicket(ctx, "p", epoch)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, _, err = s.CreatePartyTicket(ctx, queuedPartyTicket("other", "q", "c", "d"))
	require.NoError(t, err)
	_, _, err = s.CreateTicket(ctx, queuedTicket("solo-d", "d", epoch))
	assert.ErrorIs(t, err, domain.ErrAlreadyQueued)
	_, err = s.GetTicketByID(ctx, "solo-d")
	assert.Error(t, err)

	// Once the party ticket is gone the member may queue alone
	cancelled, err := s.CancelQueuedPartyTicket(ctx, "q", epoch)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	_, created, err = s.CreateTicket(ctx, queuedTicket("solo-d", "d", epoch))
	require.NoError(t, err)
	assert.True(t, created)
}
