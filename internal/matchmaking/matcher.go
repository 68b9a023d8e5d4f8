package matchmaking

import (
	"context"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/oklog/ulid/v2"
)

// Matcher pairs tickets. It only works through the transaction it is handed
// and keeps no state of its own, so one value serves every request.
type Matcher struct {
	newMatchID func() string
}

// NewMatcher returns a Matcher that names matches with ULIDs
func NewMatcher() *Matcher {
	return &Matcher{newMatchID: func() string { return ulid.Make().String() }}
}

// Pair tries to match ticketID with the oldest compatible queued ticket.
// It returns the re-read own ticket and, on success, the opponent; both are
// already marked matched in tx. A nil opponent means no match this attempt.
func (m *Matcher) Pair(ctx context.Context, tx TicketTx, ticketID string, now time.Time) (own, opponent *domain.Ticket, err error) {
	own, err = tx.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if own.Status != domain.StatusQueued || own.ExpiredAt(now) {
		return own, nil, nil
	}

	opponent, err = tx.OldestCandidate(ctx, own, now)
	if err != nil || opponent == nil {
		return own, nil, err
	}
	// The store filters on the bucket already; this guards a store that
	// returns something looser.
	if !own.Bucket().Compatible(opponent.Bucket()) {
		return own, nil, nil
	}

	if err := tx.MarkMatched(ctx, own, opponent, m.newMatchID(), now); err != nil {
		return nil, nil, err
	}
	return own, opponent, nil
}

// PairParties is Pair for party tickets; opponents must be the same size
func (m *Matcher) PairParties(ctx context.Context, tx PartyTicketTx, ticketID string, now time.Time) (own, opponent *domain.PartyTicket, err error) {
	own, err = tx.GetPartyTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if own.Status != domain.StatusQueued || own.ExpiredAt(now) {
		return own, nil, nil
	}

	opponent, err = tx.OldestPartyCandidate(ctx, own, now)
	if err != nil || opponent == nil {
		return own, nil, err
	}
	if opponent.Size() != own.Size() || !own.Bucket().Compatible(opponent.Bucket()) {
		return own, nil, nil
	}

	if err := tx.MarkPartiesMatched(ctx, own, opponent, m.newMatchID(), now); err != nil {
		return nil, nil, err
	}
	return own, opponent, nil
}
