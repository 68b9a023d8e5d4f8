package matchmaking

import (
	"context"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
)

// TicketStore persists solo tickets. Every status transition it performs is
// a conditional update on (id, version, status = queued); a lost race is
// reported as domain.ErrVersionConflict.
type TicketStore interface {
	// ExpireStaleTickets marks every queued ticket past its TTL as expired
	ExpireStaleTickets(ctx context.Context, now time.Time) (int64, error)

	// CreateTicket inserts t unless the player already holds a queued
	// ticket, in which case that ticket is returned with created=false
	CreateTicket(ctx context.Context, t *domain.Ticket) (stored *domain.Ticket, created bool, err error)

	// CancelQueuedTicket cancels the player's queued ticket. It returns nil
	// when there was nothing left to cancel.
	CancelQueuedTicket(ctx context.Context, playerID string, now time.Time) (*domain.Ticket, error)

	// LatestTicket returns the player's newest queued or matched ticket,
	// ignoring queued tickets that have outlived their TTL
	LatestTicket(ctx context.Context, playerID string, now time.Time) (*domain.Ticket, error)

	// WithTicketTx runs fn in a single transaction
	WithTicketTx(ctx context.Context, fn func(tx TicketTx) error) error
}

// TicketTx is the view of the ticket table a matching attempt works through
type TicketTx interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)

	// OldestCandidate returns the longest-waiting unexpired queued ticket
	// compatible with own, or nil
	OldestCandidate(ctx context.Context, own *domain.Ticket, now time.Time) (*domain.Ticket, error)

	// MarkMatched moves both tickets to matched, cross-referencing them
	MarkMatched(ctx context.Context, t, opponent *domain.Ticket, matchID string, now time.Time) error
}

// PartyTicketStore is TicketStore at party granularity
type PartyTicketStore interface {
	ExpireStalePartyTickets(ctx context.Context, now time.Time) (int64, error)
	CreatePartyTicket(ctx context.Context, t *domain.PartyTicket) (stored *domain.PartyTicket, created bool, err error)
	CancelQueuedPartyTicket(ctx context.Context, partyID string, now time.Time) (*domain.PartyTicket, error)
	LatestPartyTicket(ctx context.Context, partyID string, now time.Time) (*domain.PartyTicket, error)
	WithPartyTicketTx(ctx context.Context, fn func(tx PartyTicketTx) error) error
}

// PartyTicketTx mirrors TicketTx; candidates must also have the same size
type PartyTicketTx interface {
	GetPartyTicket(ctx context.Context, id string) (*domain.PartyTicket, error)
	OldestPartyCandidate(ctx context.Context, own *domain.PartyTicket, now time.Time) (*domain.PartyTicket, error)
	MarkPartiesMatched(ctx context.Context, t, opponent *domain.PartyTicket, matchID string, now time.Time) error
}

// PartyDirectory stores party rosters
type PartyDirectory interface {
	// GetParty returns domain.ErrPartyNotFound for unknown ids
	GetParty(ctx context.Context, partyID string) (*domain.Party, error)

	// CreateParty fails with domain.ErrAlreadyInParty when the leader is in
	// another open party
	CreateParty(ctx context.Context, p *domain.Party) error

	// The roster mutations below cancel the party's queued ticket in the
	// same transaction and return it, or nil when nothing was queued
	AddPartyMember(ctx context.Context, partyID, playerID string, maxSize int, now time.Time) (*domain.Party, *domain.PartyTicket, error)
	RemovePartyMember(ctx context.Context, partyID, playerID string, now time.Time) (*domain.Party, *domain.PartyTicket, error)
	CloseParty(ctx context.Context, partyID string, now time.Time) (*domain.Party, *domain.PartyTicket, error)
}
