package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PartyStore is everything the party engine persists
type PartyStore interface {
	PartyTicketStore
	PartyDirectory
}

// PartyEngine matches whole parties against parties of the same size and
// manages their rosters
type PartyEngine struct {
	store    PartyStore
	gate     EnforcementGate
	notifier Notifier
	matcher  *Matcher

	settings Settings
	metrics  Metrics
	log      *logrus.Entry
	now      func() time.Time
}

func NewPartyEngine(store PartyStore, gate EnforcementGate, notifier Notifier, opts ...Option) *PartyEngine {
	o := buildOptions("party", opts)
	if gate == nil {
		gate = AllowAll{}
	}
	if notifier == nil {
		notifier = Nop{}
	}
	return &PartyEngine{
		store:    store,
		gate:     gate,
		notifier: notifier,
		matcher:  NewMatcher(),
		settings: o.settings,
		metrics:  o.metrics,
		log:      o.log,
		now:      o.now,
	}
}

// leaderParty loads an open party and checks that leaderID leads it
func (p *PartyEngine) leaderParty(ctx context.Context, partyID, leaderID string) (*domain.Party, error) {
	party, err := p.store.GetParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if !party.Open() {
		return nil, domain.ErrPartyNotFound
	}
	if party.LeaderID != leaderID {
		return nil, domain.ErrNotPartyLeader
	}
	return party, nil
}

// EnqueueParty queues the party as one unit. Every member must pass
// enforcement, and the party plays in the most restrictive pool any of its
// members was assigned.
func (p *PartyEngine) EnqueueParty(ctx context.Context, partyID, leaderID, mode string, tier int) (domain.PartyQueueResult, error) {
	leaderID = strings.TrimSpace(leaderID)
	if leaderID == "" {
		return domain.PartyQueueResult{}, domain.ErrInvalidPlayer
	}
	party, err := p.leaderParty(ctx, partyID, leaderID)
	if err != nil {
		return domain.PartyQueueResult{}, err
	}
	mode = domain.NormalizeMode(mode, p.settings.DefaultMode)
	log := p.log.WithFields(logrus.Fields{"party_id": partyID, "mode": mode})

	scope := domain.ScopeGlobal
	for _, member := range party.Members {
		decision := evaluate(ctx, p.gate, member, log.WithField("player_id", member))
		if !decision.CanEnter {
			log.WithField("player_id", member).Info("Party enqueue refused by enforcement")
			p.metrics.AddEnqueueOutcome(KindParty, domain.Bucket{Mode: mode, Scope: scope, Tier: tier}, domain.OutcomeForbidden)
			return domain.PartyQueueResult{
				Outcome:        domain.OutcomeForbidden,
				PartyID:        partyID,
				Members:        party.Members,
				Mode:           mode,
				Tier:           tier,
				DeniedPlayerID: member,
			}, nil
		}
		scope = domain.MostRestrictive(scope, decision.Scope)
	}

	now := p.now()
	swept, err := p.store.ExpireStalePartyTickets(ctx, now)
	if err != nil {
		return domain.PartyQueueResult{}, fmt.Errorf("sweeping expired party tickets: %w", err)
	}
	p.metrics.AddExpiredTickets(KindParty, swept)

	ticket := &domain.PartyTicket{
		ID:        uuid.NewString(),
		PartyID:   party.ID,
		LeaderID:  party.LeaderID,
		Members:   append([]string{}, party.Members...),
		Mode:      mode,
		Tier:      tier,
		Scope:     scope,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		ExpiresAt: now.Add(p.settings.TicketTTL),
		Version:   1,
	}
	stored, created, err := p.store.CreatePartyTicket(ctx, ticket)
	if err != nil {
		return domain.PartyQueueResult{}, fmt.Errorf("creating party ticket: %w", err)
	}
	if !created {
		log.WithField("ticket_id", stored.ID).Debug("Party already queued")
		p.metrics.AddEnqueueOutcome(KindParty, stored.Bucket(), domain.OutcomeQueued)
		return domain.ResultFromPartyTicket(partyID, stored), nil
	}
	log.WithFields(logrus.Fields{"ticket_id": stored.ID, "size": stored.Size(), "scope": scope}).Debug("Party queued")

	result, err := p.match(ctx, stored, log)
	if err != nil {
		return domain.PartyQueueResult{}, err
	}
	p.metrics.AddEnqueueOutcome(KindParty, stored.Bucket(), result.Outcome)
	return result, nil
}

func (p *PartyEngine) match(ctx context.Context, ticket *domain.PartyTicket, log *logrus.Entry) (domain.PartyQueueResult, error) {
	current := ticket
	for attempt := 1; attempt <= p.settings.MatchAttempts; attempt++ {
		now := p.now()
		var own, opponent *domain.PartyTicket
		err := p.store.WithPartyTicketTx(ctx, func(tx PartyTicketTx) error {
			var err error
			own, opponent, err = p.matcher.PairParties(ctx, tx, ticket.ID, now)
			return err
		})
		if errors.Is(err, domain.ErrVersionConflict) {
			p.metrics.AddMatchConflict(KindParty)
			log.WithField("attempt", attempt).Debug("Party match attempt lost a race")
			continue
		}
		if err != nil {
			return domain.PartyQueueResult{}, fmt.Errorf("matching party ticket %s: %w", ticket.ID, err)
		}

		current = own
		if opponent != nil {
			p.matched(ctx, own, opponent, now)
			log.WithFields(logrus.Fields{"opponent_party_id": opponent.PartyID, "match_id": own.MatchID}).Info("Parties matched")
			return domain.ResultFromPartyTicket(ticket.PartyID, own), nil
		}
		break
	}
	return domain.ResultFromPartyTicket(ticket.PartyID, current), nil
}

func (p *PartyEngine) matched(ctx context.Context, a, b *domain.PartyTicket, now time.Time) {
	p.metrics.ObserveQueueWait(KindParty, a.Bucket(), now.Sub(a.CreatedAt))
	p.metrics.ObserveQueueWait(KindParty, b.Bucket(), now.Sub(b.CreatedAt))
	p.notifier.OnPartyMatched(ctx, domain.PartyMatchedEvent{
		MatchID: a.MatchID,
		Mode:    a.Mode,
		Tier:    a.Tier,
		Scope:   a.Scope,
		Sides: [2]domain.PartySide{
			{PartyID: a.PartyID, TicketID: a.ID, Members: a.Members},
			{PartyID: b.PartyID, TicketID: b.ID, Members: b.Members},
		},
	})
}

// CancelPartyQueue withdraws the party's queued ticket. Only the leader may
// do this; anyone else gets domain.ErrNotPartyLeader.
func (p *PartyEngine) CancelPartyQueue(ctx context.Context, partyID, leaderID string) (bool, error) {
	if _, err := p.leaderParty(ctx, partyID, strings.TrimSpace(leaderID)); err != nil {
		return false, err
	}
	t, err := p.store.CancelQueuedPartyTicket(ctx, partyID, p.now())
	if err != nil {
		return false, fmt.Errorf("cancelling party ticket: %w", err)
	}
	return t != nil, nil
}

// GetPartyStatus reports the party's most recent live ticket, or none
func (p *PartyEngine) GetPartyStatus(ctx context.Context, partyID string) (domain.PartyQueueResult, error) {
	t, err := p.store.LatestPartyTicket(ctx, partyID, p.now())
	if err != nil {
		return domain.PartyQueueResult{}, fmt.Errorf("reading party ticket: %w", err)
	}
	return domain.ResultFromPartyTicket(partyID, t), nil
}

// SweepExpired reaps every queued party ticket past its TTL
func (p *PartyEngine) SweepExpired(ctx context.Context) (int64, error) {
	n, err := p.store.ExpireStalePartyTickets(ctx, p.now())
	if err != nil {
		return 0, err
	}
	p.metrics.AddExpiredTickets(KindParty, n)
	return n, nil
}
