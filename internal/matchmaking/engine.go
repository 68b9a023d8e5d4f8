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

// Engine runs the solo ticket lifecycle. Matching happens inline, inside the
// Enqueue call that made a pairing possible.
type Engine struct {
	store    TicketStore
	gate     EnforcementGate
	notifier Notifier
	matcher  *Matcher

	settings Settings
	metrics  Metrics
	log      *logrus.Entry
	now      func() time.Time
}

// NewEngine wires an engine. A nil gate admits everyone, a nil notifier
// discards events.
func NewEngine(store TicketStore, gate EnforcementGate, notifier Notifier, opts ...Option) *Engine {
	o := buildOptions("matchmaking", opts)
	if gate == nil {
		gate = AllowAll{}
	}
	if notifier == nil {
		notifier = Nop{}
	}
	return &Engine{
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

// Settings returns the effective settings
func (e *Engine) Settings() Settings {
	return e.settings
}

// Enqueue puts the player in the queue for mode, or reports the ticket they
// already hold. If a compatible opponent is waiting the two are matched
// before Enqueue returns.
func (e *Engine) Enqueue(ctx context.Context, playerID, mode string, tier int) (domain.QueueResult, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return domain.QueueResult{}, domain.ErrInvalidPlayer
	}
	mode = domain.NormalizeMode(mode, e.settings.DefaultMode)
	log := e.log.WithFields(logrus.Fields{"player_id": playerID, "mode": mode})

	decision := evaluate(ctx, e.gate, playerID, log)
	if !decision.CanEnter {
		log.Info("Enqueue refused by enforcement")
		e.metrics.AddEnqueueOutcome(KindSolo, domain.Bucket{Mode: mode, Scope: decision.Scope, Tier: tier}, domain.OutcomeForbidden)
		return domain.QueueResult{Outcome: domain.OutcomeForbidden, Mode: mode, Tier: tier, Scope: decision.Scope}, nil
	}

	now := e.now()
	swept, err := e.store.ExpireStaleTickets(ctx, now)
	if err != nil {
		return domain.QueueResult{}, fmt.Errorf("sweeping expired tickets: %w", err)
	}
	e.metrics.AddExpiredTickets(KindSolo, swept)

	ticket := &domain.Ticket{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Mode:      mode,
		Tier:      tier,
		Scope:     decision.Scope,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		ExpiresAt: now.Add(e.settings.TicketTTL),
		Version:   1,
	}
	stored, created, err := e.store.CreateTicket(ctx, ticket)
	if err != nil {
		return domain.QueueResult{}, fmt.Errorf("creating ticket: %w", err)
	}
	if !created {
		log.WithField("ticket_id", stored.ID).Debug("Player already queued")
		e.metrics.AddEnqueueOutcome(KindSolo, stored.Bucket(), domain.OutcomeQueued)
		return domain.ResultFromTicket(stored), nil
	}
	log.WithFields(logrus.Fields{"ticket_id": stored.ID, "scope": stored.Scope, "tier": stored.Tier}).Debug("Ticket queued")

	result, err := e.match(ctx, stored, log)
	if err != nil {
		return domain.QueueResult{}, err
	}
	e.metrics.AddEnqueueOutcome(KindSolo, stored.Bucket(), result.Outcome)
	return result, nil
}

// match runs up to MatchAttempts transactional pairing attempts. Only a lost
// race is retried; an empty pool ends the loop.
func (e *Engine) match(ctx context.Context, ticket *domain.Ticket, log *logrus.Entry) (domain.QueueResult, error) {
	current := ticket
	for attempt := 1; attempt <= e.settings.MatchAttempts; attempt++ {
		now := e.now()
		var own, opponent *domain.Ticket
		err := e.store.WithTicketTx(ctx, func(tx TicketTx) error {
			var err error
			own, opponent, err = e.matcher.Pair(ctx, tx, ticket.ID, now)
			return err
		})
		if errors.Is(err, domain.ErrVersionConflict) {
			e.metrics.AddMatchConflict(KindSolo)
			log.WithField("attempt", attempt).Debug("Match attempt lost a race")
			continue
		}
		if err != nil {
			return domain.QueueResult{}, fmt.Errorf("matching ticket %s: %w", ticket.ID, err)
		}

		current = own
		if opponent != nil {
			e.matched(ctx, own, opponent, now)
			log.WithFields(logrus.Fields{"opponent_id": opponent.PlayerID, "match_id": own.MatchID}).Info("Players matched")
			return domain.ResultFromTicket(own), nil
		}
		break
	}
	return domain.ResultFromTicket(current), nil
}

// matched runs after commit; nothing here can undo the match
func (e *Engine) matched(ctx context.Context, a, b *domain.Ticket, now time.Time) {
	for _, t := range []*domain.Ticket{a, b} {
		e.metrics.ObserveQueueWait(KindSolo, t.Bucket(), now.Sub(t.CreatedAt))
		e.notifier.OnMatched(ctx, domain.MatchedEvent{
			PlayerID:   t.PlayerID,
			OpponentID: t.OpponentID,
			TicketID:   t.ID,
			MatchID:    t.MatchID,
			Mode:       t.Mode,
			Tier:       t.Tier,
			Scope:      t.Scope,
		})
	}
}

// Cancel withdraws the player's queued ticket. It reports whether a ticket
// was cancelled; having nothing to cancel is not an error, and a ticket that
// was already matched stays matched.
func (e *Engine) Cancel(ctx context.Context, playerID string) (bool, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return false, domain.ErrInvalidPlayer
	}
	t, err := e.store.CancelQueuedTicket(ctx, playerID, e.now())
	if err != nil {
		return false, fmt.Errorf("cancelling ticket: %w", err)
	}
	if t == nil {
		return false, nil
	}
	e.log.WithFields(logrus.Fields{"player_id": playerID, "ticket_id": t.ID}).Debug("Ticket cancelled")
	return true, nil
}

// GetStatus reports the player's most recent live ticket, or none
func (e *Engine) GetStatus(ctx context.Context, playerID string) (domain.QueueResult, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return domain.QueueResult{}, domain.ErrInvalidPlayer
	}
	t, err := e.store.LatestTicket(ctx, playerID, e.now())
	if err != nil {
		return domain.QueueResult{}, fmt.Errorf("reading ticket: %w", err)
	}
	return domain.ResultFromTicket(t), nil
}

// SweepExpired reaps every queued ticket past its TTL
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	n, err := e.store.ExpireStaleTickets(ctx, e.now())
	if err != nil {
		return 0, err
	}
	e.metrics.AddExpiredTickets(KindSolo, n)
	return n, nil
}

// evaluate asks the gate about one player. A gate that fails is treated as
// a denial.
func evaluate(ctx context.Context, gate EnforcementGate, playerID string, log *logrus.Entry) Decision {
	decision, err := gate.Evaluate(ctx, playerID)
	if err != nil {
		log.WithError(err).Warn("Enforcement check failed, denying entry")
		return Decision{CanEnter: false, Scope: domain.ScopeGlobal}
	}
	if !decision.Scope.Valid() {
		decision.Scope = domain.ScopeGlobal
	}
	return decision
}
