package matchmaking

import (
	"context"
	"sync"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/sirupsen/logrus"
)

// Notifier delivers match and roster events to players. Delivery is best
// effort: implementations log failures and never report them back.
type Notifier interface {
	// OnMatched is called once per player of a solo match
	OnMatched(ctx context.Context, e domain.MatchedEvent)
	// OnPartyMatched is called once per party match and covers both sides
	OnPartyMatched(ctx context.Context, e domain.PartyMatchedEvent)
	OnRosterUpdated(ctx context.Context, e domain.RosterEvent)
	OnPartyClosed(ctx context.Context, e domain.PartyClosedEvent)
}

// Nop discards every event
type Nop struct{}

func (Nop) OnMatched(context.Context, domain.MatchedEvent)           {}
func (Nop) OnPartyMatched(context.Context, domain.PartyMatchedEvent) {}
func (Nop) OnRosterUpdated(context.Context, domain.RosterEvent)      {}
func (Nop) OnPartyClosed(context.Context, domain.PartyClosedEvent)   {}

// Multi fans every event out to each notifier in order
type Multi []Notifier

func (m Multi) OnMatched(ctx context.Context, e domain.MatchedEvent) {
	for _, n := range m {
		n.OnMatched(ctx, e)
	}
}

func (m Multi) OnPartyMatched(ctx context.Context, e domain.PartyMatchedEvent) {
	for _, n := range m {
		n.OnPartyMatched(ctx, e)
	}
}

func (m Multi) OnRosterUpdated(ctx context.Context, e domain.RosterEvent) {
	for _, n := range m {
		n.OnRosterUpdated(ctx, e)
	}
}

func (m Multi) OnPartyClosed(ctx context.Context, e domain.PartyClosedEvent) {
	for _, n := range m {
		n.OnPartyClosed(ctx, e)
	}
}

// Async hands events to a single background worker so that a slow transport
// never holds up the engine. When the queue is full events are dropped.
type Async struct {
	next Notifier
	log  *logrus.Entry

	queue chan func(context.Context, Notifier)
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsync starts the delivery worker. Close must be called to stop it.
func NewAsync(next Notifier, buffer int, log *logrus.Entry) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logrus.WithField("component", "notifier")
	}
	a := &Async{
		next:  next,
		log:   log,
		queue: make(chan func(context.Context, Notifier), buffer),
		done:  make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for {
		select {
		case job := <-a.queue:
			a.deliver(job)
		case <-a.done:
			// Drain what was accepted before Close
			for {
				select {
				case job := <-a.queue:
					a.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) deliver(job func(context.Context, Notifier)) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("panic", r).Error("Notifier panicked")
		}
	}()
	job(context.Background(), a.next)
}

func (a *Async) enqueue(kind string, job func(context.Context, Notifier)) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- job:
	default:
		a.log.WithField("event", kind).Warn("Notification queue full, dropping event")
	}
}

func (a *Async) OnMatched(_ context.Context, e domain.MatchedEvent) {
	a.enqueue(domain.EventMatched, func(ctx context.Context, n Notifier) { n.OnMatched(ctx, e) })
}

func (a *Async) OnPartyMatched(_ context.Context, e domain.PartyMatchedEvent) {
	a.enqueue(domain.EventPartyMatched, func(ctx context.Context, n Notifier) { n.OnPartyMatched(ctx, e) })
}

func (a *Async) OnRosterUpdated(_ context.Context, e domain.RosterEvent) {
	a.enqueue(domain.EventRosterUpdated, func(ctx context.Context, n Notifier) { n.OnRosterUpdated(ctx, e) })
}

func (a *Async) OnPartyClosed(_ context.Context, e domain.PartyClosedEvent) {
	a.enqueue(domain.EventPartyClosed, func(ctx context.Context, n Notifier) { n.OnPartyClosed(ctx, e) })
}

// Close stops accepting events and waits for queued ones to be delivered
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		close(a.done)
		a.wg.Wait()
	})
}
