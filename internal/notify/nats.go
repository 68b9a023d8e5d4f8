package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher is the part of *nats.Conn the notifier uses
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events for downstream services (game server
// allocation, chat, analytics). Per-player events go to
// <prefix>.player.<id>, match-wide events to <prefix>.match.<match id> and
// party events to <prefix>.party.<party id>.
type NATSNotifier struct {
	conn   Publisher
	prefix string
	log    *logrus.Entry
	now    func() time.Time
}

var _ matchmaking.Notifier = (*NATSNotifier)(nil)

func NewNATSNotifier(conn Publisher, prefix string, log *logrus.Entry) *NATSNotifier {
	if prefix == "" {
		prefix = "arenaq"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &NATSNotifier{conn: conn, prefix: prefix, log: log.WithField("component", "nats"), now: time.Now}
}

// Connect dials url with reconnects enabled
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

func (n *NATSNotifier) publish(subject string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		n.log.WithError(err).WithField("subject", subject).Error("Failed to encode event")
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.log.WithError(err).WithField("subject", subject).Warn("Failed to publish event")
	}
}

func (n *NATSNotifier) playerSubject(playerID string) string {
	return n.prefix + ".player." + playerID
}

func (n *NATSNotifier) OnMatched(_ context.Context, e domain.MatchedEvent) {
	n.publish(n.playerSubject(e.PlayerID), domain.Event{
		Type: domain.EventMatched, MatchID: e.MatchID, Timestamp: n.now(), Data: e,
	})
}

func (n *NATSNotifier) OnPartyMatched(_ context.Context, e domain.PartyMatchedEvent) {
	now := n.now()
	n.publish(n.prefix+".match."+e.MatchID, domain.Event{
		Type: domain.EventPartyMatched, MatchID: e.MatchID, Timestamp: now, Data: e,
	})
	for _, playerID := range e.AffectedPlayers() {
		payload, _ := e.PayloadFor(playerID)
		n.publish(n.playerSubject(playerID), domain.Event{
			Type: domain.EventPartyMatched, MatchID: e.MatchID, Timestamp: now, Data: payload,
		})
	}
}

func (n *NATSNotifier) OnRosterUpdated(_ context.Context, e domain.RosterEvent) {
	n.publish(n.prefix+".party."+e.PartyID, domain.Event{
		Type: domain.EventRosterUpdated, Timestamp: n.now(), Data: e,
	})
}

func (n *NATSNotifier) OnPartyClosed(_ context.Context, e domain.PartyClosedEvent) {
	n.publish(n.prefix+".party."+e.PartyID, domain.Event{
		Type: domain.EventPartyClosed, Timestamp: n.now(), Data: e,
	})
}
