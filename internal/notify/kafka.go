package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageWriter is satisfied by *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier appends match outcomes to a topic for analytics and match
// history. Messages are keyed by match id so both sides land on the same
// partition; roster events are keyed by party id.
type KafkaNotifier struct {
	writer  MessageWriter
	log     *logrus.Entry
	timeout time.Duration
	now     func() time.Time
}

var _ matchmaking.Notifier = (*KafkaNotifier)(nil)

// NewKafkaWriter builds a writer for topic that balances on message key
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaNotifier(writer MessageWriter, log *logrus.Entry) *KafkaNotifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &KafkaNotifier{
		writer:  writer,
		log:     log.WithField("component", "kafka"),
		timeout: 10 * time.Second,
		now:     time.Now,
	}
}

func (k *KafkaNotifier) write(ctx context.Context, key string, event domain.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		k.log.WithError(err).Error("Failed to encode event")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Type)},
		},
		Time: event.Timestamp,
	})
	if err != nil {
		k.log.WithError(err).WithField("event", event.Type).Warn("Failed to write event")
	}
}

func (k *KafkaNotifier) OnMatched(ctx context.Context, e domain.MatchedEvent) {
	k.write(ctx, e.MatchID, domain.Event{Type: domain.EventMatched, MatchID: e.MatchID, Timestamp: k.now(), Data: e})
}

func (k *KafkaNotifier) OnPartyMatched(ctx context.Context, e domain.PartyMatchedEvent) {
	k.write(ctx, e.MatchID, domain.Event{Type: domain.EventPartyMatched, MatchID: e.MatchID, Timestamp: k.now(), Data: e})
}

func (k *KafkaNotifier) OnRosterUpdated(ctx context.Context, e domain.RosterEvent) {
	k.write(ctx, e.PartyID, domain.Event{Type: domain.EventRosterUpdated, Timestamp: k.now(), Data: e})
}

func (k *KafkaNotifier) OnPartyClosed(ctx context.Context, e domain.PartyClosedEvent) {
	k.write(ctx, e.PartyID, domain.Event{Type: domain.EventPartyClosed, Timestamp: k.now(), Data: e})
}

// Close flushes and closes the writer
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
