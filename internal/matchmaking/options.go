package matchmaking

import (
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/sirupsen/logrus"
)

// Settings tunes ticket lifetime and matching
type Settings struct {
	TicketTTL     time.Duration
	DefaultMode   string
	MatchAttempts int
	PartyMaxSize  int
}

// DefaultSettings returns the production defaults
func DefaultSettings() Settings {
	return Settings{
		TicketTTL:     domain.DefaultTicketTTL,
		DefaultMode:   domain.DefaultMode,
		MatchAttempts: 2,
		PartyMaxSize:  domain.DefaultPartyMaxSize,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.TicketTTL <= 0 {
		s.TicketTTL = d.TicketTTL
	}
	if s.DefaultMode == "" {
		s.DefaultMode = d.DefaultMode
	}
	if s.MatchAttempts <= 0 {
		s.MatchAttempts = d.MatchAttempts
	}
	if s.PartyMaxSize <= 0 {
		s.PartyMaxSize = d.PartyMaxSize
	}
	return s
}

type options struct {
	settings Settings
	metrics  Metrics
	log      *logrus.Entry
	now      func() time.Time
}

// Option configures an Engine, PartyEngine or Parties service
type Option func(*options)

func WithSettings(s Settings) Option {
	return func(o *options) { o.settings = s }
}

func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}

// WithClock replaces time.Now, mostly for expiry tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(component string, opts []Option) options {
	o := options{
		settings: DefaultSettings(),
		metrics:  NoMetrics(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.settings = o.settings.withDefaults()
	if o.log == nil {
		o.log = logrus.NewEntry(logrus.StandardLogger())
	}
	o.log = o.log.WithField("component", component)
	return o
}
