package matchmaking

import (
	"strconv"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ticket kinds used as a metric label
const (
	KindSolo  = "solo"
	KindParty = "party"
)

// Metrics records engine activity
type Metrics interface {
	AddEnqueueOutcome(kind string, b domain.Bucket, outcome domain.Outcome)
	AddMatchConflict(kind string)
	AddExpiredTickets(kind string, count int64)
	ObserveQueueWait(kind string, b domain.Bucket, wait time.Duration)
}

// NewMetrics registers the engine collectors on registry
func NewMetrics(registry prometheus.Registerer) Metrics {
	factory := promauto.With(registry)
	bucketLabels := []string{"kind", "mode", "scope", "tier"}

	return prometheusMetrics{
		enqueueOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arenaq_enqueue_outcomes_total",
				Help: "Enqueue calls by pool and observed outcome",
			}, append(bucketLabels, "outcome")),
		matchConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arenaq_match_conflicts_total",
				Help: "Matching attempts lost to a concurrent writer",
			}, []string{"kind"}),
		expiredTickets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arenaq_expired_tickets_total",
				Help: "Queued tickets reaped after their TTL",
			}, []string{"kind"}),
		queueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arenaq_queue_wait_seconds",
				Help:    "Time from ticket creation to match",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			}, bucketLabels),
	}
}

type prometheusMetrics struct {
	enqueueOutcomes *prometheus.CounterVec
	matchConflicts  *prometheus.CounterVec
	expiredTickets  *prometheus.CounterVec
	queueWait       *prometheus.HistogramVec
}

// bucketLabels only carries the tier for tier_only pools, where it splits the
// queue; elsewhere the label is empty
func bucketLabels(kind string, b domain.Bucket) prometheus.Labels {
	tier := ""
	if b.Scope == domain.ScopeTierOnly {
		tier = strconv.Itoa(b.Tier)
	}
	return prometheus.Labels{"kind": kind, "mode": b.Mode, "scope": string(b.Scope), "tier": tier}
}

func (m prometheusMetrics) AddEnqueueOutcome(kind string, b domain.Bucket, outcome domain.Outcome) {
	labels := bucketLabels(kind, b)
	labels["outcome"] = string(outcome)
	m.enqueueOutcomes.With(labels).Inc()
}

func (m prometheusMetrics) AddMatchConflict(kind string) {
	m.matchConflicts.With(prometheus.Labels{"kind": kind}).Inc()
}

func (m prometheusMetrics) AddExpiredTickets(kind string, count int64) {
	if count > 0 {
		m.expiredTickets.With(prometheus.Labels{"kind": kind}).Add(float64(count))
	}
}

func (m prometheusMetrics) ObserveQueueWait(kind string, b domain.Bucket, wait time.Duration) {
	m.queueWait.With(bucketLabels(kind, b)).Observe(wait.Seconds())
}

type stubMetrics struct{}

func (stubMetrics) AddEnqueueOutcome(string, domain.Bucket, domain.Outcome) {}
func (stubMetrics) AddMatchConflict(string)                                 {}
func (stubMetrics) AddExpiredTickets(string, int64)                         {}
func (stubMetrics) ObserveQueueWait(string, domain.Bucket, time.Duration)   {}

// NoMetrics returns a Metrics that records nothing
func NoMetrics() Metrics {
	return stubMetrics{}
}
