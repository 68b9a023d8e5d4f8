package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Sweeper reaps queued tickets that outlived their TTL
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Reaper runs every sweeper on a fixed interval. Expired tickets are already
// ignored by matching; this only keeps the queued set small.
type Reaper struct {
	scheduler gocron.Scheduler
	sweepers  map[string]Sweeper
	log       *logrus.Entry
}

// New schedules the sweep job; call Start to begin running it
func New(interval time.Duration, sweepers map[string]Sweeper, log *logrus.Entry) (*Reaper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	r := &Reaper{scheduler: s, sweepers: sweepers, log: log.WithField("component", "reaper")}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.Sweep, context.Background()),
		gocron.WithName("expire-tickets"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("scheduling sweep: %w", err)
	}
	return r, nil
}

// Sweep runs every sweeper once and returns the total reaped
func (r *Reaper) Sweep(ctx context.Context) int64 {
	var total int64
	for name, sweeper := range r.sweepers {
		n, err := sweeper.SweepExpired(ctx)
		if err != nil {
			r.log.WithError(err).WithField("queue", name).Error("Sweep failed")
			continue
		}
		if n > 0 {
			r.log.WithFields(logrus.Fields{"queue": name, "expired": n}).Info("Expired stale tickets")
		}
		total += n
	}
	return total
}

func (r *Reaper) Start() {
	r.scheduler.Start()
}

// Stop waits for a running sweep to finish
func (r *Reaper) Stop() error {
	return r.scheduler.Shutdown()
}
