package reaper

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int64
	n     int64
	err   error
}

func (c *countingSweeper) SweepExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return c.n, c.err
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestSweepTotals(t *testing.T) {
	solo := &countingSweeper{n: 3}
	party := &countingSweeper{err: errors.New("locked")}
	r, err := New(time.Hour, map[string]Sweeper{"solo": solo, "party": party}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { r.Stop() })

	assert.EqualValues(t, 3, r.Sweep(context.Background()))
	assert.EqualValues(t, 1, party.calls.Load())
}

func TestReaperRunsOnInterval(t *testing.T) {
	solo := &countingSweeper{}
	r, err := New(20*time.Millisecond, map[string]Sweeper{"solo": solo}, quietLogger())
	require.NoError(t, err)
	r.Start()

	assert.Eventually(t, func() bool { return solo.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Stop())
}

func TestRejectsZeroInterval(t *testing.T) {
	_, err := New(0, nil, nil)
	assert.Error(t, err)
}
