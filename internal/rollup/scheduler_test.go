package rollup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, date time.Time) (Outcome, error)

func (f runnerFunc) Run(ctx context.Context, date time.Time) (Outcome, error) { return f(ctx, date) }

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("00:05")
	require.NoError(t, err)
	assert.Equal(t, 0, h)
	assert.Equal(t, 5, m)

	_, _, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestNextRun(t *testing.T) {
	before := time.Date(2025, 3, 1, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 5, 0, 0, time.UTC), NextRun(before, 0, 5))

	after := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 5, 0, 0, time.UTC), NextRun(after, 0, 5))

	exact := time.Date(2025, 3, 1, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 5, 0, 0, time.UTC), NextRun(exact, 0, 5))
}

func TestScheduler_RollsUpYesterday(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var dates []time.Time
	runner := runnerFunc(func(_ context.Context, date time.Time) (Outcome, error) {
		mu.Lock()
		defer mu.Unlock()
		dates = append(dates, date)
		if len(dates) == 2 {
			cancel()
			return Outcome{}, errors.New("disk full")
		}
		return Outcome{State: Done}, nil
	})

	s, err := NewScheduler(runner, "00:05", jst, nil)
	require.NoError(t, err)

	// 2025-03-01 23:00 JST
	now := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	var waits []time.Duration
	s.now = func() time.Time { return now }
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		now = now.Add(d)
		ch := make(chan time.Time, 1)
		ch <- now
		return ch
	}

	require.NoError(t, s.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dates, 2)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, jst), dates[0])
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, jst), dates[1])
	assert.Equal(t, 65*time.Minute, waits[0])
	assert.Equal(t, 24*time.Hour, waits[1])
}

func TestNewScheduler_InvalidClock(t *testing.T) {
	_, err := NewScheduler(runnerFunc(nil), "noon", time.UTC, nil)
	assert.Error(t, err)
}
