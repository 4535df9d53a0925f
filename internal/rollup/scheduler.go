package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/hibi/internal/models"
)

// Runner runs a rollup for one date.
type Runner interface {
	Run(ctx context.Context, date time.Time) (Outcome, error)
}

// Scheduler rolls up the previous day once a day at a fixed local time.
type Scheduler struct {
	runner Runner
	hour   int
	minute int
	loc    *time.Location
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
	logger *slog.Logger
}

// NewScheduler creates a Scheduler firing daily at clock ("HH:MM") in loc.
func NewScheduler(runner Runner, clock string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner: runner,
		hour:   hour,
		minute: minute,
		loc:    loc,
		now:    time.Now,
		after:  time.After,
		logger: logger,
	}, nil
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("rollup: invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun returns the first hour:minute in now's location strictly after now.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is cancelled. Rollup failures are logged and do not
// stop the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		now := s.now().In(s.loc)
		next := NextRun(now, s.hour, s.minute)
		s.logger.Info("rollup: next scheduled run", slog.Time("at", next))

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(now)):
		}

		y, m, d := next.AddDate(0, 0, -1).Date()
		target := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
		out, err := s.runner.Run(ctx, target)
		if err != nil {
			s.logger.Error("rollup: scheduled run failed",
				slog.String("date", target.Format(models.DateLayout)),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("rollup: scheduled run finished",
			slog.String("date", target.Format(models.DateLayout)),
			slog.String("state", string(out.State)),
			slog.String("reason", string(out.Reason)))
	}
}
