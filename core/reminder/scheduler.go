package reminder

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
)

// DefaultTimes are the times of day batches run at.
var DefaultTimes = []string{"08:00", "10:00", "12:00", "14:00", "16:00"}

// ParseTimes parses HH:MM times of day into offsets from midnight, sorted and deduplicated.
func ParseTimes(times []string) ([]time.Duration, error) {
	seen := make(map[time.Duration]bool)
	offsets := make([]time.Duration, 0, len(times))
	for _, s := range times {
		t, err := time.Parse("15:04", s)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing time of day %q", s)
		}
		off := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
		if !seen[off] {
			seen[off] = true
			offsets = append(offsets, off)
		}
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets, nil
}

// NextRun returns the first instant strictly after now matching one of offsets, in loc.
func NextRun(now time.Time, offsets []time.Duration, loc *time.Location) time.Time {
	now = now.In(loc)
	for day := 0; day < 2; day++ {
		y, m, d := now.AddDate(0, 0, day).Date()
		for _, off := range offsets {
			h, mm := int(off/time.Hour), int(off%time.Hour/time.Minute)
			if at := time.Date(y, m, d, h, mm, 0, 0, loc); at.After(now) {
				return at
			}
		}
	}
	return time.Time{}
}

// Scheduler runs batches at fixed times of day.
type Scheduler struct {
	runner  *Runner
	offsets []time.Duration
	loc     *time.Location
	logger  core.Logger
}

func NewScheduler(runner *Runner, times []string, loc *time.Location, logger core.Logger) (*Scheduler, error) {
	if len(times) == 0 {
		times = DefaultTimes
	}
	offsets, err := ParseTimes(times)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{runner: runner, offsets: offsets, loc: loc, logger: logger}, nil
}

// Start blocks, running a batch at every scheduled time, until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := NextRun(NowFunc(), s.offsets, s.loc)
		s.logger.Debug("next reminder batch", map[string]interface{}{"at": next.Format(time.RFC3339)})

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := s.runner.Run(ctx, next.Format(core.DateLayout)); err != nil {
			s.logger.Error("scheduled reminder batch", map[string]interface{}{"error": err.Error()})
		}
	}
}
