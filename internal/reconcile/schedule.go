package reconcile

import (
	"context"
	"errors"
	"time"
)

// NextMidnight returns the first local midnight strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// Schedule runs the sweep at the next local midnight and then every interval
// until ctx is cancelled.
func (s *Sweeper) Schedule(ctx context.Context, loc *time.Location, interval time.Duration) {
	first := NextMidnight(time.Now(), loc)
	s.log.Info().Time("first_run", first).Dur("interval", interval).Msg("sweep scheduled")

	timer := time.NewTimer(time.Until(first))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.Run(ctx, TriggerSchedule, 0); errors.Is(err, ErrSweepInProgress) {
				s.log.Warn().Msg("scheduled sweep skipped, manual sweep still running")
			}
			timer.Reset(interval)
		}
	}
}
