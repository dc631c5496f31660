package interview

import (
	"context"
	"time"
)

// Countdown ticks once per Interval from Seconds down to zero. It replaces
// the recording timer a browser would otherwise run.
type Countdown struct {
	Seconds  int
	Interval time.Duration
}

// Run calls onTick with the remaining seconds, starting at Seconds and ending
// at 0, unless ctx is cancelled or onTick fails first. It returns the number
// of seconds that elapsed.
func (c Countdown) Run(ctx context.Context, onTick func(remaining int) error) (int, error) {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}
	remaining := c.Seconds
	if remaining < 0 {
		remaining = 0
	}
	if err := onTick(remaining); err != nil {
		return 0, err
	}
	if remaining == 0 {
		return 0, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return c.Seconds - remaining, err
		}
		select {
		case <-ctx.Done():
			return c.Seconds - remaining, ctx.Err()
		case <-ticker.C:
			remaining--
			if err := onTick(remaining); err != nil {
				return c.Seconds - remaining, err
			}
		}
	}
	return c.Seconds, nil
}
