package game

import (
	"context"
	"time"

	"terrain-stream/internal/config"
)

// FPSLimiter paces the headless frame loop. There is no vsync to hide
// behind, so it sleeps on a timer and can be interrupted by the context.
type FPSLimiter struct {
	next  time.Time
	timer *time.Timer
	// Idle accumulates the time spent waiting.
	Idle time.Duration
}

// NewFPSLimiter creates a new FPS limiter
func NewFPSLimiter() *FPSLimiter {
	return &FPSLimiter{}
}

// Wait blocks until the next frame is due under config.GetFPSLimit or ctx
// is done, in which case it returns ctx.Err().
func (f *FPSLimiter) Wait(ctx context.Context) error {
	limit := config.GetFPSLimit()
	if limit <= 0 {
		f.next = time.Time{}
		return ctx.Err()
	}

	interval := time.Second / time.Duration(limit)
	now := time.Now()
	if f.next.IsZero() || now.Sub(f.next) > interval {
		// First frame, or more than a frame behind: resync rather than
		// running a burst of catch-up frames.
		f.next = now.Add(interval)
	} else {
		f.next = f.next.Add(interval)
	}

	d := time.Until(f.next)
	if d <= 0 {
		return ctx.Err()
	}
	if f.timer == nil {
		f.timer = time.NewTimer(d)
	} else {
		f.timer.Reset(d)
	}
	select {
	case <-f.timer.C:
		f.Idle += d
		return nil
	case <-ctx.Done():
		if !f.timer.Stop() {
			<-f.timer.C
		}
		return ctx.Err()
	}
}
