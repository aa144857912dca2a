package ai

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultRequestsPerWindow = 15
	DefaultWindow            = time.Minute
)

// Governor is a cooperative per-instance throttle. It never rejects a call;
// once the window's budget is spent, Wait blocks until the window rolls over.
// It does not coordinate across processes.
type Governor struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewGovernor(limit int, window time.Duration) *Governor {
	if limit <= 0 {
		limit = DefaultRequestsPerWindow
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Governor{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait reserves one call slot, sleeping first if the window is exhausted.
func (g *Governor) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := g.now()
		if g.windowStart.IsZero() || now.Sub(g.windowStart) >= g.window {
			g.windowStart = now
			g.count = 0
		}
		if g.count < g.limit {
			g.count++
			g.mu.Unlock()
			return nil
		}
		wait := g.window - now.Sub(g.windowStart)
		g.mu.Unlock()

		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
