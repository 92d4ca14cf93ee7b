// Package ratelimit provides a per-project sliding-window rate limiter for
// outbound LLM calls. Each project gets an independent window sized by its
// requests_per_minute setting.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const window = time.Minute

// Limiter tracks request timestamps per project and blocks callers until a
// slot opens inside the sliding window. Waiters are served in FIFO order.
type Limiter struct {
	mu       sync.Mutex
	projects map[string]*projectWindow
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

type projectWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// NewLimiter creates a limiter with real clock behaviour.
func NewLimiter() *Limiter {
	return &Limiter{
		projects: make(map[string]*projectWindow),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until the project is allowed another request, then records it.
// limit <= 0 means unlimited. Returns the context error if ctx is cancelled
// while waiting.
func (l *Limiter) Wait(ctx context.Context, projectID string, limit int) error {
	if limit <= 0 {
		return nil
	}

	pw := l.window(projectID)

	// Holding the per-project lock across the sleep keeps waiters FIFO.
	pw.mu.Lock()
	defer pw.mu.Unlock()

	for {
		now := l.now()
		pw.prune(now)
		if len(pw.timestamps) < limit {
			pw.timestamps = append(pw.timestamps, now)
			return nil
		}
		wait := pw.timestamps[0].Add(window).Sub(now)
		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) window(projectID string) *projectWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	pw, ok := l.projects[projectID]
	if !ok {
		pw = &projectWindow{}
		l.projects[projectID] = pw
	}
	return pw
}

// prune drops timestamps older than the window.
func (pw *projectWindow) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(pw.timestamps) && !pw.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		pw.timestamps = append(pw.timestamps[:0], pw.timestamps[i:]...)
	}
}
