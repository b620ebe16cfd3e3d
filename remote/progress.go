// Progress reporting for streaming calls.

package remote

import "sync"

// ProgressFunc receives incremental delivery from a streaming call:
// the new chunk, a percent-complete estimate, and a stage label.
type ProgressFunc func(chunk string, percent int, stage string)

// progressGuard enforces the progress contract on behalf of providers:
// percent is monotonically non-decreasing and reaches 100 exactly once,
// when the call layer confirms completion.
type progressGuard struct {
	mu       sync.Mutex
	fn       ProgressFunc
	last     int
	finished bool
}

func newProgressGuard(fn ProgressFunc) *progressGuard {
	return &progressGuard{fn: fn}
}

// report forwards a progress update, clamping percent into [last, 99] so
// retried attempts never appear to move backward and completion is only
// ever signalled by finish.
func (g *progressGuard) report(chunk string, percent int, stage string) {
	if g == nil || g.fn == nil {
		return
	}
	g.mu.Lock()
	if g.finished {
		g.mu.Unlock()
		return
	}
	if percent > 99 {
		percent = 99
	}
	if percent < g.last {
		percent = g.last
	}
	g.last = percent
	g.mu.Unlock()

	g.fn(chunk, percent, stage)
}

// finish emits the single terminal 100% update.
func (g *progressGuard) finish() {
	if g == nil || g.fn == nil {
		return
	}
	g.mu.Lock()
	if g.finished {
		g.mu.Unlock()
		return
	}
	g.finished = true
	g.mu.Unlock()

	g.fn("", 100, "complete")
}
