package arbor

import (
	"context"
	"sync/atomic"
	"time"
)

// loopDetector reports a main loop iteration that runs longer than a
// threshold. The loop brackets each iteration with begin and end; a
// separate goroutine polls.
type loopDetector struct {
	threshold time.Duration
	onTimeout func(elapsed time.Duration)

	// started is the UnixNano start of the running iteration, or 0.
	started  atomic.Int64
	reported atomic.Bool
}

func newLoopDetector(threshold time.Duration, onTimeout func(time.Duration)) *loopDetector {
	return &loopDetector{threshold: threshold, onTimeout: onTimeout}
}

func (d *loopDetector) begin() {
	d.reported.Store(false)
	d.started.Store(time.Now().UnixNano())
}

func (d *loopDetector) end() {
	d.started.Store(0)
}

// check reports the running iteration once if it is over the threshold.
func (d *loopDetector) check(now time.Time) bool {
	start := d.started.Load()
	if start == 0 {
		return false
	}
	elapsed := now.Sub(time.Unix(0, start))
	if elapsed < d.threshold || d.reported.Swap(true) {
		return false
	}
	Logger().Warn("main loop timeout", "elapsed", elapsed, "threshold", d.threshold)
	if d.onTimeout != nil {
		d.onTimeout(elapsed)
	}
	return true
}

func (d *loopDetector) run(ctx context.Context) error {
	t := time.NewTicker(max(d.threshold/2, time.Millisecond))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			d.check(now)
		}
	}
}
