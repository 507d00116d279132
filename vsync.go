package arbor

import (
	"context"
	"sync"
	"time"
)

// VSyncSource delivers vertical sync signals on request. A request arms one
// callback; requests made before the signal fires collapse into it.
type VSyncSource interface {
	RequestNextVSync(fn func(timestamp int64))
}

// ManualVSync fires only when told to. Tests and devices with their own
// vblank interrupt (see Screen.Init) drive it with Fire.
type ManualVSync struct {
	mu      sync.Mutex
	pending func(int64)
}

// NewManualVSync returns a source with nothing armed.
func NewManualVSync() *ManualVSync { return &ManualVSync{} }

func (v *ManualVSync) RequestNextVSync(fn func(int64)) {
	v.mu.Lock()
	v.pending = fn
	v.mu.Unlock()
}

// Pending reports whether a callback is armed.
func (v *ManualVSync) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending != nil
}

// Fire runs the armed callback, if any, with timestamp. It reports whether
// a callback ran.
func (v *ManualVSync) Fire(timestamp int64) bool {
	v.mu.Lock()
	fn := v.pending
	v.pending = nil
	v.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(timestamp)
	return true
}

// OnVBlank adapts Fire to a device VBlankCallback.
func (v *ManualVSync) OnVBlank(_ uint32, timestamp int64) {
	v.Fire(timestamp)
}

// TickerVSync is a software vsync ticking at a fixed rate while Run is
// active.
type TickerVSync struct {
	period time.Duration
	manual ManualVSync
}

// NewTickerVSync returns a source ticking hz times a second.
func NewTickerVSync(hz int) *TickerVSync {
	if hz <= 0 {
		hz = 60
	}
	return &TickerVSync{period: time.Second / time.Duration(hz)}
}

func (v *TickerVSync) RequestNextVSync(fn func(int64)) {
	v.manual.RequestNextVSync(fn)
}

// Period returns the time between ticks.
func (v *TickerVSync) Period() time.Duration { return v.period }

// Run ticks until ctx is done.
func (v *TickerVSync) Run(ctx context.Context) error {
	t := time.NewTicker(v.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			v.manual.Fire(now.UnixNano())
		}
	}
}
