package arbor

import "time"

// ContextOption configures a Context during creation.
//
// Example:
//
//	ctx := arbor.NewContext(arbor.WithDebug(true))
type ContextOption func(*contextOptions)

type contextOptions struct {
	debug bool
}

func defaultContextOptions() contextOptions {
	return contextOptions{}
}

// WithDebug enables debug diagnostics: tagged dirty-region records,
// tree-depth and child-count warnings, and per-frame timing logs.
func WithDebug(enabled bool) ContextOption {
	return func(o *contextOptions) {
		o.debug = enabled
	}
}

// LoopOption configures a MainLoop during creation.
//
// Example:
//
//	loop := arbor.NewMainLoop(ctx,
//		arbor.WithRenderMode(arbor.RenderModeUnified),
//		arbor.WithVSync(arbor.NewTickerVSync(60)),
//		arbor.WithHardwareThread(hw),
//	)
type LoopOption func(*loopOptions)

type loopOptions struct {
	mode             RenderMode
	vsync            VSyncSource
	hardware         *HardwareThread
	engine           *RenderEngine
	partialRender    bool
	timeoutThreshold time.Duration
	onTimeout        func(elapsed time.Duration)
	taskQueueSize    int
}

func defaultLoopOptions() loopOptions {
	return loopOptions{
		mode:             RenderModeDivided,
		timeoutThreshold: 5 * time.Second,
		taskQueueSize:    256,
	}
}

// WithRenderMode selects divided or unified composition. Divided is the
// default.
func WithRenderMode(m RenderMode) LoopOption {
	return func(o *loopOptions) {
		o.mode = m
	}
}

// WithVSync sets the vsync source driving the loop. Without one the loop
// only runs frames triggered by RequestNextVSync through a ManualVSync.
func WithVSync(v VSyncSource) LoopOption {
	return func(o *loopOptions) {
		o.vsync = v
	}
}

// WithHardwareThread sets the thread committing layers to the display.
// Without one, frames are built but nothing is presented.
func WithHardwareThread(hw *HardwareThread) LoopOption {
	return func(o *loopOptions) {
		o.hardware = hw
	}
}

// WithRenderEngine sets the engine used by unified composition and
// captures. A default engine is created when none is given.
func WithRenderEngine(e *RenderEngine) LoopOption {
	return func(o *loopOptions) {
		o.engine = e
	}
}

// WithPartialRender limits unified redraws to the damaged area of each
// display.
func WithPartialRender(enabled bool) LoopOption {
	return func(o *loopOptions) {
		o.partialRender = enabled
	}
}

// WithTimeoutThreshold sets how long one loop iteration may take before the
// time-out detector reports it. Zero disables the detector.
func WithTimeoutThreshold(d time.Duration, onTimeout func(elapsed time.Duration)) LoopOption {
	return func(o *loopOptions) {
		o.timeoutThreshold = d
		o.onTimeout = onTimeout
	}
}

// WithTaskQueueSize sets the capacity of the loop's task queue.
func WithTaskQueueSize(n int) LoopOption {
	return func(o *loopOptions) {
		if n > 0 {
			o.taskQueueSize = n
		}
	}
}

// HardwareOption configures a HardwareThread during creation.
type HardwareOption func(*hardwareOptions)

type hardwareOptions struct {
	queueSize int
	onCommit  func(screenID uint32, fence *Fence)
}

func defaultHardwareOptions() hardwareOptions {
	return hardwareOptions{queueSize: 16}
}

// WithHardwareQueueSize sets the capacity of the hardware task queue.
func WithHardwareQueueSize(n int) HardwareOption {
	return func(o *hardwareOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithCommitHook registers fn to run on the hardware goroutine after every
// commit, with the fence the display returned.
func WithCommitHook(fn func(screenID uint32, fence *Fence)) HardwareOption {
	return func(o *hardwareOptions) {
		o.onCommit = fn
	}
}
