package arbor

import (
	"context"
)

// HardwareThread runs the commit and release cycle of the display on its
// own goroutine, so waits on the display controller never block the main
// loop. Work arrives through a task queue; Run drains it.
type HardwareThread struct {
	backend *HdiBackend
	opts    hardwareOptions
	tasks   *taskQueue
}

// NewHardwareThread returns a thread committing through backend. A nil
// backend means the device failed to initialize: layers are then released
// right away and nothing is shown.
func NewHardwareThread(backend *HdiBackend, opts ...HardwareOption) *HardwareThread {
	o := defaultHardwareOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &HardwareThread{
		backend: backend,
		opts:    o,
		tasks:   newTaskQueue(o.queueSize),
	}
}

// Backend returns the backend, or nil when hardware composition is off.
func (h *HardwareThread) Backend() *HdiBackend { return h.backend }

// Output returns the output for screenID, or nil when hardware composition
// is off.
func (h *HardwareThread) Output(screenID uint32, width, height int) *HdiOutput {
	if h.backend == nil {
		return nil
	}
	return h.backend.Output(screenID, width, height)
}

// Run executes posted tasks until ctx is done. Tasks still queued at that
// point run before Run returns so their buffers are released.
func (h *HardwareThread) Run(ctx context.Context) error {
	Logger().Info("hardware thread started")
	defer Logger().Info("hardware thread stopped")
	h.tasks.run(ctx)
	return nil
}

// PostTask queues fn for the hardware goroutine. It returns ErrStopped once
// Run has stopped taking tasks.
func (h *HardwareThread) PostTask(fn func()) error {
	return h.tasks.post(fn)
}

// CommitAndReleaseLayers shows layers on output and, once committed, hands
// every layer's previous buffer back to its producer with the display's
// release fence.
func (h *HardwareThread) CommitAndReleaseLayers(output *HdiOutput, layers []*LayerInfo) {
	task := func() {
		if h.backend == nil || output == nil {
			h.releaseWithoutCommit(layers)
			return
		}
		output.SetLayerInfo(layers)
		if err := h.backend.Repaint(output); err != nil {
			Logger().Warn("repaint failed, frame dropped", "screen", output.ScreenID(), "err", err)
		}
		h.releaseLayers(output)
		h.backend.engine.ShrinkCachesIfNeeded(false)
	}
	if err := h.PostTask(task); err != nil {
		h.releaseWithoutCommit(layers)
	}
}

func (h *HardwareThread) releaseLayers(output *HdiOutput) {
	for _, l := range output.layers {
		if l.Consumer == nil || !l.IsSupportedPresentTimestamp() || l.Buffer == nil {
			continue
		}
		l.Consumer.SetPresentTimestamp(l.Buffer.Seq(), l.PresentTimestamp())
	}
	fences := h.backend.LayersReleaseFence(output)
	if len(fences) == 0 {
		Logger().Debug("no layer needs to release", "screen", output.ScreenID())
	}
	var commitFence *Fence
	for _, l := range output.layers {
		f := fences[l]
		releaseBuffer(l.Consumer, l.PreBuffer, f)
		l.PreBuffer = nil
		commitFence = MergeFence(commitFence, f)
	}
	if h.opts.onCommit != nil {
		h.opts.onCommit(output.ScreenID(), commitFence)
	}
}

func (h *HardwareThread) releaseWithoutCommit(layers []*LayerInfo) {
	for _, l := range layers {
		releaseBuffer(l.Consumer, l.PreBuffer, SignaledFence())
		l.PreBuffer = nil
	}
}

func releaseBuffer(q *BufferQueue, b *Buffer, fence *Fence) {
	if q == nil || b == nil {
		return
	}
	if err := q.ReleaseBuffer(b, fence); err != nil {
		Logger().Warn("release buffer failed", "queue", q.Name(), "seq", b.Seq(), "err", err)
	}
}
