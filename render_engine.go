package arbor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// maxPooledCanvases is the number of idle canvases the engine keeps for
// reuse after ShrinkCachesIfNeeded.
const maxPooledCanvases = 4

// RenderEngine draws frames on the CPU through gogpu/gg. It backs unified
// composition, client composition of layers the display refused, and
// captures. Safe for concurrent use.
type RenderEngine struct {
	fenceTimeout time.Duration

	mu       sync.Mutex
	canvases map[[2]int][]*SoftCanvas
	idle     int
}

// NewRenderEngine returns an engine that waits up to 100ms for a buffer's
// fence before giving up on it for the frame.
func NewRenderEngine() *RenderEngine {
	return &RenderEngine{
		fenceTimeout: 100 * time.Millisecond,
		canvases:     make(map[[2]int][]*SoftCanvas),
	}
}

func (e *RenderEngine) acquireCanvas(w, h int) *SoftCanvas {
	key := [2]int{w, h}
	e.mu.Lock()
	if stack := e.canvases[key]; len(stack) > 0 {
		c := stack[len(stack)-1]
		e.canvases[key] = stack[:len(stack)-1]
		e.idle--
		e.mu.Unlock()
		c.Reset()
		return c
	}
	e.mu.Unlock()
	return NewSoftCanvas(w, h)
}

func (e *RenderEngine) releaseCanvas(c *SoftCanvas) {
	key := [2]int{c.Width(), c.Height()}
	e.mu.Lock()
	e.canvases[key] = append(e.canvases[key], c)
	e.idle++
	e.mu.Unlock()
}

// ShrinkCachesIfNeeded closes pooled canvases beyond a small budget, or all
// of them when force is set.
func (e *RenderEngine) ShrinkCachesIfNeeded(force bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !force && e.idle <= maxPooledCanvases {
		return
	}
	for key, stack := range e.canvases {
		for _, c := range stack {
			if err := c.Close(); err != nil {
				Logger().Debug("close pooled canvas", "err", err)
			}
		}
		delete(e.canvases, key)
	}
	e.idle = 0
}

func (e *RenderEngine) waitFence(f *Fence) error {
	if f.Signaled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.fenceTimeout)
	defer cancel()
	return f.Wait(ctx)
}

// RenderFrame is one buffer being drawn by the engine. Flush queues it to
// the consumer; Cancel returns it unused.
type RenderFrame struct {
	engine *RenderEngine
	queue  *BufferQueue
	buffer *Buffer
	canvas *SoftCanvas
	done   bool
}

// RequestFrame takes a free buffer from q and returns a frame drawing into
// it. It fails when q has no free buffer or the buffer's release fence does
// not signal in time; the caller skips the frame.
func (e *RenderEngine) RequestFrame(q *BufferQueue) (*RenderFrame, error) {
	b, fence, err := q.RequestBuffer()
	if err != nil {
		return nil, err
	}
	if err := e.waitFence(fence); err != nil {
		if cerr := q.CancelBuffer(b); cerr != nil {
			Logger().Debug("cancel buffer", "queue", q.Name(), "err", cerr)
		}
		return nil, fmt.Errorf("request frame on %s: %w", q.Name(), err)
	}
	return &RenderFrame{
		engine: e,
		queue:  q,
		buffer: b,
		canvas: e.acquireCanvas(b.Width(), b.Height()),
	}, nil
}

// Canvas returns the canvas to draw the frame with.
func (f *RenderFrame) Canvas() *SoftCanvas { return f.canvas }

// Buffer returns the buffer the frame flushes into.
func (f *RenderFrame) Buffer() *Buffer { return f.buffer }

// Flush copies the drawing into the buffer and queues it for the consumer.
// An empty damage means the whole buffer.
func (f *RenderFrame) Flush(damage RectI) error {
	if f.done {
		return nil
	}
	f.done = true
	f.canvas.CopyTo(f.buffer.Image())
	f.engine.releaseCanvas(f.canvas)
	return f.queue.FlushBuffer(f.buffer, SignaledFence(), time.Now().UnixNano(), damage)
}

// Cancel gives the buffer back without queueing it.
func (f *RenderFrame) Cancel() {
	if f.done {
		return
	}
	f.done = true
	f.engine.releaseCanvas(f.canvas)
	if err := f.queue.CancelBuffer(f.buffer); err != nil {
		Logger().Debug("cancel frame", "queue", f.queue.Name(), "err", err)
	}
}

// DrawLayers draws layers into c in z-order. Used for client composition.
func (e *RenderEngine) DrawLayers(c Canvas, layers []*LayerInfo) {
	for _, l := range layers {
		e.DrawLayer(c, l)
	}
}

// DrawLayer draws one layer's buffer at its on-screen position.
func (e *RenderEngine) DrawLayer(c Canvas, l *LayerInfo) {
	if l.Buffer == nil {
		return
	}
	if err := e.waitFence(l.AcquireFence); err != nil {
		Logger().Warn("layer acquire fence timed out", "node", l.Node, "err", err)
		return
	}
	count := c.Save()
	defer c.RestoreToCount(count)
	if l.Clip != nil {
		c.ClipRect(*l.Clip)
	}
	c.Concat(l.Matrix)
	if l.Opacity < 1 {
		c.MultiplyAlpha(l.Opacity)
	}
	dst := l.Bounds
	if dst.IsEmpty() {
		dst = Rect{0, 0, float64(l.Buffer.Width()), float64(l.Buffer.Height())}
	}
	c.DrawImage(l.Buffer.Image(), l.SrcRect.ToRect(), dst)
}

// DrawSurfaceBuffer draws a surface node's current buffer over its bounds,
// in the node's local coordinates. It reports false when there was nothing
// to draw.
func (e *RenderEngine) DrawSurfaceBuffer(c Canvas, n *RenderNode) bool {
	s := n.surface
	if s == nil || s.buffer == nil {
		return false
	}
	if err := e.waitFence(s.acquireFence); err != nil {
		Logger().Warn("surface acquire fence timed out", "surface", s.name, "err", err)
		return false
	}
	c.DrawImage(s.buffer.Image(), s.srcRect.ToRect(), n.props.BoundsRect())
	return true
}
