package arbor

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// Fence signals that a GPU or display operation on a buffer has completed.
// A nil *Fence is always signalled.
type Fence struct {
	done chan struct{}
	once sync.Once
}

// NewFence returns an unsignalled fence.
func NewFence() *Fence {
	return &Fence{done: make(chan struct{})}
}

// SignaledFence returns a fence that is already signalled.
func SignaledFence() *Fence {
	f := NewFence()
	f.Signal()
	return f
}

// Signal marks the fence complete. Extra calls are no-ops.
func (f *Fence) Signal() {
	if f == nil {
		return
	}
	f.once.Do(func() { close(f.done) })
}

// Signaled reports whether the fence has been signalled.
func (f *Fence) Signaled() bool {
	if f == nil {
		return true
	}
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the fence is signalled or ctx is done.
func (f *Fence) Wait(ctx context.Context) error {
	if f == nil {
		return nil
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MergeFence returns a fence signalled once both a and b are.
func MergeFence(a, b *Fence) *Fence {
	switch {
	case a.Signaled():
		return b
	case b.Signaled():
		return a
	}
	m := NewFence()
	go func() {
		<-a.done
		<-b.done
		m.Signal()
	}()
	return m
}

// PixelFormat is a buffer's pixel layout.
type PixelFormat uint8

const (
	PixelFormatRGBA8888 PixelFormat = iota
	PixelFormatRGBX8888
	PixelFormatYUV420
)

// Buffer is a reference-counted pixel buffer shared between a producer, the
// loop and the hardware device.
type Buffer struct {
	seq    uint32
	img    *image.RGBA
	format PixelFormat
	refs   atomic.Int32
}

// Seq returns the buffer's sequence number within its queue.
func (b *Buffer) Seq() uint32 { return b.seq }

// Image returns the pixels.
func (b *Buffer) Image() *image.RGBA { return b.img }

// Format returns the pixel format.
func (b *Buffer) Format() PixelFormat { return b.format }

// Width returns the width in pixels.
func (b *Buffer) Width() int { return b.img.Rect.Dx() }

// Height returns the height in pixels.
func (b *Buffer) Height() int { return b.img.Rect.Dy() }

// Ref adds a reference.
func (b *Buffer) Ref() { b.refs.Add(1) }

// Unref drops a reference and reports whether it was the last.
func (b *Buffer) Unref() bool { return b.refs.Add(-1) == 0 }

// Refs returns the current reference count.
func (b *Buffer) Refs() int32 { return b.refs.Load() }

// AcquiredBuffer is what a consumer gets from AcquireBuffer.
type AcquiredBuffer struct {
	Buffer    *Buffer
	Fence     *Fence
	Timestamp int64
	Damage    RectI
}

type bufferSlot struct {
	buf   *Buffer
	fence *Fence
}

// BufferQueue connects one producer to one consumer. The producer requests a
// free buffer, draws, and flushes it with an acquire fence; the consumer
// acquires queued buffers in order and releases them with a release fence
// the producer waits on before drawing again.
type BufferQueue struct {
	name   string
	pool   *renderTargetPool
	format PixelFormat

	mu          sync.Mutex
	width       int
	height      int
	maxBuffers  int
	nextSeq     uint32
	allocated   int
	free        []bufferSlot
	queued      []AcquiredBuffer
	owned       map[*Buffer]bool
	onAvailable func()
	present     map[uint32]PresentTimestamp
	lastPresent PresentTimestamp
}

// NewBufferQueue returns a queue of up to maxBuffers buffers of the given
// size.
func NewBufferQueue(name string, width, height, maxBuffers int) *BufferQueue {
	if maxBuffers <= 0 {
		maxBuffers = 3
	}
	return &BufferQueue{
		name:       name,
		pool:       &renderTargetPool{},
		width:      width,
		height:     height,
		maxBuffers: maxBuffers,
		owned:      make(map[*Buffer]bool),
	}
}

// Name returns the queue name.
func (q *BufferQueue) Name() string { return q.name }

// SetFormat sets the pixel format of buffers allocated afterwards.
func (q *BufferQueue) SetFormat(f PixelFormat) {
	q.mu.Lock()
	q.format = f
	q.mu.Unlock()
}

// Size returns the buffer size.
func (q *BufferQueue) Size() (int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.width, q.height
}

// SetSize changes the size of buffers handed out afterwards. Free buffers of
// the old size are dropped.
func (q *BufferQueue) SetSize(w, h int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w == q.width && h == q.height {
		return
	}
	q.width, q.height = w, h
	for _, s := range q.free {
		delete(q.owned, s.buf)
		q.allocated--
		q.pool.Release(s.buf.img)
	}
	q.free = q.free[:0]
}

// SetOnAvailable registers a callback invoked after each FlushBuffer. The
// callback runs on the producer's goroutine.
func (q *BufferQueue) SetOnAvailable(fn func()) {
	q.mu.Lock()
	q.onAvailable = fn
	q.mu.Unlock()
}

// RequestBuffer hands a free buffer to the producer together with the
// release fence it must wait on. It returns ErrNoBuffer when every buffer is
// in flight.
func (q *BufferQueue) RequestBuffer() (*Buffer, *Fence, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n := len(q.free); n > 0 {
		s := q.free[n-1]
		q.free = q.free[:n-1]
		s.buf.Ref()
		return s.buf, s.fence, nil
	}
	if q.allocated >= q.maxBuffers {
		return nil, nil, fmt.Errorf("queue %s: %w", q.name, ErrNoBuffer)
	}
	q.nextSeq++
	b := &Buffer{seq: q.nextSeq, img: q.pool.Acquire(q.width, q.height), format: q.format}
	b.Ref()
	q.allocated++
	q.owned[b] = true
	return b, nil, nil
}

// FlushBuffer queues a drawn buffer for the consumer.
func (q *BufferQueue) FlushBuffer(b *Buffer, fence *Fence, timestamp int64, damage RectI) error {
	q.mu.Lock()
	if !q.owned[b] {
		q.mu.Unlock()
		return fmt.Errorf("queue %s: flush: %w", q.name, ErrBufferNotOwned)
	}
	if damage.IsEmpty() {
		damage = RectI{0, 0, b.Width(), b.Height()}
	}
	q.queued = append(q.queued, AcquiredBuffer{Buffer: b, Fence: fence, Timestamp: timestamp, Damage: damage})
	fn := q.onAvailable
	q.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// CancelBuffer returns a requested buffer without queueing it.
func (q *BufferQueue) CancelBuffer(b *Buffer) error {
	return q.ReleaseBuffer(b, nil)
}

// AvailableCount returns the number of queued buffers.
func (q *BufferQueue) AvailableCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// AcquireBuffer takes the oldest queued buffer. It returns ErrNoBuffer when
// nothing is queued.
func (q *BufferQueue) AcquireBuffer() (AcquiredBuffer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queued) == 0 {
		return AcquiredBuffer{}, ErrNoBuffer
	}
	ab := q.queued[0]
	q.queued = q.queued[1:]
	return ab, nil
}

// ReleaseBuffer hands b back to the producer. The producer waits on fence
// before writing into it again.
func (q *BufferQueue) ReleaseBuffer(b *Buffer, fence *Fence) error {
	if b == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.owned[b] {
		return fmt.Errorf("queue %s: release: %w", q.name, ErrBufferNotOwned)
	}
	b.Unref()
	if b.Width() != q.width || b.Height() != q.height {
		delete(q.owned, b)
		q.allocated--
		q.pool.Release(b.img)
		return nil
	}
	q.free = append(q.free, bufferSlot{buf: b, fence: fence})
	return nil
}

// SetPresentTimestamp records when the display showed the buffer with
// sequence number seq. Called from the hardware goroutine.
func (q *BufferQueue) SetPresentTimestamp(seq uint32, ts PresentTimestamp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.present == nil {
		q.present = make(map[uint32]PresentTimestamp)
	}
	q.present[seq] = ts
	q.lastPresent = ts
}

// PresentTimestamp returns the recorded present time of buffer seq.
func (q *BufferQueue) PresentTimestamp(seq uint32) (PresentTimestamp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ts, ok := q.present[seq]
	return ts, ok
}

// LastPresentTimestamp returns the most recent present time recorded on the
// queue.
func (q *BufferQueue) LastPresentTimestamp() PresentTimestamp {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastPresent
}
