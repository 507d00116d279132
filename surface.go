package arbor

import "fmt"

// surfaceState is the payload of a surface node: the consumer end of a
// producer's buffer queue plus the placement and layer attributes the
// hardware path needs.
type surfaceState struct {
	name     string
	consumer *BufferQueue

	buffer       *Buffer
	acquireFence *Fence
	timestamp    int64
	damage       RectI
	// preBuffer is the buffer replaced by the last consume; it goes back to
	// the producer after the frame that stopped reading it.
	preBuffer       *Buffer
	preFence        *Fence
	releaseFence    *Fence
	bufferConsumed  bool
	hasBufferOnTree bool

	srcRect        RectI
	dstRect        RectI
	dstRectChanged bool

	hardwareEnabled bool
	securityLayer   bool
	colorSpace      ColorSpace
	metadata        []HDRMetaData
	blendType       BlendType

	presentTimestamp PresentTimestamp

	contextMatrix *Matrix
	contextAlpha  float64
	contextClip   *Rect

	dirtyManager *DirtyRegionManager
}

// NewSurfaceNode returns a surface node named name. Buffers come from the
// queue set with SetConsumer.
func NewSurfaceNode(id NodeID, ctx *Context, name string) *RenderNode {
	n := newRenderNode(id, NodeKindSurface, ctx)
	n.surface = &surfaceState{
		name:         name,
		contextAlpha: 1,
		dirtyManager: NewDirtyRegionManager(),
		colorSpace:   ColorSpaceSRGB,
		blendType:    BlendSrcOver,
	}
	if ctx != nil {
		n.surface.dirtyManager.SetDebug(ctx.debug)
	}
	return n
}

func (n *RenderNode) mustSurface(op string) *surfaceState {
	if n.surface == nil {
		panic(fmt.Sprintf("arbor: %s on %s %s", op, n.kind, n.id))
	}
	return n.surface
}

// SurfaceName returns the surface name, or "" for other kinds.
func (n *RenderNode) SurfaceName() string {
	if n.surface == nil {
		return ""
	}
	return n.surface.name
}

// SetConsumer attaches the consumer end of the producer's buffer queue.
func (n *RenderNode) SetConsumer(q *BufferQueue) {
	n.mustSurface("SetConsumer").consumer = q
}

// Consumer returns the attached buffer queue.
func (n *RenderNode) Consumer() *BufferQueue {
	if n.surface == nil {
		return nil
	}
	return n.surface.consumer
}

// Buffer returns the buffer the surface currently shows.
func (n *RenderNode) Buffer() *Buffer {
	if n.surface == nil {
		return nil
	}
	return n.surface.buffer
}

// AcquireFence returns the fence guarding the current buffer's contents.
func (n *RenderNode) AcquireFence() *Fence {
	if n.surface == nil {
		return nil
	}
	return n.surface.acquireFence
}

// BufferTimestamp returns the producer timestamp of the current buffer.
func (n *RenderNode) BufferTimestamp() int64 {
	if n.surface == nil {
		return 0
	}
	return n.surface.timestamp
}

// BufferDamage returns the damage rectangle of the current buffer.
func (n *RenderNode) BufferDamage() RectI {
	if n.surface == nil {
		return RectI{}
	}
	return n.surface.damage
}

// IsCurrentFrameBufferConsumed reports whether a new buffer was acquired in
// this frame.
func (n *RenderNode) IsCurrentFrameBufferConsumed() bool {
	return n.surface != nil && n.surface.bufferConsumed
}

// AvailableBufferCount returns how many buffers are queued and not yet
// consumed.
func (n *RenderNode) AvailableBufferCount() int {
	if n.surface == nil || n.surface.consumer == nil {
		return 0
	}
	return n.surface.consumer.AvailableCount()
}

// ConsumeBuffer acquires the next queued buffer. The buffer it replaces is
// kept until ReleaseBuffer. It reports whether a buffer was consumed.
func (n *RenderNode) ConsumeBuffer() (bool, error) {
	s := n.surface
	if s == nil || s.consumer == nil {
		return false, nil
	}
	s.bufferConsumed = false
	if s.consumer.AvailableCount() == 0 {
		return false, nil
	}
	ab, err := s.consumer.AcquireBuffer()
	if err != nil {
		return false, fmt.Errorf("surface %s: consume: %w", s.name, err)
	}
	if s.preBuffer != nil {
		// Two buffers arrived before a release; the older one was never shown.
		if err := s.consumer.ReleaseBuffer(s.preBuffer, s.preFence); err != nil {
			Logger().Warn("release skipped buffer", "surface", s.name, "err", err)
		}
	}
	s.preBuffer, s.preFence = s.buffer, s.releaseFence
	s.buffer = ab.Buffer
	s.acquireFence = ab.Fence
	s.timestamp = ab.Timestamp
	s.damage = ab.Damage
	s.releaseFence = nil
	s.bufferConsumed = true
	s.hasBufferOnTree = true
	s.presentTimestamp = s.consumer.LastPresentTimestamp()
	if s.srcRect.IsEmpty() {
		s.srcRect = RectI{0, 0, ab.Buffer.Width(), ab.Buffer.Height()}
	}
	n.SetDirty()
	return true, nil
}

// ReleaseBuffer hands the previously shown buffer back to the producer
// together with the fence of the last composition that read it.
func (n *RenderNode) ReleaseBuffer() error {
	s := n.surface
	if s == nil || s.preBuffer == nil || s.consumer == nil {
		return nil
	}
	fence := s.preFence
	if fence == nil {
		fence = SignaledFence()
	}
	err := s.consumer.ReleaseBuffer(s.preBuffer, fence)
	s.preBuffer, s.preFence = nil, nil
	if err != nil {
		return fmt.Errorf("surface %s: release: %w", s.name, err)
	}
	return nil
}

// SetReleaseFence records the fence signalled once the display stops
// reading the current buffer.
func (n *RenderNode) SetReleaseFence(f *Fence) {
	if n.surface != nil {
		n.surface.releaseFence = f
	}
}

// releaseBuffers returns every held buffer to the producer.
func (s *surfaceState) releaseBuffers() {
	if s.consumer == nil {
		return
	}
	for _, b := range []*Buffer{s.preBuffer, s.buffer} {
		if b == nil {
			continue
		}
		if err := s.consumer.ReleaseBuffer(b, SignaledFence()); err != nil {
			Logger().Debug("release buffer on destroy", "surface", s.name, "err", err)
		}
	}
	s.buffer, s.preBuffer = nil, nil
	s.acquireFence, s.preFence, s.releaseFence = nil, nil, nil
}

// SrcRect returns the crop of the buffer shown on screen.
func (n *RenderNode) SrcRect() RectI {
	if n.surface == nil {
		return RectI{}
	}
	return n.surface.srcRect
}

// SetSrcRect sets the buffer crop.
func (n *RenderNode) SetSrcRect(r RectI) {
	n.mustSurface("SetSrcRect").srcRect = r
}

// DstRect returns the surface's absolute rectangle on screen.
func (n *RenderNode) DstRect() RectI {
	if n.surface == nil {
		return RectI{}
	}
	return n.surface.dstRect
}

// SetDstRect moves the surface on screen and flags the change for the
// occlusion pass.
func (n *RenderNode) SetDstRect(r RectI) {
	s := n.mustSurface("SetDstRect")
	if s.dstRect != r {
		s.dstRect = r
		s.dstRectChanged = true
	}
}

// DstRectChanged reports whether the destination moved since the last
// CleanDstRectChanged.
func (n *RenderNode) DstRectChanged() bool {
	return n.surface != nil && n.surface.dstRectChanged
}

// CleanDstRectChanged clears the moved flag.
func (n *RenderNode) CleanDstRectChanged() {
	if n.surface != nil {
		n.surface.dstRectChanged = false
	}
}

// SetHardwareEnabled allows the surface to be handed to the display as its
// own layer in unified mode.
func (n *RenderNode) SetHardwareEnabled(v bool) {
	n.mustSurface("SetHardwareEnabled").hardwareEnabled = v
}

// IsHardwareEnabled reports whether hardware hand-off is allowed.
func (n *RenderNode) IsHardwareEnabled() bool {
	return n.surface != nil && n.surface.hardwareEnabled
}

// SetSecurityLayer hides the surface from captures.
func (n *RenderNode) SetSecurityLayer(v bool) {
	n.mustSurface("SetSecurityLayer").securityLayer = v
}

// IsSecurityLayer reports whether captures skip the surface.
func (n *RenderNode) IsSecurityLayer() bool {
	return n.surface != nil && n.surface.securityLayer
}

// SetColorSpace sets the color space forwarded to the layer.
func (n *RenderNode) SetColorSpace(cs ColorSpace) {
	n.mustSurface("SetColorSpace").colorSpace = cs
}

// ColorSpace returns the layer color space.
func (n *RenderNode) ColorSpace() ColorSpace {
	if n.surface == nil {
		return ColorSpaceSRGB
	}
	return n.surface.colorSpace
}

// SetMetaData sets the HDR metadata forwarded to the layer.
func (n *RenderNode) SetMetaData(md []HDRMetaData) {
	n.mustSurface("SetMetaData").metadata = md
}

// MetaData returns the HDR metadata.
func (n *RenderNode) MetaData() []HDRMetaData {
	if n.surface == nil {
		return nil
	}
	return n.surface.metadata
}

// SetBlendType sets how the layer blends with those below it.
func (n *RenderNode) SetBlendType(b BlendType) {
	n.mustSurface("SetBlendType").blendType = b
}

// BlendType returns the layer blend type.
func (n *RenderNode) BlendType() BlendType {
	if n.surface == nil {
		return BlendSrcOver
	}
	return n.surface.blendType
}

// UpdatePresentTimestamp stores the presentation time the display reported
// for the surface's last buffer.
func (n *RenderNode) UpdatePresentTimestamp(ts PresentTimestamp) {
	if n.surface != nil {
		n.surface.presentTimestamp = ts
	}
}

// PresentTimestamp returns the last reported presentation time.
func (n *RenderNode) PresentTimestamp() PresentTimestamp {
	if n.surface == nil {
		return PresentTimestamp{}
	}
	return n.surface.presentTimestamp
}

// SetContextMatrix sets the transform a proxy node imposes on the surface.
func (n *RenderNode) SetContextMatrix(m *Matrix) {
	s := n.mustSurface("SetContextMatrix")
	if ptrEqual(s.contextMatrix, m) {
		return
	}
	s.contextMatrix = m
	n.SetDirty()
}

// SetContextAlpha sets the alpha a proxy node imposes on the surface.
func (n *RenderNode) SetContextAlpha(a float64) {
	s := n.mustSurface("SetContextAlpha")
	if s.contextAlpha == a {
		return
	}
	s.contextAlpha = a
	n.SetDirty()
}

// SetContextClip sets the clip a proxy node imposes on the surface.
func (n *RenderNode) SetContextClip(r *Rect) {
	s := n.mustSurface("SetContextClip")
	if ptrEqual(s.contextClip, r) {
		return
	}
	s.contextClip = r
	n.SetDirty()
}

// ContextMatrix returns the proxy-imposed transform, or nil.
func (n *RenderNode) ContextMatrix() *Matrix {
	if n.surface == nil {
		return nil
	}
	return n.surface.contextMatrix
}

// ContextAlpha returns the proxy-imposed alpha.
func (n *RenderNode) ContextAlpha() float64 {
	if n.surface == nil {
		return 1
	}
	return n.surface.contextAlpha
}

// ContextClip returns the proxy-imposed clip, or nil.
func (n *RenderNode) ContextClip() *Rect {
	if n.surface == nil {
		return nil
	}
	return n.surface.contextClip
}

// DirtyManager returns the damage accumulator of a surface or display
// node, or nil for other kinds.
func (n *RenderNode) DirtyManager() *DirtyRegionManager {
	switch {
	case n.surface != nil:
		return n.surface.dirtyManager
	case n.display != nil:
		return n.display.dirtyManager
	}
	return nil
}

// IsHardwareCandidate reports whether the surface can bypass software
// composition: hardware enabled, holding a buffer, fully opaque, axis
// aligned, and in a format the display scans out directly.
func (n *RenderNode) IsHardwareCandidate() bool {
	s := n.surface
	if s == nil || !s.hardwareEnabled || s.buffer == nil {
		return false
	}
	if n.props.Alpha() < 1 || s.contextAlpha < 1 {
		return false
	}
	if !n.props.boundsGeo.Matrix().IsAxisAligned() {
		return false
	}
	if s.contextMatrix != nil && !s.contextMatrix.IsAxisAligned() {
		return false
	}
	return s.buffer.Format() != PixelFormatYUV420
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
