package arbor

import (
	"fmt"
	"image"
	"math"
)

// --- Display ---

// displayState is the payload of a display node: one screen.
type displayState struct {
	screenID       uint64
	offsetX        int
	offsetY        int
	isMirror       bool
	mirrorSource   NodeID
	securityExempt bool
	width          int
	height         int
	dirtyManager   *DirtyRegionManager

	// framebuffer receives unified-mode composition; created on first use.
	framebuffer *BufferQueue
	// lastFrame is the framebuffer the hardware thread still shows.
	lastFrame *Buffer
}

// DisplayNodeConfig configures NewDisplayNode.
type DisplayNodeConfig struct {
	ScreenID     uint64
	IsMirror     bool
	MirrorSource NodeID
	Width        int
	Height       int
}

// NewDisplayNode returns a node standing for one screen. Display nodes are
// children of the context's global root.
func NewDisplayNode(id NodeID, ctx *Context, cfg DisplayNodeConfig) *RenderNode {
	n := newRenderNode(id, NodeKindDisplay, ctx)
	n.display = &displayState{
		screenID:     cfg.ScreenID,
		isMirror:     cfg.IsMirror,
		mirrorSource: cfg.MirrorSource,
		width:        cfg.Width,
		height:       cfg.Height,
		dirtyManager: NewDirtyRegionManager(),
	}
	if ctx != nil {
		n.display.dirtyManager.SetDebug(ctx.debug)
	}
	return n
}

// ScreenID returns the screen a display node shows on.
func (n *RenderNode) ScreenID() uint64 {
	if n.display == nil {
		return 0
	}
	return n.display.screenID
}

// SetScreenID moves the display node to another screen.
func (n *RenderNode) SetScreenID(id uint64) {
	if n.display != nil && n.display.screenID != id {
		n.display.screenID = id
		n.SetDirty()
	}
}

// SetDisplayOffset shifts everything on the display.
func (n *RenderNode) SetDisplayOffset(x, y int) {
	if n.display == nil {
		return
	}
	n.display.offsetX, n.display.offsetY = x, y
	n.SetDirty()
}

// DisplayOffset returns the display offset.
func (n *RenderNode) DisplayOffset() (int, int) {
	if n.display == nil {
		return 0, 0
	}
	return n.display.offsetX, n.display.offsetY
}

// IsMirrorDisplay reports whether the display copies another display.
func (n *RenderNode) IsMirrorDisplay() bool {
	return n.display != nil && n.display.isMirror
}

// MirrorSource returns the display node being mirrored.
func (n *RenderNode) MirrorSource() NodeID {
	if n.display == nil {
		return NodeID{}
	}
	return n.display.mirrorSource
}

// SetMirror makes the display copy source, or stop copying when isMirror
// is false.
func (n *RenderNode) SetMirror(isMirror bool, source NodeID) {
	if n.display == nil {
		return
	}
	n.display.isMirror = isMirror
	n.display.mirrorSource = source
	n.SetDirty()
}

// DisplaySize returns the screen size in pixels.
func (n *RenderNode) DisplaySize() (int, int) {
	if n.display == nil {
		return 0, 0
	}
	return n.display.width, n.display.height
}

// SetDisplaySize changes the screen size, resizing the framebuffer.
func (n *RenderNode) SetDisplaySize(w, h int) {
	if n.display == nil || (n.display.width == w && n.display.height == h) {
		return
	}
	n.display.width, n.display.height = w, h
	if n.display.framebuffer != nil {
		n.display.framebuffer.SetSize(w, h)
	}
	n.SetDirty()
}

// IsSecurityDisplay reports whether the display may show security layers.
func (n *RenderNode) IsSecurityDisplay() bool {
	return n.display != nil && n.display.securityExempt
}

// SetSecurityDisplay marks the display allowed to show security layers.
func (n *RenderNode) SetSecurityDisplay(v bool) {
	if n.display != nil {
		n.display.securityExempt = v
	}
}

// displayFramebuffer returns the queue unified composition renders into.
func (n *RenderNode) displayFramebuffer() *BufferQueue {
	d := n.display
	if d.framebuffer == nil {
		d.framebuffer = NewBufferQueue(fmt.Sprintf("display-%d", d.screenID), max(d.width, 1), max(d.height, 1), 3)
	}
	return d.framebuffer
}

// --- Root ---

// rootState is the payload of an application root node.
type rootState struct {
	surfaceID    NodeID
	enableRender bool
	bufferWidth  int
	bufferHeight int
}

// NewRootNode returns an application root node. It paints like a canvas
// node and is attached to its window surface with AttachSurface.
func NewRootNode(id NodeID, ctx *Context) *RenderNode {
	n := newRenderNode(id, NodeKindRoot, ctx)
	n.root = &rootState{enableRender: true}
	return n
}

// AttachSurface records the surface node the root draws into.
func (n *RenderNode) AttachSurface(surfaceID NodeID) {
	if n.root == nil {
		return
	}
	n.root.surfaceID = surfaceID
}

// AttachedSurface returns the surface node id set by AttachSurface.
func (n *RenderNode) AttachedSurface() NodeID {
	if n.root == nil {
		return NodeID{}
	}
	return n.root.surfaceID
}

// SetEnableRender turns painting of the root's subtree on or off.
func (n *RenderNode) SetEnableRender(v bool) {
	if n.root == nil || n.root.enableRender == v {
		return
	}
	n.root.enableRender = v
	n.SetDirty()
}

// EnableRender reports whether the root's subtree paints.
func (n *RenderNode) EnableRender() bool {
	return n.root == nil || n.root.enableRender
}

// UpdateSuggestedBufferSize records the buffer size the application should
// render at.
func (n *RenderNode) UpdateSuggestedBufferSize(w, h int) {
	if n.root == nil {
		return
	}
	n.root.bufferWidth, n.root.bufferHeight = w, h
}

// SuggestedBufferSize returns the size set by UpdateSuggestedBufferSize.
func (n *RenderNode) SuggestedBufferSize() (int, int) {
	if n.root == nil {
		return 0, 0
	}
	return n.root.bufferWidth, n.root.bufferHeight
}

// --- Proxy ---

// proxyState is the payload of a proxy node, which forwards the transform,
// alpha and clip it accumulates in the tree to a target surface node that
// lives elsewhere.
type proxyState struct {
	target NodeID
}

// NewProxyNode returns a proxy for target.
func NewProxyNode(id NodeID, ctx *Context, target NodeID) *RenderNode {
	n := newRenderNode(id, NodeKindProxy, ctx)
	n.proxy = &proxyState{target: target}
	return n
}

// ProxyTarget returns the node a proxy forwards to.
func (n *RenderNode) ProxyTarget() NodeID {
	if n.proxy == nil {
		return NodeID{}
	}
	return n.proxy.target
}

// ForwardContext pushes the proxy's absolute matrix, alpha and clip to its
// target. A missing target is ignored.
func (n *RenderNode) ForwardContext(m Matrix, alpha float64, clip *Rect) {
	if n.proxy == nil || n.ctx == nil {
		return
	}
	target := n.ctx.nodeMap.GetRenderNode(n.proxy.target)
	if target == nil || target.surface == nil {
		return
	}
	target.SetContextMatrix(&m)
	target.SetContextAlpha(alpha)
	target.SetContextClip(clip)
}

// ResetContext clears what the proxy forwarded, used when the proxy leaves
// the tree.
func (n *RenderNode) ResetContext() {
	if n.proxy == nil || n.ctx == nil {
		return
	}
	target := n.ctx.nodeMap.GetRenderNode(n.proxy.target)
	if target == nil || target.surface == nil {
		return
	}
	target.SetContextMatrix(nil)
	target.SetContextAlpha(1)
	target.SetContextClip(nil)
}

// --- Canvas drawing ---

// drawingState is the payload of a canvas drawing node: a persistent pixel
// surface content ops are replayed onto once and then discarded.
type drawingState struct {
	canvas *SoftCanvas
}

// NewCanvasDrawingNode returns a canvas node whose content accumulates on a
// pixel surface across frames instead of being redrawn from scratch.
func NewCanvasDrawingNode(id NodeID, ctx *Context) *RenderNode {
	n := newRenderNode(id, NodeKindCanvasDrawing, ctx)
	n.drawing = &drawingState{}
	return n
}

// Bitmap returns a snapshot of the drawing surface, or nil before the first
// paint.
func (n *RenderNode) Bitmap() image.Image {
	if n.drawing == nil || n.drawing.canvas == nil {
		return nil
	}
	return n.drawing.canvas.Image()
}

func (d *drawingState) reset() {
	if d.canvas != nil {
		if err := d.canvas.Close(); err != nil {
			Logger().Debug("close drawing canvas", "err", err)
		}
		d.canvas = nil
	}
}

// contentSize returns the largest content list size, or false when no
// content list has a size.
func (n *RenderNode) contentSize() (int, int, bool) {
	w, h := 0, 0
	for _, m := range n.modifiers.phase(ModifierContentStyle) {
		if cmds := m.value.Cmds; cmds != nil {
			w = max(w, cmds.Width())
			h = max(h, cmds.Height())
		}
	}
	return w, h, w > 0 && h > 0
}

// processContents replays pending content ops onto the persistent surface,
// clears them, and draws the surface into c.
func (d *drawingState) processContents(n *RenderNode, c Canvas) {
	w, h, ok := n.contentSize()
	if !ok {
		return
	}
	if d.canvas == nil || d.canvas.Width() != w || d.canvas.Height() != h {
		d.reset()
		d.canvas = NewSoftCanvas(w, h)
	}
	for _, m := range n.modifiers.phase(ModifierContentStyle) {
		if cmds := m.value.Cmds; cmds != nil {
			cmds.Playback(d.canvas)
			cmds.ClearOps()
		}
	}
	frame := n.props.FrameRect()
	count := c.Save()
	off := n.props.FrameOffset()
	c.Translate(off.X, off.Y)
	c.Concat(gravityMatrix(n.props.FrameGravity(), frame, float64(w), float64(h)))
	c.DrawImage(d.canvas.Image(), Rect{}, Rect{0, 0, float64(w), float64(h)})
	c.RestoreToCount(count)
}

// gravityMatrix maps content of size w x h into frame according to g.
func gravityMatrix(g Gravity, frame Rect, w, h float64) Matrix {
	if w <= 0 || h <= 0 || frame.IsEmpty() {
		return IdentityMatrix
	}
	switch g {
	case GravityTopLeft:
		return IdentityMatrix
	case GravityCenter:
		return TranslateMatrix((frame.Width-w)/2, (frame.Height-h)/2)
	case GravityResizeAspect:
		s := math.Min(frame.Width/w, frame.Height/h)
		return TranslateMatrix((frame.Width-w*s)/2, (frame.Height-h*s)/2).Multiply(ScaleMatrix(s, s))
	default:
		return ScaleMatrix(frame.Width/w, frame.Height/h)
	}
}
