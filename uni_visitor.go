package arbor

// treeDrawer paints nodes into a canvas in software. The unified and
// capture visitors share it; self receives the children.
type treeDrawer struct {
	self   NodeVisitor
	engine *RenderEngine
	canvas Canvas
	// showSecurity lets security layers paint; off for captures and
	// mirrors onto non-secure displays.
	showSecurity bool
}

func (d *treeDrawer) drawNode(n *RenderNode) {
	if !n.ShouldPaint() {
		return
	}
	// Above the displays there is nothing to draw into yet.
	if d.canvas == nil {
		n.ProcessChildren(d.self)
		return
	}
	n.ProcessRenderBeforeChildren(d.canvas)
	n.ProcessRenderContents(d.canvas)
	n.ProcessChildren(d.self)
	n.ProcessRenderAfterChildren(d.canvas)
}

func (d *treeDrawer) drawRoot(n *RenderNode) {
	if !n.EnableRender() {
		return
	}
	d.drawNode(n)
}

func (d *treeDrawer) drawSurface(n *RenderNode) {
	if d.canvas == nil || !n.ShouldPaint() {
		return
	}
	if n.IsSecurityLayer() && !d.showSecurity {
		return
	}
	c := d.canvas
	count := c.Save()
	if clip := n.ContextClip(); clip != nil {
		c.ClipRect(*clip)
	}
	if m := n.ContextMatrix(); m != nil {
		c.Concat(*m)
	}
	if a := n.ContextAlpha(); a < 1 {
		c.MultiplyAlpha(a)
	}
	n.ProcessRenderBeforeChildren(c)
	d.engine.DrawSurfaceBuffer(c, n)
	n.ProcessChildren(d.self)
	n.ProcessRenderAfterChildren(c)
	c.RestoreToCount(count)
}

// UniVisitor composes in unified mode: the tree is drawn into each
// display's framebuffer, and surfaces the display can scan out directly
// are handed over as layers above it.
type UniVisitor struct {
	preparer
	treeDrawer
	hw            *HardwareThread
	partialRender bool

	hwLayers []*LayerInfo
	z        uint32

	// Layers are the layers committed by the last display processed.
	Layers []*LayerInfo
}

// NewUniVisitor returns a visitor drawing with engine and committing
// through hw. With partialRender set, a display without damage is not
// redrawn.
func NewUniVisitor(hw *HardwareThread, engine *RenderEngine, partialRender bool) *UniVisitor {
	v := &UniVisitor{hw: hw, partialRender: partialRender}
	v.preparer.self = v
	v.treeDrawer = treeDrawer{self: v, engine: engine}
	return v
}

func (v *UniVisitor) ProcessBaseRenderNode(n *RenderNode)   { v.drawNode(n) }
func (v *UniVisitor) ProcessCanvasRenderNode(n *RenderNode) { v.drawNode(n) }
func (v *UniVisitor) ProcessRootRenderNode(n *RenderNode)   { v.drawRoot(n) }
func (v *UniVisitor) ProcessProxyRenderNode(n *RenderNode)  { n.ProcessChildren(v) }

// ProcessSurfaceRenderNode draws the surface into the framebuffer, or
// queues it as a device layer when the display can show it directly.
func (v *UniVisitor) ProcessSurfaceRenderNode(n *RenderNode) {
	if v.canvas == nil || !n.ShouldPaint() {
		return
	}
	if n.IsHardwareCandidate() && v.hw.Backend() != nil && (v.showSecurity || !n.IsSecurityLayer()) {
		v.hwLayers = append(v.hwLayers, newSurfaceLayer(n, v.z, CompositionDevice))
		v.z++
		return
	}
	v.drawSurface(n)
}

// ProcessDisplayRenderNode renders one screen and commits it.
func (v *UniVisitor) ProcessDisplayRenderNode(n *RenderNode) {
	w, h := n.DisplaySize()
	if w <= 0 || h <= 0 {
		Logger().Warn("display has no size, skipped", "node", n.id, "screen", n.ScreenID())
		return
	}
	src := n
	if n.IsMirrorDisplay() {
		if m := n.ctx.nodeMap.GetRenderNode(n.MirrorSource()); m != nil && m.display != nil {
			src = m
		}
	}
	dm := n.DirtyManager()
	if src != n {
		dm.MergeDirtyRect(src.DirtyManager().DirtyRegion())
	}
	if v.partialRender && !dm.IsDirty() && n.display.lastFrame != nil {
		Logger().Debug("display clean, skip redraw", "screen", n.ScreenID())
		return
	}

	q := n.displayFramebuffer()
	frame, err := v.engine.RequestFrame(q)
	if err != nil {
		Logger().Warn("no framebuffer, frame skipped", "screen", n.ScreenID(), "err", err)
		return
	}
	c := frame.Canvas()
	c.Clear(Color{})
	ox, oy := n.DisplayOffset()
	c.Translate(float64(ox), float64(oy))

	v.canvas = c
	v.showSecurity = src == n || n.IsSecurityDisplay()
	v.hwLayers, v.z = nil, 1
	src.ProcessChildren(v)
	v.canvas = nil

	damage := dm.DirtyRegion()
	if !v.partialRender {
		damage = RectI{}
	}
	if err := frame.Flush(damage); err != nil {
		Logger().Warn("flush framebuffer", "screen", n.ScreenID(), "err", err)
		return
	}
	acq, err := q.AcquireBuffer()
	if err != nil {
		Logger().Warn("acquire framebuffer", "screen", n.ScreenID(), "err", err)
		return
	}
	full := RectI{0, 0, w, h}
	fb := &LayerInfo{
		Node:            n.id,
		Consumer:        q,
		Buffer:          acq.Buffer,
		AcquireFence:    acq.Fence,
		PreBuffer:       n.display.lastFrame,
		Alpha:           layerAlpha(1),
		SrcRect:         full,
		DstRect:         full,
		VisibleRegion:   []RectI{full},
		DirtyRegion:     dm.DirtyRegion(),
		CompositionType: CompositionDevice,
		BlendType:       BlendSrc,
		PreMulti:        true,
		Matrix:          IdentityMatrix,
		Bounds:          full.ToRect(),
		Opacity:         1,
	}
	n.display.lastFrame = acq.Buffer

	v.Layers = append([]*LayerInfo{fb}, v.hwLayers...)
	v.hwLayers = nil
	v.hw.CommitAndReleaseLayers(v.hw.Output(uint32(n.ScreenID()), w, h), v.Layers)
}
