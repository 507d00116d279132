package arbor

// NodeVisitor is implemented by each render strategy. RenderNode.Prepare and
// RenderNode.Process call back the method for the node's kind.
type NodeVisitor interface {
	PrepareBaseRenderNode(n *RenderNode)
	PrepareCanvasRenderNode(n *RenderNode)
	PrepareSurfaceRenderNode(n *RenderNode)
	PrepareDisplayRenderNode(n *RenderNode)
	PrepareRootRenderNode(n *RenderNode)
	PrepareProxyRenderNode(n *RenderNode)

	ProcessBaseRenderNode(n *RenderNode)
	ProcessCanvasRenderNode(n *RenderNode)
	ProcessSurfaceRenderNode(n *RenderNode)
	ProcessDisplayRenderNode(n *RenderNode)
	ProcessRootRenderNode(n *RenderNode)
	ProcessProxyRenderNode(n *RenderNode)
}

// preparer is the prepare pass shared by the render visitors. It applies
// modifiers, recomputes geometry and collects damage into the nearest
// surface or display dirty manager. Embedders set self so children are
// dispatched back to the outer visitor.
type preparer struct {
	self NodeVisitor

	dm          *DirtyRegionManager
	parent      *RenderNode
	parentDirty bool
	clip        RectI
	alpha       float64
}

type prepareState struct {
	dm          *DirtyRegionManager
	parent      *RenderNode
	parentDirty bool
	clip        RectI
	alpha       float64
}

func (p *preparer) save() prepareState {
	return prepareState{p.dm, p.parent, p.parentDirty, p.clip, p.alpha}
}

func (p *preparer) restore(s prepareState) {
	p.dm, p.parent, p.parentDirty, p.clip, p.alpha = s.dm, s.parent, s.parentDirty, s.clip, s.alpha
}

// update applies n's modifiers and merges its damage. It reports whether n
// paints and whether its geometry changed.
func (p *preparer) update(n *RenderNode) (paints, geoDirty bool) {
	n.ApplyModifiers()
	geoDirty = n.Update(p.dm, p.parent, p.parentDirty, p.clip)
	return n.ShouldPaint(), geoDirty
}

// descend prepares n's children with n as the parent.
func (p *preparer) descend(n *RenderNode, geoDirty bool) {
	s := p.save()
	p.parent, p.parentDirty = n, geoDirty
	if p.alpha == 0 {
		p.alpha = 1
	}
	p.alpha *= n.props.Alpha()
	if n.props.ClipToBounds() {
		abs := n.props.boundsGeo.AbsRect()
		if p.clip.IsEmpty() {
			p.clip = abs
		} else {
			p.clip = p.clip.Intersect(abs)
		}
	}
	n.PrepareChildren(p.self)
	p.restore(s)
}

func (p *preparer) prepareNode(n *RenderNode) {
	paints, geoDirty := p.update(n)
	if !paints {
		return
	}
	p.descend(n, geoDirty)
}

func (p *preparer) PrepareBaseRenderNode(n *RenderNode)   { p.prepareNode(n) }
func (p *preparer) PrepareCanvasRenderNode(n *RenderNode) { p.prepareNode(n) }
func (p *preparer) PrepareRootRenderNode(n *RenderNode)   { p.prepareNode(n) }

// PrepareDisplayRenderNode resets the display's damage and prepares the
// screen's subtree into it.
func (p *preparer) PrepareDisplayRenderNode(n *RenderNode) {
	dm := n.DirtyManager()
	w, h := n.DisplaySize()
	dm.Clear()
	dm.SetSurfaceSize(w, h)

	s := p.save()
	p.dm, p.parent, p.parentDirty, p.clip, p.alpha = dm, nil, false, RectI{}, 1
	paints, geoDirty := p.update(n)
	if paints {
		p.descend(n, geoDirty)
	}
	p.restore(s)
	dm.IntersectDirtyRectWithSurface()
}

// PrepareSurfaceRenderNode places the surface on screen and prepares its
// subtree into the surface's own damage, which is then folded into the
// display's.
func (p *preparer) PrepareSurfaceRenderNode(n *RenderNode) {
	paints, geoDirty := p.update(n)
	if !paints {
		n.SetDstRect(RectI{})
		return
	}
	n.SetDstRect(surfaceScreenRect(n))

	sdm := n.DirtyManager()
	sdm.Clear()
	if p.dm != nil {
		sr := p.dm.SurfaceRect()
		sdm.SetSurfaceSize(sr.Width, sr.Height)
	}
	if n.IsCurrentFrameBufferConsumed() {
		sdm.MergeDirtyRect(n.DstRect())
	}

	s := p.save()
	p.dm = sdm
	p.descend(n, geoDirty)
	p.restore(s)

	if p.dm != nil {
		for _, r := range sdm.DirtyRects() {
			p.dm.MergeDirtyRect(r)
		}
	}
}

// PrepareProxyRenderNode forwards the proxy's placement to its target.
func (p *preparer) PrepareProxyRenderNode(n *RenderNode) {
	paints, geoDirty := p.update(n)
	if !paints {
		return
	}
	alpha := p.alpha
	if alpha == 0 {
		alpha = 1
	}
	var clip *Rect
	if !p.clip.IsEmpty() {
		r := p.clip.ToRect()
		clip = &r
	}
	n.ForwardContext(n.props.boundsGeo.Matrix(), alpha*n.props.Alpha(), clip)
	p.descend(n, geoDirty)
}

// surfaceScreenRect returns where the surface lands on screen, including
// any transform a proxy imposed on it.
func surfaceScreenRect(n *RenderNode) RectI {
	g := n.props.boundsGeo
	cm := n.ContextMatrix()
	if cm == nil {
		return g.AbsRect()
	}
	return cm.Multiply(g.Matrix()).MapRect(n.props.BoundsRect()).RoundOut()
}

// DividedVisitor composes in divided mode: every surface holding a buffer
// becomes its own display layer and nothing is drawn in software.
type DividedVisitor struct {
	preparer
	hw *HardwareThread

	// Layers are the layers committed by the last display processed.
	Layers []*LayerInfo
}

// NewDividedVisitor returns a visitor committing through hw.
func NewDividedVisitor(hw *HardwareThread) *DividedVisitor {
	v := &DividedVisitor{hw: hw}
	v.self = v
	return v
}

func (v *DividedVisitor) ProcessBaseRenderNode(n *RenderNode)   { n.ProcessChildren(v) }
func (v *DividedVisitor) ProcessCanvasRenderNode(n *RenderNode) { n.ProcessChildren(v) }
func (v *DividedVisitor) ProcessRootRenderNode(n *RenderNode)   { n.ProcessChildren(v) }
func (v *DividedVisitor) ProcessProxyRenderNode(n *RenderNode)  { n.ProcessChildren(v) }

// ProcessSurfaceRenderNode does nothing; the display collects its surfaces.
func (v *DividedVisitor) ProcessSurfaceRenderNode(*RenderNode) {}

// ProcessDisplayRenderNode hands the display's surfaces to the hardware
// thread in paint order. Mirror displays reuse the source's surfaces.
func (v *DividedVisitor) ProcessDisplayRenderNode(n *RenderNode) {
	src := n
	if n.IsMirrorDisplay() {
		if m := n.ctx.nodeMap.GetRenderNode(n.MirrorSource()); m != nil && m.display != nil {
			src = m
		}
	}
	var layers []*LayerInfo
	var z uint32
	for _, s := range src.CollectSurface(nil, false) {
		if !s.ShouldPaint() || s.Buffer() == nil || s.DstRect().IsEmpty() {
			continue
		}
		if s.IsSecurityLayer() && !n.IsSecurityDisplay() && src != n {
			continue
		}
		comp := CompositionClient
		if s.IsHardwareCandidate() {
			comp = CompositionDevice
		}
		layers = append(layers, newSurfaceLayer(s, z, comp))
		z++
	}
	v.Layers = layers
	w, h := n.DisplaySize()
	v.hw.CommitAndReleaseLayers(v.hw.Output(uint32(n.ScreenID()), w, h), layers)
}
