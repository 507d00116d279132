package arbor

import (
	"fmt"
	"slices"
	"strings"
	"weak"
)

// RenderNode is one node of the render tree. All node kinds share this
// struct; kind-specific state lives in the optional payload pointers.
//
// A node is owned by its parent's children slice and by the NodeMap. The
// parent link is weak so a detached subtree is collectable once the map
// forgets it. RenderNode is not safe for concurrent use; it belongs to the
// main loop goroutine.
type RenderNode struct {
	id   NodeID
	kind NodeKind
	ctx  *Context

	parent               weak.Pointer[RenderNode]
	children             []*RenderNode
	disappearingChildren []disappearingChild
	sortedChildren       []*RenderNode
	childrenSorted       bool
	isOnTheTree          bool

	props      *Properties
	modifiers  modifierSet
	animations animationManager

	dirty         bool
	isLastVisible bool
	oldDirty      RectI
	visibleRegion Region
	// renderSaveCount is the canvas save count taken by
	// ProcessRenderBeforeChildren.
	renderSaveCount int

	fallbackAnimationOnDestroy bool
	pendingDestroy             bool
	destroyed                  bool

	surface *surfaceState
	display *displayState
	root    *rootState
	proxy   *proxyState
	drawing *drawingState
}

type disappearingChild struct {
	node *RenderNode
	pos  int
}

func newRenderNode(id NodeID, kind NodeKind, ctx *Context) *RenderNode {
	return &RenderNode{
		id:                         id,
		kind:                       kind,
		ctx:                        ctx,
		props:                      NewProperties(),
		dirty:                      true,
		fallbackAnimationOnDestroy: true,
	}
}

// NewRenderNode returns a base node, which has properties and children but
// paints nothing of its own.
func NewRenderNode(id NodeID, ctx *Context) *RenderNode {
	return newRenderNode(id, NodeKindBase, ctx)
}

// NewCanvasNode returns a node that paints its draw command modifiers.
func NewCanvasNode(id NodeID, ctx *Context) *RenderNode {
	return newRenderNode(id, NodeKindCanvas, ctx)
}

// ID returns the node id.
func (n *RenderNode) ID() NodeID { return n.id }

// Kind returns the node kind.
func (n *RenderNode) Kind() NodeKind { return n.kind }

// Properties returns the node's property store.
func (n *RenderNode) Properties() *Properties { return n.props }

// Context returns the context the node was created in, or nil.
func (n *RenderNode) Context() *Context { return n.ctx }

// IsInstanceOf reports whether the node has kind k. A canvas drawing node is
// also a canvas node.
func (n *RenderNode) IsInstanceOf(k NodeKind) bool {
	if n.kind == k {
		return true
	}
	return k == NodeKindCanvas && n.kind == NodeKindCanvasDrawing
}

func (n *RenderNode) debug() bool {
	return n.ctx != nil && n.ctx.debug
}

// --- Tree structure ---

// Parent returns the parent, or nil when detached or when the parent has
// been collected.
func (n *RenderNode) Parent() *RenderNode {
	return n.parent.Value()
}

func (n *RenderNode) setParent(p *RenderNode) {
	if p == nil {
		n.parent = weak.Pointer[RenderNode]{}
		return
	}
	n.parent = weak.Make(p)
}

// resetParent detaches n from its parent link and takes it off the tree.
func (n *RenderNode) resetParent() {
	n.setParent(nil)
	n.SetIsOnTheTree(false)
}

// Children returns the child list. The returned slice MUST NOT be mutated by
// the caller.
func (n *RenderNode) Children() []*RenderNode {
	return n.children
}

// ChildrenCount returns the number of children.
func (n *RenderNode) ChildrenCount() int {
	return len(n.children)
}

// AddChild inserts child at index, or appends when index is out of range. A
// child that already has a parent is removed from it first. A child that
// was disappearing from n is revived.
// Panics if child is nil or n is inside child's subtree.
func (n *RenderNode) AddChild(child *RenderNode, index int) {
	if child == nil {
		panic("arbor: cannot add nil child")
	}
	if isAncestor(child, n) {
		panic("arbor: adding child would create a cycle")
	}
	if prev := child.Parent(); prev != nil {
		prev.RemoveChild(child, true)
	}
	n.insertChild(child, index)
	if n.debug() {
		debugCheckTreeDepth(child)
		debugCheckChildCount(n)
	}
}

// AddCrossParentChild inserts child without removing it from its current
// parent. Used for nodes shown under several parents at once, such as a
// window spanning two displays.
func (n *RenderNode) AddCrossParentChild(child *RenderNode, index int) {
	if child == nil {
		panic("arbor: cannot add nil child")
	}
	if isAncestor(child, n) {
		panic("arbor: adding child would create a cycle")
	}
	n.insertChild(child, index)
}

func (n *RenderNode) insertChild(child *RenderNode, index int) {
	child.setParent(n)
	if index < 0 || index >= len(n.children) {
		n.children = append(n.children, child)
	} else {
		n.children = slices.Insert(n.children, index, child)
	}
	n.disappearingChildren = slices.DeleteFunc(n.disappearingChildren, func(d disappearingChild) bool {
		return d.node == child
	})
	child.pendingDestroy = false
	if n.isOnTheTree {
		child.SetIsOnTheTree(true)
	}
	n.childrenSorted = false
	n.SetDirty()
}

// MoveChild moves child to index among its siblings. Out-of-range indexes
// move it to the end. No-op if child is not a child of n.
func (n *RenderNode) MoveChild(child *RenderNode, index int) {
	i := slices.Index(n.children, child)
	if i < 0 {
		return
	}
	n.children = slices.Delete(n.children, i, i+1)
	if index < 0 || index >= len(n.children) {
		n.children = append(n.children, child)
	} else {
		n.children = slices.Insert(n.children, index, child)
	}
	n.childrenSorted = false
	n.SetDirty()
}

// RemoveChild detaches child. Unless skipTransition is set, a child running
// a disappearing transition keeps painting from the disappearing list until
// the transition ends. No-op if child is not a child of n.
func (n *RenderNode) RemoveChild(child *RenderNode, skipTransition bool) {
	i := slices.Index(n.children, child)
	if i < 0 {
		return
	}
	n.children = slices.Delete(n.children, i, i+1)
	if !skipTransition && child.HasDisappearingTransition(false) {
		n.disappearingChildren = append(n.disappearingChildren, disappearingChild{node: child, pos: i})
		child.SetIsOnTheTree(false)
	} else {
		child.resetParent()
	}
	n.markRemovedChildDirty(child)
	n.childrenSorted = false
	n.SetDirty()
}

// RemoveCrossParentChild removes a child added with AddCrossParentChild and
// hands its parent link to newParent.
func (n *RenderNode) RemoveCrossParentChild(child *RenderNode, newParent *RenderNode) {
	i := slices.Index(n.children, child)
	if i < 0 {
		return
	}
	n.children = slices.Delete(n.children, i, i+1)
	n.markRemovedChildDirty(child)
	child.setParent(newParent)
	if newParent == nil || !newParent.isOnTheTree {
		child.SetIsOnTheTree(false)
	}
	n.childrenSorted = false
	n.SetDirty()
}

// markRemovedChildDirty damages the area the removed child last painted.
func (n *RenderNode) markRemovedChildDirty(child *RenderNode) {
	if child.oldDirty.IsEmpty() || n.ctx == nil {
		return
	}
	if dm := n.ctx.dirtyManagerFor(n); dm != nil {
		dm.MergeDirtyRect(child.oldDirty)
		dm.UpdateDirtyRegionInfo(child.id, child.kind, DirtyRegionRemoveChild, child.oldDirty)
	}
}

// RemoveFromTree detaches n from its parent.
func (n *RenderNode) RemoveFromTree(skipTransition bool) {
	if p := n.Parent(); p != nil {
		p.RemoveChild(n, skipTransition)
	}
}

// ClearChildren detaches every child, keeping those with a disappearing
// transition on the disappearing list.
func (n *RenderNode) ClearChildren() {
	if len(n.children) == 0 {
		return
	}
	for i, child := range n.children {
		if child.HasDisappearingTransition(false) {
			n.disappearingChildren = append(n.disappearingChildren, disappearingChild{node: child, pos: i})
			child.SetIsOnTheTree(false)
		} else {
			child.resetParent()
		}
		n.markRemovedChildDirty(child)
	}
	clear(n.children)
	n.children = n.children[:0]
	n.childrenSorted = false
	n.SetDirty()
}

// IsOnTheTree reports whether n is reachable from the global root.
func (n *RenderNode) IsOnTheTree() bool { return n.isOnTheTree }

// SetIsOnTheTree updates the flag on n and its whole subtree.
func (n *RenderNode) SetIsOnTheTree(flag bool) {
	if n.isOnTheTree == flag {
		return
	}
	n.isOnTheTree = flag
	for _, child := range n.children {
		child.SetIsOnTheTree(flag)
	}
}

// SortedChildren returns the children in paint order: stable-sorted by
// positionZ, with disappearing children reinserted at the position they were
// removed from. Disappearing children whose transition has ended are dropped
// here. The result is cached until ResetSortedChildren or a tree edit.
func (n *RenderNode) SortedChildren() []*RenderNode {
	if n.childrenSorted {
		return n.sortedChildren
	}
	n.sortedChildren = append(n.sortedChildren[:0], n.children...)
	kept := n.disappearingChildren[:0]
	for _, d := range n.disappearingChildren {
		if !d.node.HasDisappearingTransition(false) {
			d.node.resetParent()
			if d.node.pendingDestroy {
				d.node.finishDestroy()
			}
			continue
		}
		kept = append(kept, d)
		pos := min(d.pos, len(n.sortedChildren))
		n.sortedChildren = slices.Insert(n.sortedChildren, pos, d.node)
	}
	clear(n.disappearingChildren[len(kept):])
	n.disappearingChildren = kept
	slices.SortStableFunc(n.sortedChildren, func(a, b *RenderNode) int {
		za, zb := a.props.PositionZ(), b.props.PositionZ()
		switch {
		case za < zb:
			return -1
		case za > zb:
			return 1
		}
		return 0
	})
	n.childrenSorted = true
	return n.sortedChildren
}

// ResetSortedChildren drops the cached paint order. Called after each
// process pass.
func (n *RenderNode) ResetSortedChildren() {
	clear(n.sortedChildren)
	n.sortedChildren = n.sortedChildren[:0]
	n.childrenSorted = false
}

// DisappearingChildrenCount returns the number of removed children still
// painting a transition.
func (n *RenderNode) DisappearingChildrenCount() int {
	return len(n.disappearingChildren)
}

// HasDisappearingTransition reports whether n runs a transition animation.
// With recursive set, a transition on any ancestor counts too.
func (n *RenderNode) HasDisappearingTransition(recursive bool) bool {
	if n.animations.transitionRunning() {
		return true
	}
	if !recursive {
		return false
	}
	if p := n.Parent(); p != nil {
		return p.HasDisappearingTransition(true)
	}
	return false
}

// --- Dirty state ---

// SetDirty marks the node itself dirty. Property stores track their own
// dirtiness.
func (n *RenderNode) SetDirty() { n.dirty = true }

// SetClean clears the node's own dirty flag.
func (n *RenderNode) SetClean() { n.dirty = false }

// IsDirty reports whether the node or its properties changed since the last
// update.
func (n *RenderNode) IsDirty() bool {
	return n.dirty || n.props.IsDirty()
}

// ShouldPaint reports whether the node contributes pixels this frame.
func (n *RenderNode) ShouldPaint() bool {
	return (n.props.Visible() || n.HasDisappearingTransition(false)) && n.props.Alpha() > 0
}

// IsLastVisible reports whether the node painted in the previous update.
func (n *RenderNode) IsLastVisible() bool { return n.isLastVisible }

// OldDirty returns the dirty rectangle merged for the node last frame.
func (n *RenderNode) OldDirty() RectI { return n.oldDirty }

// VisibleRegion returns the region left visible by occlusion.
func (n *RenderNode) VisibleRegion() Region { return n.visibleRegion }

// SetVisibleRegion records the occlusion result on n and its subtree.
func (n *RenderNode) SetVisibleRegion(r Region) {
	n.visibleRegion = r
	for _, child := range n.children {
		child.SetVisibleRegion(r)
	}
}

// --- Modifiers ---

// AddModifier stores m and marks the node dirty.
func (n *RenderNode) AddModifier(m *Modifier) {
	if m == nil {
		return
	}
	m.owner = weak.Make(n)
	n.modifiers.add(m)
	n.SetDirty()
}

// RemoveModifier erases the modifier with id from every slot.
func (n *RenderNode) RemoveModifier(id PropertyID) {
	removed, overlay := n.modifiers.remove(id)
	if !removed {
		return
	}
	if overlay {
		n.modifiers.updateOverlayBounds(n.props)
	}
	n.SetDirty()
}

// UpdateModifier replaces the value of a live modifier. It reports false
// when no modifier has id.
func (n *RenderNode) UpdateModifier(id PropertyID, v PropertyValue) bool {
	m := n.modifiers.get(id)
	if m == nil {
		return false
	}
	m.SetValue(v)
	n.SetDirty()
	return true
}

// GetModifier returns the modifier with id, or nil.
func (n *RenderNode) GetModifier(id PropertyID) *Modifier {
	return n.modifiers.get(id)
}

// DrawCmdModifiers returns the draw command modifiers of type t.
func (n *RenderNode) DrawCmdModifiers(t ModifierType) []*Modifier {
	return n.modifiers.phase(t)
}

// FilterModifiersByPid removes every modifier owned by pid.
func (n *RenderNode) FilterModifiersByPid(pid int32) {
	if n.modifiers.filterByPid(pid) {
		n.modifiers.updateOverlayBounds(n.props)
		n.SetDirty()
	}
}

// ApplyModifiers rebuilds the property store from the modifiers when the
// node is dirty.
func (n *RenderNode) ApplyModifiers() {
	if !n.dirty {
		return
	}
	n.modifiers.apply(n.props)
	if n.props.ZOrderChanged() {
		if p := n.Parent(); p != nil {
			p.childrenSorted = false
		}
	}
}

// --- Animations ---

// AddAnimation attaches a to n and registers n as animating.
func (n *RenderNode) AddAnimation(a *Animation) {
	if a == nil {
		return
	}
	n.animations.add(a)
	if n.ctx != nil {
		n.ctx.RegisterAnimatingRenderNode(n)
	}
}

// GetAnimation returns the animation with id, or nil.
func (n *RenderNode) GetAnimation(id AnimationID) *Animation {
	return n.animations.get(id)
}

// RemoveAnimation detaches and returns the animation with id.
func (n *RenderNode) RemoveAnimation(id AnimationID) *Animation {
	return n.animations.remove(id)
}

// AnimationCount returns the number of attached animations.
func (n *RenderNode) AnimationCount() int { return n.animations.len() }

// FilterAnimationByPid drops every animation owned by pid.
func (n *RenderNode) FilterAnimationByPid(pid int32) {
	n.animations.filterByPid(pid)
}

// Animate advances the node's animations to ts (nanoseconds) and dirties
// the nodes owning the written modifiers. It reports whether any animation
// is still running and returns the ones that finished.
func (n *RenderNode) Animate(ts int64) (running bool, finished []*Animation) {
	if n.animations.len() == 0 {
		return false, nil
	}
	running, finished = n.animations.animate(ts)
	for _, id := range n.animations.order {
		if a := n.animations.animations[id]; a.IsRunning() {
			a.target.markOwnerDirty()
		}
	}
	for _, a := range finished {
		a.target.markOwnerDirty()
	}
	return running, finished
}

// FallbackAnimationsToRoot moves every animation of n to the fallback node.
// Moved animations are detached and play at most once more, so an infinite
// animation cannot outlive its node forever.
func (n *RenderNode) FallbackAnimationsToRoot() {
	if n.animations.len() == 0 || n.ctx == nil {
		return
	}
	target := n.ctx.nodeMap.GetAnimationFallbackNode()
	if target == nil || target == n {
		Logger().Error("animation fallback node missing", "node", n.id)
		return
	}
	for _, a := range n.animations.drain() {
		a.Detach()
		a.SetRepeatCount(1)
		target.animations.add(a)
	}
	n.ctx.RegisterAnimatingRenderNode(target)
}

// Destroy detaches n from the tree and hands its animations to the fallback
// node. A node still painting a disappearing transition finishes destroying
// when the transition ends.
func (n *RenderNode) Destroy() {
	if n.destroyed {
		return
	}
	n.RemoveFromTree(false)
	if p := n.Parent(); p != nil && p.isDisappearing(n) {
		n.pendingDestroy = true
		return
	}
	n.finishDestroy()
}

func (n *RenderNode) isDisappearing(child *RenderNode) bool {
	return slices.ContainsFunc(n.disappearingChildren, func(d disappearingChild) bool {
		return d.node == child
	})
}

func (n *RenderNode) finishDestroy() {
	if n.destroyed {
		return
	}
	n.destroyed = true
	n.pendingDestroy = false
	if n.fallbackAnimationOnDestroy {
		n.FallbackAnimationsToRoot()
	} else {
		n.animations.drain()
	}
	if n.surface != nil {
		n.surface.releaseBuffers()
	}
	if n.drawing != nil {
		n.drawing.reset()
	}
}

// IsDestroyed reports whether Destroy completed.
func (n *RenderNode) IsDestroyed() bool { return n.destroyed }

// SetFallbackAnimationOnDestroy chooses whether Destroy moves animations to
// the fallback node or discards them.
func (n *RenderNode) SetFallbackAnimationOnDestroy(v bool) {
	n.fallbackAnimationOnDestroy = v
}

// --- Update ---

// Update recomputes n's geometry against parent and merges its damage into
// dm. A non-empty clip restricts the merged rectangle. It reports whether
// the geometry changed, which the caller passes down as parentDirty.
func (n *RenderNode) Update(dm *DirtyRegionManager, parent *RenderNode, parentDirty bool, clip RectI) bool {
	if !n.ShouldPaint() && !n.isLastVisible {
		return false
	}
	var offset Vec2
	var parentProps *Properties
	if parent != nil {
		parentProps = parent.props
		if n.kind != NodeKindSurface {
			offset = parent.props.FrameOffset()
		}
	}
	geoDirty := n.props.UpdateGeometry(parentProps, parentDirty, offset)
	if geoDirty {
		for _, m := range n.modifiers.phase(ModifierGeometryTransform) {
			n.props.boundsGeo.ConcatMatrix(m.value.Cmds.Matrix())
		}
	}
	n.UpdateDirtyRegion(dm, geoDirty, clip)
	n.isLastVisible = n.ShouldPaint()
	n.props.ResetDirty()
	return geoDirty
}

// UpdateDirtyRegion merges last frame's dirty rectangle and, if n still
// paints, its current one.
func (n *RenderNode) UpdateDirtyRegion(dm *DirtyRegionManager, geoDirty bool, clip RectI) {
	if !n.IsDirty() && !geoDirty {
		return
	}
	if dm == nil {
		n.SetClean()
		return
	}
	if !n.oldDirty.IsEmpty() {
		dm.MergeDirtyRect(n.oldDirty)
	}
	if n.ShouldPaint() {
		dirty := n.props.DirtyRect()
		if !clip.IsEmpty() {
			dirty = dirty.Intersect(clip)
		}
		if dm.MergeDirtyRect(dirty) {
			n.oldDirty = dirty
		} else {
			n.oldDirty = RectI{}
		}
		if dm.debug {
			dm.UpdateDirtyRegionInfo(n.id, n.kind, DirtyRegionUpdate, dirty)
			if ob := n.props.OverlayBounds(); !ob.IsEmpty() {
				dm.UpdateDirtyRegionInfo(n.id, n.kind, DirtyRegionOverlay, n.props.boundsGeo.MapAbsRect(ob.ToRect()))
			}
			dm.UpdateDirtyRegionInfo(n.id, n.kind, DirtyRegionShadow, n.props.ShadowRect())
			if !clip.IsEmpty() {
				dm.UpdateDirtyRegionInfo(n.id, n.kind, DirtyRegionPrepareClip, clip)
			}
		}
	} else {
		n.oldDirty = RectI{}
	}
	n.SetClean()
}

// --- Visitor dispatch ---

// Prepare calls the visitor's prepare method for n's kind.
func (n *RenderNode) Prepare(v NodeVisitor) {
	switch n.kind {
	case NodeKindCanvas, NodeKindCanvasDrawing:
		v.PrepareCanvasRenderNode(n)
	case NodeKindSurface:
		v.PrepareSurfaceRenderNode(n)
	case NodeKindDisplay:
		v.PrepareDisplayRenderNode(n)
	case NodeKindRoot:
		v.PrepareRootRenderNode(n)
	case NodeKindProxy:
		v.PrepareProxyRenderNode(n)
	default:
		v.PrepareBaseRenderNode(n)
	}
}

// Process calls the visitor's process method for n's kind.
func (n *RenderNode) Process(v NodeVisitor) {
	switch n.kind {
	case NodeKindCanvas, NodeKindCanvasDrawing:
		v.ProcessCanvasRenderNode(n)
	case NodeKindSurface:
		v.ProcessSurfaceRenderNode(n)
	case NodeKindDisplay:
		v.ProcessDisplayRenderNode(n)
	case NodeKindRoot:
		v.ProcessRootRenderNode(n)
	case NodeKindProxy:
		v.ProcessProxyRenderNode(n)
	default:
		v.ProcessBaseRenderNode(n)
	}
}

// PrepareChildren prepares every child in paint order.
func (n *RenderNode) PrepareChildren(v NodeVisitor) {
	for _, child := range n.SortedChildren() {
		child.Prepare(v)
	}
}

// ProcessChildren processes every child in paint order, then drops the
// cached order.
func (n *RenderNode) ProcessChildren(v NodeVisitor) {
	for _, child := range n.SortedChildren() {
		child.Process(v)
	}
	n.ResetSortedChildren()
}

// --- Painting ---

// ProcessRenderBeforeChildren saves the canvas and draws everything below
// the node's content: transform, alpha, shadow, background and the
// background style commands. Must be paired with ProcessRenderAfterChildren.
func (n *RenderNode) ProcessRenderBeforeChildren(c Canvas) {
	n.renderSaveCount = c.Save()
	p := n.props
	if g := p.boundsGeo; !g.IsEmpty() {
		c.Concat(g.RelativeMatrix())
	}
	if a := p.Alpha(); a < 1 {
		c.MultiplyAlpha(a)
	}
	bounds := Rect{0, 0, p.boundsGeo.Width, p.boundsGeo.Height}
	if s := p.Shadow(); s.IsValid() {
		sr := Rect{bounds.X + s.OffsetX, bounds.Y + s.OffsetY, bounds.Width, bounds.Height}
		sr = sr.Outset(s.Elevation / 2)
		c.DrawRoundRect(sr, p.CornerRadius()+s.Radius/2, s.Color)
	}
	if p.ClipToBounds() {
		c.ClipRect(bounds)
	}
	if bg := p.BackgroundColor(); !bg.IsTransparent() {
		c.DrawRoundRect(bounds, p.CornerRadius(), bg)
	}
	n.playPhase(c, ModifierBackgroundStyle)
}

// ProcessRenderContents draws the content style commands inside the frame.
func (n *RenderNode) ProcessRenderContents(c Canvas) {
	if n.kind == NodeKindCanvasDrawing && n.drawing != nil {
		n.drawing.processContents(n, c)
		return
	}
	if len(n.modifiers.phase(ModifierContentStyle)) == 0 {
		return
	}
	count := c.Save()
	off := n.props.FrameOffset()
	c.Translate(off.X, off.Y)
	if n.props.ClipToFrame() {
		f := n.props.Frame()
		c.ClipRect(Rect{0, 0, f.Width, f.Height})
	}
	n.playPhase(c, ModifierContentStyle)
	c.RestoreToCount(count)
}

// ProcessRenderAfterChildren draws the foreground, border and overlay, then
// restores the canvas saved by ProcessRenderBeforeChildren.
func (n *RenderNode) ProcessRenderAfterChildren(c Canvas) {
	p := n.props
	bounds := Rect{0, 0, p.boundsGeo.Width, p.boundsGeo.Height}
	n.playPhase(c, ModifierForegroundStyle)
	if fg := p.ForegroundColor(); !fg.IsTransparent() {
		c.DrawRoundRect(bounds, p.CornerRadius(), fg)
	}
	if col, w := p.Border(); w > 0 {
		c.StrokeRect(bounds, w, col)
	}
	n.playPhase(c, ModifierOverlayStyle)
	c.RestoreToCount(n.renderSaveCount)
	p.ResetBounds()
}

func (n *RenderNode) playPhase(c Canvas, t ModifierType) {
	for _, m := range n.modifiers.phase(t) {
		m.value.Cmds.Playback(c)
	}
}

// --- Collection and dumps ---

// CollectSurface appends every surface node of the subtree in paint order.
// With onlyFirstLevel set, the search does not descend below a surface.
func (n *RenderNode) CollectSurface(out []*RenderNode, onlyFirstLevel bool) []*RenderNode {
	for _, child := range n.SortedChildren() {
		if child.kind == NodeKindSurface {
			out = append(out, child)
			if onlyFirstLevel {
				continue
			}
		}
		out = child.CollectSurface(out, onlyFirstLevel)
	}
	return out
}

// DumpTree writes an indented description of the subtree to b.
func (n *RenderNode) DumpTree(depth int, b *strings.Builder) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
	b.WriteString("| ")
	fmt.Fprintf(b, "%s[%s]", n.kind, n.id)
	if n.surface != nil {
		fmt.Fprintf(b, " Name[%s] DstRect[%v] Visible[%v]", n.surface.name, n.surface.dstRect, !n.visibleRegion.IsEmpty())
	}
	if n.root != nil {
		fmt.Fprintf(b, " Surface[%s] EnableRender[%t]", n.root.surfaceID, n.root.enableRender)
	}
	if n.display != nil {
		fmt.Fprintf(b, " Screen[%d]", n.display.screenID)
	}
	fmt.Fprintf(b, " %s Modifiers[%d] Animations[%d]", n.props.Dump(), n.modifiers.len(), n.animations.len())
	if len(n.disappearingChildren) > 0 {
		fmt.Fprintf(b, " Disappearing[%d]", len(n.disappearingChildren))
	}
	b.WriteByte('\n')
	for _, child := range n.children {
		child.DumpTree(depth+1, b)
	}
	for _, d := range n.disappearingChildren {
		d.node.DumpTree(depth+1, b)
	}
}

// --- Helpers ---

// isAncestor reports whether candidate is node or one of its ancestors.
func isAncestor(candidate, node *RenderNode) bool {
	for p := node; p != nil; p = p.Parent() {
		if p == candidate {
			return true
		}
	}
	return false
}
