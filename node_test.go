package arbor

import (
	"slices"
	"testing"
	"time"
)

func attachedNode(ctx *Context, local uint32) *RenderNode {
	n := NewCanvasNode(MakeNodeID(1, local), ctx)
	ctx.NodeMap().RegisterRenderNode(n)
	return n
}

// --- Tree structure ---

func TestAddChildPropagatesOnTheTree(t *testing.T) {
	ctx := NewContext()
	parent := attachedNode(ctx, 1)
	child := attachedNode(ctx, 2)
	grandchild := attachedNode(ctx, 3)
	child.AddChild(grandchild, -1)
	parent.AddChild(child, -1)
	if grandchild.IsOnTheTree() {
		t.Fatal("grandchild on the tree before parent is attached")
	}

	ctx.GlobalRoot().AddChild(parent, -1)
	if !grandchild.IsOnTheTree() {
		t.Error("grandchild not on the tree after attach")
	}

	parent.RemoveChild(child, true)
	if child.IsOnTheTree() || grandchild.IsOnTheTree() {
		t.Error("removed subtree still on the tree")
	}
	if child.Parent() != nil {
		t.Error("removed child still has a parent")
	}
}

func TestAddChildReparents(t *testing.T) {
	ctx := NewContext()
	a, b, c := attachedNode(ctx, 1), attachedNode(ctx, 2), attachedNode(ctx, 3)
	a.AddChild(c, -1)
	b.AddChild(c, 0)
	if a.ChildrenCount() != 0 {
		t.Errorf("old parent ChildrenCount = %d, want 0", a.ChildrenCount())
	}
	if c.Parent() != b {
		t.Error("child not moved to the new parent")
	}
}

func TestAddChildCyclePanics(t *testing.T) {
	ctx := NewContext()
	a, b := attachedNode(ctx, 1), attachedNode(ctx, 2)
	a.AddChild(b, -1)
	defer func() {
		if recover() == nil {
			t.Error("AddChild cycle did not panic")
		}
	}()
	b.AddChild(a, -1)
}

func TestMoveChild(t *testing.T) {
	ctx := NewContext()
	p := attachedNode(ctx, 1)
	a, b, c := attachedNode(ctx, 2), attachedNode(ctx, 3), attachedNode(ctx, 4)
	for _, n := range []*RenderNode{a, b, c} {
		p.AddChild(n, -1)
	}
	p.MoveChild(c, 0)
	if !slices.Equal(p.Children(), []*RenderNode{c, a, b}) {
		t.Errorf("children after MoveChild = %v", p.Children())
	}
}

func TestSortedChildrenByPositionZ(t *testing.T) {
	ctx := NewContext()
	p := attachedNode(ctx, 1)
	a, b, c := attachedNode(ctx, 2), attachedNode(ctx, 3), attachedNode(ctx, 4)
	for _, n := range []*RenderNode{a, b, c} {
		p.AddChild(n, -1)
	}
	if !slices.Equal(p.SortedChildren(), []*RenderNode{a, b, c}) {
		t.Fatalf("SortedChildren = %v, want insertion order", p.SortedChildren())
	}

	a.AddModifier(NewModifier(PropertyID{Pid: 1, Local: 1}, ModifierPositionZ, FloatValue(5)))
	a.ApplyModifiers()
	if !slices.Equal(p.SortedChildren(), []*RenderNode{b, c, a}) {
		t.Errorf("SortedChildren = %v, want a last", p.SortedChildren())
	}
}

func TestDisappearingChildKeepsPainting(t *testing.T) {
	ctx := NewContext()
	p := attachedNode(ctx, 1)
	a, b := attachedNode(ctx, 2), attachedNode(ctx, 3)
	p.AddChild(a, -1)
	p.AddChild(b, -1)
	ctx.GlobalRoot().AddChild(p, -1)

	anim, m := alphaAnimation(t, AnimationParams{Transition: true})
	a.AddModifier(m)
	a.AddAnimation(anim)

	p.RemoveChild(a, false)
	if p.DisappearingChildrenCount() != 1 {
		t.Fatalf("DisappearingChildrenCount = %d, want 1", p.DisappearingChildrenCount())
	}
	if a.IsOnTheTree() {
		t.Error("disappearing child still on the tree")
	}
	if !slices.Equal(p.SortedChildren(), []*RenderNode{a, b}) {
		t.Errorf("SortedChildren = %v, want a at its old slot", p.SortedChildren())
	}

	anim.Finish()
	p.ResetSortedChildren()
	if !slices.Equal(p.SortedChildren(), []*RenderNode{b}) {
		t.Errorf("SortedChildren after transition = %v, want only b", p.SortedChildren())
	}
	if a.Parent() != nil {
		t.Error("finished disappearing child kept its parent")
	}
}

func TestReAddRevivesDisappearingChild(t *testing.T) {
	ctx := NewContext()
	p := attachedNode(ctx, 1)
	a := attachedNode(ctx, 2)
	p.AddChild(a, -1)
	anim, m := alphaAnimation(t, AnimationParams{Transition: true})
	a.AddModifier(m)
	a.AddAnimation(anim)

	p.RemoveChild(a, false)
	p.AddChild(a, -1)
	if p.DisappearingChildrenCount() != 0 {
		t.Errorf("DisappearingChildrenCount = %d, want 0", p.DisappearingChildrenCount())
	}
	if len(p.SortedChildren()) != 1 {
		t.Errorf("SortedChildren = %v, want a once", p.SortedChildren())
	}
}

func TestDestroyWaitsForTransition(t *testing.T) {
	ctx := NewContext()
	p := attachedNode(ctx, 1)
	a := attachedNode(ctx, 2)
	p.AddChild(a, -1)
	anim, m := alphaAnimation(t, AnimationParams{Transition: true})
	a.AddModifier(m)
	a.AddAnimation(anim)

	a.Destroy()
	if a.IsDestroyed() {
		t.Fatal("destroyed while its transition is running")
	}
	anim.Finish()
	p.ResetSortedChildren()
	p.SortedChildren()
	if !a.IsDestroyed() {
		t.Error("not destroyed after its transition ended")
	}
}

// --- Modifiers ---

func TestModifiersApplyInPropertyIDOrder(t *testing.T) {
	n := NewCanvasNode(MakeNodeID(1, 1), NewContext())
	n.AddModifier(NewModifier(PropertyID{Pid: 1, Local: 2}, ModifierAlpha, FloatValue(0.2)))
	n.AddModifier(NewModifier(PropertyID{Pid: 1, Local: 1}, ModifierAlpha, FloatValue(0.8)))
	n.ApplyModifiers()
	if got := n.Properties().Alpha(); got != 0.2 {
		t.Errorf("Alpha = %v, want 0.2 from the higher id", got)
	}
}

func TestBoundsModifierSlotIsShared(t *testing.T) {
	n := NewCanvasNode(MakeNodeID(1, 1), NewContext())
	first := NewModifier(PropertyID{Pid: 1, Local: 1}, ModifierBounds, RectValue(Rect{Width: 10, Height: 10}))
	n.AddModifier(first)
	n.AddModifier(NewModifier(PropertyID{Pid: 1, Local: 2}, ModifierBounds, RectValue(Rect{Width: 99, Height: 99})))
	if n.GetModifier(PropertyID{Pid: 1, Local: 2}) != first {
		t.Fatal("second bounds modifier does not alias the first")
	}

	n.RemoveModifier(PropertyID{Pid: 1, Local: 1})
	n.ApplyModifiers()
	if got := n.Properties().Bounds(); got.Width != 10 {
		t.Errorf("Bounds = %v, want the slot value kept by the alias", got)
	}
}

func TestUpdateModifierMissing(t *testing.T) {
	n := NewCanvasNode(MakeNodeID(1, 1), NewContext())
	if n.UpdateModifier(PropertyID{Pid: 1, Local: 9}, FloatValue(1)) {
		t.Error("UpdateModifier on a missing id = true")
	}
}

func TestFilterModifiersByPid(t *testing.T) {
	n := NewCanvasNode(MakeNodeID(1, 1), NewContext())
	n.AddModifier(NewModifier(PropertyID{Pid: 1, Local: 1}, ModifierAlpha, FloatValue(0.5)))
	n.AddModifier(NewModifier(PropertyID{Pid: 2, Local: 1}, ModifierPositionZ, FloatValue(3)))
	n.FilterModifiersByPid(1)
	n.ApplyModifiers()
	if n.GetModifier(PropertyID{Pid: 1, Local: 1}) != nil {
		t.Error("modifier of pid 1 survived")
	}
	if got := n.Properties().Alpha(); got != 1 {
		t.Errorf("Alpha = %v, want default 1", got)
	}
	if got := n.Properties().PositionZ(); got != 3 {
		t.Errorf("PositionZ = %v, want 3", got)
	}
}

// --- Node map ---

func TestNodeMapRegister(t *testing.T) {
	ctx := NewContext()
	m := ctx.NodeMap()
	n := NewCanvasNode(MakeNodeID(1, 1), ctx)
	if !m.RegisterRenderNode(n) {
		t.Fatal("RegisterRenderNode = false")
	}
	if m.RegisterRenderNode(NewCanvasNode(MakeNodeID(1, 1), ctx)) {
		t.Error("duplicate RegisterRenderNode = true")
	}
	if m.GetRenderNode(n.ID()) != n {
		t.Error("GetRenderNode did not return the first node")
	}
	if m.GetRenderNode(FallbackNodeID) != nil {
		t.Error("GetRenderNode returned the fallback node")
	}
	m.UnregisterRenderNode(FallbackNodeID)
	if m.GetAnimationFallbackNode() == nil {
		t.Error("fallback node was unregistered")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestNodeMapWellKnownSurfaces(t *testing.T) {
	ctx := NewContext()
	m := ctx.NodeMap()
	entry := NewSurfaceNode(MakeNodeID(1, 1), ctx, EntryViewName)
	wall := NewSurfaceNode(MakeNodeID(1, 2), ctx, WallpaperViewName)
	m.RegisterRenderNode(entry)
	m.RegisterRenderNode(wall)
	if m.EntryViewNodeID() != entry.ID() {
		t.Errorf("EntryViewNodeID = %v", m.EntryViewNodeID())
	}
	if m.WallpaperViewNodeID() != wall.ID() {
		t.Errorf("WallpaperViewNodeID = %v", m.WallpaperViewNodeID())
	}
	if m.GetSurfaceNode(wall.ID()) != wall {
		t.Error("GetSurfaceNode missed the wallpaper")
	}
}

func TestNodeMapTraverseInIDOrder(t *testing.T) {
	ctx := NewContext()
	m := ctx.NodeMap()
	for _, id := range []NodeID{MakeNodeID(2, 1), MakeNodeID(1, 5), MakeNodeID(1, 2)} {
		m.RegisterRenderNode(NewCanvasNode(id, ctx))
	}
	var got []NodeID
	m.TraverseNodes(func(n *RenderNode) { got = append(got, n.ID()) })
	want := []NodeID{FallbackNodeID, MakeNodeID(1, 2), MakeNodeID(1, 5), MakeNodeID(2, 1)}
	if !slices.Equal(got, want) {
		t.Errorf("TraverseNodes order = %v, want %v", got, want)
	}
}

func TestFilterNodeByPid(t *testing.T) {
	ctx := NewContext()
	m := ctx.NodeMap()
	doomed := attachedNode(ctx, 1)
	other := NewCanvasNode(MakeNodeID(2, 1), ctx)
	m.RegisterRenderNode(other)
	ctx.GlobalRoot().AddChild(doomed, -1)

	fb := m.GetAnimationFallbackNode()
	parked, _ := alphaAnimation(t, AnimationParams{})
	fb.AddAnimation(parked)
	kept, _ := NewAnimation(AnimationID{Pid: 2, Local: 1},
		NewModifier(PropertyID{Pid: 2, Local: 1}, ModifierAlpha, FloatValue(0)),
		AnimationParams{From: FloatValue(0), To: FloatValue(1), Duration: 100 * time.Millisecond})
	fb.AddAnimation(kept)
	a, am := alphaAnimation(t, AnimationParams{})
	doomed.AddModifier(am)
	doomed.AddAnimation(a)

	m.FilterNodeByPid(0)
	if m.Len() != 3 {
		t.Fatalf("Len after filtering pid 0 = %d, want 3", m.Len())
	}

	m.FilterNodeByPid(1)
	if m.GetRenderNode(doomed.ID()) != nil {
		t.Error("node of pid 1 still registered")
	}
	if m.GetRenderNode(other.ID()) != other {
		t.Error("node of pid 2 removed")
	}
	if !doomed.IsDestroyed() || doomed.IsOnTheTree() {
		t.Error("filtered node not destroyed and detached")
	}
	if fb.GetAnimation(parked.ID()) != nil {
		t.Error("pid 1 animation still parked on the fallback node")
	}
	if fb.GetAnimation(kept.ID()) != kept {
		t.Error("pid 2 animation dropped from the fallback node")
	}
	if n := fb.AnimationCount(); n != 1 {
		t.Errorf("fallback AnimationCount = %d, want 1", n)
	}
}
