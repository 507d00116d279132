package arbor

import (
	"testing"
)

// --- Geometry ---

func TestUpdateGeometryOnlyWhenDirty(t *testing.T) {
	p := NewProperties()
	p.SetBounds(Rect{X: 10, Y: 10, Width: 20, Height: 20})
	if !p.UpdateGeometry(nil, false, Vec2{}) {
		t.Fatal("first UpdateGeometry = false")
	}
	p.ResetDirty()
	m := p.BoundsGeometry().Matrix()

	if p.UpdateGeometry(nil, false, Vec2{}) {
		t.Error("UpdateGeometry without changes = true")
	}
	if p.BoundsGeometry().Matrix() != m {
		t.Errorf("matrix = %v, want %v", p.BoundsGeometry().Matrix(), m)
	}
	if !p.UpdateGeometry(nil, true, Vec2{}) {
		t.Error("UpdateGeometry with a dirty parent = false")
	}
}

func TestNodeUpdateIsIdempotent(t *testing.T) {
	n := NewCanvasNode(MakeNodeID(1, 1), NewContext())
	n.Properties().SetBounds(Rect{X: 10, Y: 10, Width: 20, Height: 20})
	n.Properties().SetTranslate(5, 0)

	dm := NewDirtyRegionManager()
	if !n.Update(dm, nil, false, RectI{}) {
		t.Fatal("first Update = false")
	}
	if !dm.IsDirty() {
		t.Error("first Update merged no damage")
	}
	m := n.Properties().BoundsGeometry().Matrix()

	dm = NewDirtyRegionManager()
	if n.Update(dm, nil, false, RectI{}) {
		t.Error("second Update = true")
	}
	if n.IsDirty() {
		t.Error("IsDirty after an unchanged Update")
	}
	if dm.IsDirty() {
		t.Errorf("unchanged Update merged %v", dm.DirtyRegion())
	}
	if got := n.Properties().BoundsGeometry().Matrix(); got != m {
		t.Errorf("matrix = %v, want %v", got, m)
	}
}

// --- Bounds ---

func TestBoundsRectFallsBackToFrame(t *testing.T) {
	p := NewProperties()
	p.SetFrame(Rect{X: 5, Y: 6, Width: 7, Height: 8})
	if got := p.BoundsRect(); got != (Rect{0, 0, 7, 8}) {
		t.Errorf("BoundsRect = %v, want {0 0 7 8}", got)
	}

	p.SetBounds(Rect{Width: 3, Height: 4})
	if got := p.BoundsRect(); got != (Rect{0, 0, 3, 4}) {
		t.Errorf("BoundsRect with bounds = %v, want {0 0 3 4}", got)
	}
}
