package arbor

import (
	"testing"
	"time"
)

func occlusionScene(t *testing.T, topAlpha float64) (*MainLoop, NodeID, NodeID) {
	t.Helper()
	l := newTestLoop()
	a, b := MakeNodeID(1, 1), MakeNodeID(1, 2)
	addTestSurface(t, l, a, testDisplayID)
	addTestSurface(t, l, b, testDisplayID)
	setBounds(node(l, a), 1, Rect{Width: 20, Height: 20})
	setBounds(node(l, b), 1, Rect{X: 10, Y: 10, Width: 20, Height: 20})
	if topAlpha < 1 {
		node(l, b).AddModifier(NewModifier(PropertyID{Pid: 1, Local: 2}, ModifierAlpha, FloatValue(topAlpha)))
	}
	return l, a, b
}

func TestOcclusionSubtractsUpperSurfaces(t *testing.T) {
	l, a, b := occlusionScene(t, 1)
	var calls [][]VisibleSurface
	l.AddOcclusionListener(func(v []VisibleSurface) { calls = append(calls, v) })

	l.OnVsync(1)

	if len(calls) != 1 {
		t.Fatalf("listener calls = %d, want 1", len(calls))
	}
	got := calls[0]
	if len(got) != 2 || got[0].Node != a || got[1].Node != b {
		t.Fatalf("result = %+v, want entries for a and b", got)
	}
	if area := got[0].Visible.Area(); area != 300 {
		t.Errorf("a visible area = %d, want 300", area)
	}
	if area := got[1].Visible.Area(); area != 400 {
		t.Errorf("b visible area = %d, want 400", area)
	}
	if !node(l, a).VisibleRegion().Equal(got[0].Visible) {
		t.Errorf("a VisibleRegion = %v, want %v", node(l, a).VisibleRegion(), got[0].Visible)
	}

	l.OnVsync(2)
	if len(calls) != 1 {
		t.Errorf("listener calls after unchanged frame = %d, want 1", len(calls))
	}
}

func TestOcclusionTranslucentDoesNotOcclude(t *testing.T) {
	l, a, _ := occlusionScene(t, 0.5)
	l.OnVsync(1)
	if area := node(l, a).VisibleRegion().Area(); area != 400 {
		t.Errorf("a visible area = %d, want 400", area)
	}
}

func TestOcclusionNotifiesOnMove(t *testing.T) {
	l, a, b := occlusionScene(t, 1)
	calls := 0
	l.AddOcclusionListener(func([]VisibleSurface) { calls++ })
	l.OnVsync(1)

	node(l, b).UpdateModifier(PropertyID{Pid: 1, Local: 1}, RectValue(Rect{X: 40, Y: 40, Width: 20, Height: 20}))
	l.OnVsync(2)
	if calls != 2 {
		t.Fatalf("listener calls = %d, want 2", calls)
	}
	if area := node(l, a).VisibleRegion().Area(); area != 400 {
		t.Errorf("a visible area after move = %d, want 400", area)
	}
}

func TestOcclusionSkippedWhileAnimating(t *testing.T) {
	l, _, _ := occlusionScene(t, 1)
	calls := 0
	l.AddOcclusionListener(func([]VisibleSurface) { calls++ })
	l.doAnimate = true
	l.calcOcclusion()
	if calls != 0 {
		t.Errorf("listener calls = %d, want 0 while animating", calls)
	}
}

func TestOcclusionSkippedOnFrameAnimationEnds(t *testing.T) {
	l, _, b := occlusionScene(t, 1)
	calls := 0
	l.AddOcclusionListener(func([]VisibleSurface) { calls++ })

	m := NewModifier(PropertyID{Pid: 1, Local: 7}, ModifierPositionZ, FloatValue(0))
	node(l, b).AddModifier(m)
	a, _ := NewAnimation(AnimationID{Pid: 1, Local: 7}, m, AnimationParams{
		From: FloatValue(0), To: FloatValue(1), Duration: 10 * time.Millisecond,
	})
	a.Start()
	node(l, b).AddAnimation(a)

	t0 := int64(time.Second)
	l.OnVsync(t0)
	l.OnVsync(t0 + int64(20*time.Millisecond))
	if !a.IsFinished() {
		t.Fatal("animation not finished")
	}
	if calls != 0 {
		t.Fatalf("listener calls = %d, want 0 while animating", calls)
	}

	l.OnVsync(t0 + int64(40*time.Millisecond))
	if calls != 1 {
		t.Errorf("listener calls after animations ended = %d, want 1", calls)
	}
}
