package arbor

import (
	"math"
	"testing"
	"time"
)

func alphaAnimation(t *testing.T, params AnimationParams) (*Animation, *Modifier) {
	t.Helper()
	m := NewModifier(PropertyID{Pid: 1, Local: 1}, ModifierAlpha, FloatValue(0))
	params.From, params.To = FloatValue(0), FloatValue(1)
	if params.Duration == 0 {
		params.Duration = 100 * time.Millisecond
	}
	a, ok := NewAnimation(AnimationID{Pid: 1, Local: 1}, m, params)
	if !ok {
		t.Fatal("NewAnimation rejected an alpha modifier")
	}
	a.Start()
	return a, m
}

func assertNear(t *testing.T, what string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-3 {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

func ms(n int) int64 { return int64(time.Duration(n) * time.Millisecond) }

// --- Animation ---

func TestAnimationLinear(t *testing.T) {
	a, m := alphaAnimation(t, AnimationParams{})
	if a.Animate(ms(0)) {
		t.Fatal("finished at start")
	}
	a.Animate(ms(50))
	assertNear(t, "alpha at 50ms", m.Value().Float, 0.5)

	if !a.Animate(ms(100)) {
		t.Fatal("not finished at end")
	}
	assertNear(t, "alpha at end", m.Value().Float, 1)
	if !a.IsFinished() {
		t.Errorf("State = %v, want finished", a.State())
	}
	if a.Animate(ms(150)) {
		t.Error("finished twice")
	}
}

func TestAnimationDelay(t *testing.T) {
	a, m := alphaAnimation(t, AnimationParams{Delay: 20 * time.Millisecond})
	a.Animate(ms(0))
	a.Animate(ms(10))
	assertNear(t, "alpha during delay", m.Value().Float, 0)
	a.Animate(ms(70))
	assertNear(t, "alpha after delay", m.Value().Float, 0.5)
}

func TestAnimationAutoReverse(t *testing.T) {
	a, m := alphaAnimation(t, AnimationParams{RepeatCount: 2, AutoReverse: true})
	a.Animate(ms(0))
	a.Animate(ms(125))
	assertNear(t, "alpha reversing", m.Value().Float, 0.75)
	if !a.Animate(ms(200)) {
		t.Fatal("not finished after two iterations")
	}
	assertNear(t, "alpha at end", m.Value().Float, 0)
}

func TestAnimationInfinite(t *testing.T) {
	a, m := alphaAnimation(t, AnimationParams{RepeatCount: -1})
	a.Animate(ms(0))
	if a.Animate(ms(1030)) {
		t.Fatal("infinite animation finished")
	}
	assertNear(t, "alpha", m.Value().Float, 0.3)
	if !a.IsRunning() {
		t.Errorf("State = %v, want running", a.State())
	}
}

func TestAnimationPauseResume(t *testing.T) {
	a, m := alphaAnimation(t, AnimationParams{})
	a.Animate(ms(0))
	a.Animate(ms(40))
	a.Pause()
	if a.Animate(ms(90)) {
		t.Fatal("paused animation finished")
	}
	assertNear(t, "alpha while paused", m.Value().Float, 0.4)

	a.Start()
	a.Animate(ms(500))
	assertNear(t, "alpha on resume", m.Value().Float, 0.4)
	a.Animate(ms(520))
	assertNear(t, "alpha after resume", m.Value().Float, 0.6)
	if !a.Animate(ms(560)) {
		t.Error("resumed animation did not finish after its remaining 60ms")
	}
}

func TestAnimationPauseBeforeFirstFrame(t *testing.T) {
	a, m := alphaAnimation(t, AnimationParams{})
	a.Pause()
	a.Start()
	a.Animate(ms(300))
	a.Animate(ms(325))
	assertNear(t, "alpha", m.Value().Float, 0.25)
}

func TestAnimationRejectsBool(t *testing.T) {
	m := NewModifier(PropertyID{Pid: 1, Local: 1}, ModifierVisible, BoolValue(true))
	if _, ok := NewAnimation(AnimationID{Pid: 1, Local: 1}, m, AnimationParams{}); ok {
		t.Error("NewAnimation accepted a bool modifier")
	}
	if _, ok := NewAnimation(AnimationID{}, nil, AnimationParams{}); ok {
		t.Error("NewAnimation accepted a nil target")
	}
}

func TestAnimationZeroRepeatPlaysOnce(t *testing.T) {
	a, _ := alphaAnimation(t, AnimationParams{})
	if a.RepeatCount() != 1 {
		t.Errorf("RepeatCount = %d, want 1", a.RepeatCount())
	}
}

// --- Node animations ---

func TestNodeAnimateDirtiesOwner(t *testing.T) {
	ctx := NewContext()
	n := NewCanvasNode(MakeNodeID(1, 1), ctx)
	m := NewModifier(PropertyID{Pid: 1, Local: 1}, ModifierAlpha, FloatValue(0))
	n.AddModifier(m)
	a, _ := NewAnimation(AnimationID{Pid: 1, Local: 1}, m, AnimationParams{
		From: FloatValue(0), To: FloatValue(1), Duration: 100 * time.Millisecond,
	})
	a.Start()
	n.AddAnimation(a)
	if ctx.AnimatingNodeCount() != 1 {
		t.Errorf("AnimatingNodeCount = %d, want 1", ctx.AnimatingNodeCount())
	}

	n.SetClean()
	running, finished := n.Animate(ms(0))
	if !running || len(finished) != 0 {
		t.Errorf("Animate = %v, %d finished", running, len(finished))
	}
	if !n.IsDirty() {
		t.Error("node not dirtied by a running animation")
	}

	running, finished = n.Animate(ms(100))
	if running || len(finished) != 1 || finished[0] != a {
		t.Errorf("Animate at end = %v, %v", running, finished)
	}
	if n.AnimationCount() != 0 {
		t.Errorf("AnimationCount = %d, want 0", n.AnimationCount())
	}
}

func TestDestroyMovesAnimationsToFallback(t *testing.T) {
	ctx := NewContext()
	n := NewCanvasNode(MakeNodeID(1, 1), ctx)
	ctx.NodeMap().RegisterRenderNode(n)
	a, m := alphaAnimation(t, AnimationParams{RepeatCount: -1})
	n.AddModifier(m)
	n.AddAnimation(a)

	n.Destroy()
	if !n.IsDestroyed() {
		t.Fatal("IsDestroyed = false")
	}
	fb := ctx.NodeMap().GetAnimationFallbackNode()
	if fb.GetAnimation(a.ID()) != a {
		t.Fatal("animation not moved to the fallback node")
	}
	if a.RepeatCount() != 1 {
		t.Errorf("RepeatCount = %d, want 1 after fallback", a.RepeatCount())
	}
}

func TestDestroyWithoutFallbackDropsAnimations(t *testing.T) {
	ctx := NewContext()
	n := NewCanvasNode(MakeNodeID(1, 1), ctx)
	a, _ := alphaAnimation(t, AnimationParams{})
	n.AddAnimation(a)
	n.SetFallbackAnimationOnDestroy(false)
	n.Destroy()
	if ctx.NodeMap().GetAnimationFallbackNode().AnimationCount() != 0 {
		t.Error("animation moved despite fallback disabled")
	}
}
