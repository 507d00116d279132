package arbor

import (
	"slices"
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Curve selects the easing of a property animation. Values are part of the
// wire format.
type Curve uint8

const (
	CurveLinear Curve = iota
	CurveEaseIn
	CurveEaseOut
	CurveEaseInOut
	CurveFastOutSlowIn
	CurveSpring
	CurveBounce
	curveCount
)

var curveFuncs = [curveCount]ease.TweenFunc{
	CurveLinear:        ease.Linear,
	CurveEaseIn:        ease.InQuad,
	CurveEaseOut:       ease.OutQuad,
	CurveEaseInOut:     ease.InOutQuad,
	CurveFastOutSlowIn: ease.OutCubic,
	CurveSpring:        ease.OutBack,
	CurveBounce:        ease.OutBounce,
}

func (c Curve) easing() ease.TweenFunc {
	if c < curveCount {
		return curveFuncs[c]
	}
	return ease.Linear
}

// AnimationState is the lifecycle state of an Animation.
type AnimationState uint8

const (
	AnimationInitialized AnimationState = iota
	AnimationRunning
	AnimationPaused
	AnimationFinished
)

// AnimationParams describe a property animation. RepeatCount < 0 repeats
// forever; zero is treated as one.
type AnimationParams struct {
	From, To    PropertyValue
	Duration    time.Duration
	Delay       time.Duration
	Curve       Curve
	RepeatCount int
	AutoReverse bool
	// Transition marks an appear/disappear transition; a node removed from
	// its parent keeps painting while one is running.
	Transition bool
}

// Animation interpolates one modifier's value from timestamps supplied by
// the main loop. Each component of the value is driven by its own tween.
type Animation struct {
	id       AnimationID
	target   *Modifier
	params   AnimationParams
	tweens   []*gween.Tween
	state    AnimationState
	start    int64
	last     int64
	started  bool
	attached bool
	// paused is the time played before Pause; the next Animate after Start
	// resumes from it.
	paused int64
}

// NewAnimation returns an animation of target's value. It reports false when
// the target's value cannot be interpolated.
func NewAnimation(id AnimationID, target *Modifier, params AnimationParams) (*Animation, bool) {
	if target == nil || !target.Animatable() {
		return nil, false
	}
	if params.RepeatCount == 0 {
		params.RepeatCount = 1
	}
	a := &Animation{id: id, target: target, params: params, attached: true}
	k := target.kind()
	from := params.From.components(k)
	to := params.To.components(k)
	secs := float32(params.Duration.Seconds())
	a.tweens = make([]*gween.Tween, len(from))
	for i := range from {
		a.tweens[i] = gween.New(float32(from[i]), float32(to[i]), secs, params.Curve.easing())
	}
	return a, true
}

func (a *Animation) ID() AnimationID       { return a.id }
func (a *Animation) Target() *Modifier     { return a.target }
func (a *Animation) State() AnimationState { return a.state }
func (a *Animation) IsRunning() bool       { return a.state == AnimationRunning }
func (a *Animation) IsFinished() bool      { return a.state == AnimationFinished }
func (a *Animation) IsTransition() bool    { return a.params.Transition }
func (a *Animation) RepeatCount() int      { return a.params.RepeatCount }

// SetRepeatCount changes the remaining repeat budget.
func (a *Animation) SetRepeatCount(n int) {
	a.params.RepeatCount = n
}

// Start moves the animation to running; the first Animate call fixes the
// start time. A paused animation continues from the value it froze at.
func (a *Animation) Start() {
	if a.state == AnimationInitialized || a.state == AnimationPaused {
		a.state = AnimationRunning
	}
}

// Pause freezes the animation at its current value.
func (a *Animation) Pause() {
	if a.state == AnimationRunning {
		a.state = AnimationPaused
		if a.started {
			a.paused = a.last - a.start
		}
		a.started = false
	}
}

// Finish jumps to the end value.
func (a *Animation) Finish() {
	if a.state == AnimationFinished {
		return
	}
	a.write(a.params.Duration, a.params.AutoReverse && a.params.RepeatCount%2 == 0)
	a.state = AnimationFinished
}

// Detach marks the animation as no longer owned by its original node.
func (a *Animation) Detach() {
	a.attached = false
}

// Animate advances to timestamp ts (nanoseconds) and writes the current
// value into the target modifier. It reports whether the animation
// finished during this call.
func (a *Animation) Animate(ts int64) bool {
	if a.state != AnimationRunning {
		return false
	}
	if !a.started {
		a.start = ts - a.paused
		a.paused = 0
		a.started = true
	}
	a.last = ts
	elapsed := time.Duration(ts-a.start) - a.params.Delay
	if elapsed < 0 {
		return false
	}
	d := a.params.Duration
	if d <= 0 {
		a.Finish()
		return true
	}
	iteration := int(elapsed / d)
	if a.params.RepeatCount > 0 && iteration >= a.params.RepeatCount {
		a.Finish()
		return true
	}
	a.write(elapsed%d, a.params.AutoReverse && iteration%2 == 1)
	return false
}

func (a *Animation) write(t time.Duration, reverse bool) {
	if reverse {
		t = a.params.Duration - t
	}
	secs := float32(t.Seconds())
	vals := make([]float64, len(a.tweens))
	for i, tw := range a.tweens {
		v, _ := tw.Set(secs)
		vals[i] = float64(v)
	}
	a.target.value.setComponents(a.target.kind(), vals)
}

// animationManager owns the animations of one node, in insertion order.
type animationManager struct {
	animations map[AnimationID]*Animation
	order      []AnimationID
}

func (m *animationManager) add(a *Animation) {
	if m.animations == nil {
		m.animations = make(map[AnimationID]*Animation)
	}
	if _, ok := m.animations[a.id]; ok {
		return
	}
	m.animations[a.id] = a
	m.order = append(m.order, a.id)
}

func (m *animationManager) get(id AnimationID) *Animation {
	return m.animations[id]
}

func (m *animationManager) remove(id AnimationID) *Animation {
	a, ok := m.animations[id]
	if !ok {
		return nil
	}
	delete(m.animations, id)
	m.order = slices.DeleteFunc(m.order, func(o AnimationID) bool { return o == id })
	return a
}

// animate advances every running animation. It returns whether any is still
// running and the animations that finished, which are removed.
func (m *animationManager) animate(ts int64) (running bool, finished []*Animation) {
	for _, id := range m.order {
		a := m.animations[id]
		if a.Animate(ts) || a.IsFinished() {
			finished = append(finished, a)
			continue
		}
		if a.IsRunning() {
			running = true
		}
	}
	for _, a := range finished {
		m.remove(a.id)
	}
	return running, finished
}

// filterByPid drops every animation owned by pid.
func (m *animationManager) filterByPid(pid int32) {
	for _, id := range slices.Clone(m.order) {
		if id.Pid == pid {
			m.remove(id)
		}
	}
}

// transitionRunning reports whether a transition animation is running.
func (m *animationManager) transitionRunning() bool {
	for _, a := range m.animations {
		if a.params.Transition && a.state == AnimationRunning {
			return true
		}
	}
	return false
}

// drain removes and returns every animation in insertion order.
func (m *animationManager) drain() []*Animation {
	out := make([]*Animation, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.animations[id])
	}
	m.animations = nil
	m.order = nil
	return out
}

func (m *animationManager) len() int { return len(m.order) }
