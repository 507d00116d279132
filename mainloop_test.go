package arbor

import (
	"slices"
	"testing"
	"time"
)

// recordCmd appends its name to log when processed.
type recordCmd struct {
	name string
	log  *[]string
}

func (c *recordCmd) Type() CommandType { return CommandBaseNode }
func (c *recordCmd) SubType() uint16   { return 0 }
func (c *recordCmd) Process(*Context)  { *c.log = append(*c.log, c.name) }
func (c *recordCmd) marshal(*Parcel)   {}

var testDisplayID = MakeNodeID(0, 1)

func newTestLoop(opts ...LoopOption) *MainLoop {
	l := NewMainLoop(NewContext(), append([]LoopOption{WithVSync(NewManualVSync())}, opts...)...)
	(&DisplayNodeCreate{ID: testDisplayID, Config: DisplayNodeConfig{Width: 64, Height: 64}}).Process(l.Context())
	return l
}

// addTestSurface registers a surface under parent and returns its queue.
func addTestSurface(t *testing.T, l *MainLoop, id, parent NodeID) *BufferQueue {
	t.Helper()
	q := NewBufferQueue(id.String(), 4, 4, 3)
	n := NewSurfaceNode(id, l.Context(), id.String())
	n.SetConsumer(q)
	if !registerNew(l.Context(), n) {
		t.Fatalf("surface %v already registered", id)
	}
	p := l.Context().NodeMap().GetRenderNode(parent)
	if p == nil {
		t.Fatalf("parent %v missing", parent)
	}
	p.AddChild(n, -1)
	return q
}

func flushAt(t *testing.T, q *BufferQueue, ts int64) {
	t.Helper()
	b, _, err := q.RequestBuffer()
	if err != nil {
		t.Fatalf("RequestBuffer: %v", err)
	}
	if err := q.FlushBuffer(b, SignaledFence(), ts, RectI{}); err != nil {
		t.Fatalf("FlushBuffer: %v", err)
	}
}

func sendRecord(l *MainLoop, log *[]string, name string, ts uint64, node NodeID, follow FollowType) {
	tx := NewTransaction(node.Pid, ts)
	tx.AddCommand(&recordCmd{name: name, log: log}, node, follow)
	l.RecvTransaction(tx)
}

// --- Command buffering ---

func TestFollowToSelfWaitsForBuffer(t *testing.T) {
	l := newTestLoop()
	s := MakeNodeID(1, 1)
	q := addTestSurface(t, l, s, testDisplayID)
	var log []string

	flushAt(t, q, 50)
	sendRecord(l, &log, "geometry", 100, s, FollowToSelf)
	sendRecord(l, &log, "now", 100, s, FollowNone)
	l.OnVsync(1)
	if !slices.Equal(log, []string{"now"}) {
		t.Fatalf("frame 1 ran %v, want [now]", log)
	}

	flushAt(t, q, 150)
	l.OnVsync(2)
	if !slices.Equal(log, []string{"now", "geometry"}) {
		t.Errorf("frame 2 ran %v, want [now geometry]", log)
	}
	if n := countBufferedCommands(l.buckets); n != 0 {
		t.Errorf("buffered = %d, want 0", n)
	}
}

func TestHeldCommandsRunWithoutNewBuffer(t *testing.T) {
	l := newTestLoop()
	s := MakeNodeID(1, 1)
	q := addTestSurface(t, l, s, testDisplayID)
	var log []string

	flushAt(t, q, 50)
	sendRecord(l, &log, "a", 100, s, FollowToSelf)
	l.OnVsync(1)
	if len(log) != 0 {
		t.Fatalf("frame 1 ran %v, want nothing", log)
	}
	l.OnVsync(2)
	if !slices.Equal(log, []string{"a"}) {
		t.Errorf("frame 2 ran %v, want [a]", log)
	}
}

func TestBufferedCommandsRunInTimestampOrder(t *testing.T) {
	l := newTestLoop()
	s := MakeNodeID(1, 1)
	q := addTestSurface(t, l, s, testDisplayID)
	var log []string

	flushAt(t, q, 50)
	sendRecord(l, &log, "first", 100, s, FollowToSelf)
	sendRecord(l, &log, "second", 100, s, FollowToSelf)
	sendRecord(l, &log, "early", 80, s, FollowToSelf)
	sendRecord(l, &log, "late", 300, s, FollowToSelf)
	l.OnVsync(1)
	if len(log) != 0 {
		t.Fatalf("frame 1 ran %v, want nothing", log)
	}

	flushAt(t, q, 200)
	l.OnVsync(2)
	if want := []string{"early", "first", "second"}; !slices.Equal(log, want) {
		t.Errorf("frame 2 ran %v, want %v", log, want)
	}
	if got := len(l.buckets[s]); got != 1 {
		t.Errorf("still buffered = %d, want 1", got)
	}
}

func TestRemovedNodeFlushesHeldCommands(t *testing.T) {
	l := newTestLoop()
	s := MakeNodeID(1, 1)
	q := addTestSurface(t, l, s, testDisplayID)
	var log []string

	flushAt(t, q, 50)
	sendRecord(l, &log, "a", 100, s, FollowToSelf)
	l.OnVsync(1)

	l.Context().NodeMap().GetRenderNode(s).RemoveFromTree(true)
	flushAt(t, q, 60)
	l.OnVsync(2)
	if !slices.Equal(log, []string{"a"}) {
		t.Errorf("ran %v, want [a]", log)
	}
}

func TestReAddedNodeKeepsHeldCommandsOrdered(t *testing.T) {
	l := newTestLoop()
	s := MakeNodeID(1, 1)
	q := addTestSurface(t, l, s, testDisplayID)
	display := l.Context().NodeMap().GetRenderNode(testDisplayID)
	var log []string

	flushAt(t, q, 50)
	sendRecord(l, &log, "a", 100, s, FollowToSelf)
	l.OnVsync(1)

	// Removed and re-added before the next frame, with an older buffer
	// queued: the command must not run early.
	n := l.Context().NodeMap().GetRenderNode(s)
	n.RemoveFromTree(true)
	display.AddChild(n, -1)
	flushAt(t, q, 60)
	l.OnVsync(2)
	if len(log) != 0 {
		t.Fatalf("frame 2 ran %v, want nothing", log)
	}
	if !n.IsOnTheTree() {
		t.Fatal("re-added node not on the tree")
	}

	flushAt(t, q, 150)
	l.OnVsync(3)
	if !slices.Equal(log, []string{"a"}) {
		t.Errorf("frame 3 ran %v, want [a]", log)
	}
}

func TestReAddedNodeWithoutBufferFlushes(t *testing.T) {
	l := newTestLoop()
	s := MakeNodeID(1, 1)
	q := addTestSurface(t, l, s, testDisplayID)
	display := l.Context().NodeMap().GetRenderNode(testDisplayID)
	var log []string

	flushAt(t, q, 50)
	sendRecord(l, &log, "a", 100, s, FollowToSelf)
	l.OnVsync(1)

	n := l.Context().NodeMap().GetRenderNode(s)
	n.RemoveFromTree(true)
	display.AddChild(n, -1)
	l.OnVsync(2)
	if !slices.Equal(log, []string{"a"}) {
		t.Errorf("ran %v, want [a]", log)
	}
}

func TestMissingNodeRunsImmediately(t *testing.T) {
	l := newTestLoop()
	var log []string
	sendRecord(l, &log, "a", 100, MakeNodeID(3, 9), FollowToSelf)
	l.OnVsync(1)
	if !slices.Equal(log, []string{"a"}) {
		t.Errorf("ran %v, want [a]", log)
	}
}

func TestFollowToParentWaitsForParentSurface(t *testing.T) {
	l := newTestLoop()
	s := MakeNodeID(1, 1)
	child := MakeNodeID(1, 2)
	q := addTestSurface(t, l, s, testDisplayID)
	(&BaseNodeCreate{ID: child}).Process(l.Context())
	(&BaseNodeAddChild{ID: s, Child: child, Index: -1}).Process(l.Context())
	var log []string

	flushAt(t, q, 50)
	sendRecord(l, &log, "child", 100, child, FollowToParent)
	l.OnVsync(1)
	if len(log) != 0 {
		t.Fatalf("frame 1 ran %v, want nothing", log)
	}
	if got := len(l.buckets[s]); got != 1 {
		t.Fatalf("buffered under parent = %d, want 1", got)
	}

	flushAt(t, q, 100)
	l.OnVsync(2)
	if !slices.Equal(log, []string{"child"}) {
		t.Errorf("frame 2 ran %v, want [child]", log)
	}
}

func TestFollowToParentWithoutParentRunsImmediately(t *testing.T) {
	l := newTestLoop()
	orphan := MakeNodeID(1, 5)
	(&BaseNodeCreate{ID: orphan}).Process(l.Context())
	var log []string

	sendRecord(l, &log, "orphan", 100, orphan, FollowToParent)
	l.OnVsync(1)
	if !slices.Equal(log, []string{"orphan"}) {
		t.Errorf("ran %v, want [orphan]", log)
	}
}

func TestUniRenderTransactionBypassesBuffering(t *testing.T) {
	l := newTestLoop(WithRenderMode(RenderModeUnified))
	s := MakeNodeID(1, 1)
	q := addTestSurface(t, l, s, testDisplayID)
	var log []string

	flushAt(t, q, 50)
	tx := NewTransaction(1, 100)
	tx.UniRender = true
	tx.AddCommand(&recordCmd{name: "uni", log: &log}, s, FollowToSelf)
	l.RecvTransaction(tx)
	l.OnVsync(1)
	if !slices.Equal(log, []string{"uni"}) {
		t.Errorf("ran %v, want [uni]", log)
	}
}

// --- Animations and acknowledgements ---

func TestAnimationFinishAcknowledged(t *testing.T) {
	l := newTestLoop()
	node := MakeNodeID(1, 1)
	prop := PropertyID{Pid: 1, Local: 1}
	anim := AnimationID{Pid: 1, Local: 4}

	var acks []*Transaction
	l.RegisterApplicationAgent(1, func(tx *Transaction) { acks = append(acks, tx) })

	tx := NewTransaction(1, 0)
	tx.AddCommand(&BaseNodeCreate{ID: node}, node, FollowNone)
	tx.AddCommand(&BaseNodeAddChild{ID: testDisplayID, Child: node, Index: -1}, testDisplayID, FollowNone)
	tx.AddCommand(&AddModifier{ID: node, Modifier: NewModifier(prop, ModifierAlpha, FloatValue(1))}, node, FollowNone)
	tx.AddCommand(&AnimationCreate{
		ID:      node,
		Anim:    anim,
		Prop:    prop,
		ModType: ModifierAlpha,
		Params:  AnimationParams{From: FloatValue(0), To: FloatValue(1), Duration: 10 * time.Millisecond},
	}, node, FollowNone)
	l.RecvTransaction(tx)

	t0 := int64(time.Second)
	l.OnVsync(t0)
	if len(acks) != 0 {
		t.Fatalf("acks after first frame = %d, want 0", len(acks))
	}
	if l.Context().AnimatingNodeCount() != 1 {
		t.Fatalf("AnimatingNodeCount = %d, want 1", l.Context().AnimatingNodeCount())
	}

	l.OnVsync(t0 + int64(20*time.Millisecond))
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	cmds := acks[0].Commands()
	if len(cmds) != 1 {
		t.Fatalf("ack commands = %d, want 1", len(cmds))
	}
	fin, ok := cmds[0].(*AnimationFinishCommand)
	if !ok {
		t.Fatalf("ack command = %T, want *AnimationFinishCommand", cmds[0])
	}
	if fin.Target != node || fin.Animation != anim {
		t.Errorf("ack = (%v, %v), want (%v, %v)", fin.Target, fin.Animation, node, anim)
	}
	if l.Context().AnimatingNodeCount() != 0 {
		t.Errorf("AnimatingNodeCount = %d, want 0", l.Context().AnimatingNodeCount())
	}
}

func TestAckWithoutAgentDropped(t *testing.T) {
	l := newTestLoop()
	l.Context().AddAck(7, &AnimationFinishCommand{})
	l.OnVsync(1)
	if acks := l.Context().takeAcks(); acks != nil {
		t.Errorf("acks left = %v, want none", acks)
	}
}

// --- Client lifetime ---

func TestClientDiedRemovesNodes(t *testing.T) {
	l := newTestLoop()
	mine, other := MakeNodeID(1, 1), MakeNodeID(2, 1)
	(&BaseNodeCreate{ID: mine}).Process(l.Context())
	(&BaseNodeCreate{ID: other}).Process(l.Context())
	l.RegisterApplicationAgent(1, func(*Transaction) {})

	if err := l.ClientDied(1); err != nil {
		t.Fatalf("ClientDied: %v", err)
	}
	(<-l.tasks.ch)()

	if l.Context().NodeMap().GetRenderNode(mine) != nil {
		t.Error("pid 1 node still registered")
	}
	if l.Context().NodeMap().GetRenderNode(other) == nil {
		t.Error("pid 2 node removed")
	}
	l.agentMu.Lock()
	_, ok := l.agents[1]
	l.agentMu.Unlock()
	if ok {
		t.Error("agent for pid 1 still registered")
	}
}

// --- VSync ---

func TestRequestNextVSyncCollapses(t *testing.T) {
	vs := NewManualVSync()
	l := NewMainLoop(NewContext(), WithVSync(vs))
	l.RequestNextVSync()
	l.RequestNextVSync()
	if !vs.Pending() {
		t.Fatal("no vsync armed")
	}
	if !vs.Fire(10) {
		t.Fatal("Fire ran nothing")
	}
	if vs.Fire(11) {
		t.Error("second Fire ran a callback")
	}
	if got := l.tasks.len(); got != 1 {
		t.Errorf("queued frames = %d, want 1", got)
	}
}

func TestPostTaskAfterStop(t *testing.T) {
	l := NewMainLoop(NewContext(), WithVSync(NewManualVSync()))
	l.tasks.stop()
	if err := l.PostTask(func() {}); err != ErrStopped {
		t.Errorf("PostTask err = %v, want ErrStopped", err)
	}
}

// --- Time-out detector ---

func TestLoopDetectorReportsOnce(t *testing.T) {
	var reports []time.Duration
	d := newLoopDetector(10*time.Millisecond, func(e time.Duration) { reports = append(reports, e) })

	if d.check(time.Now()) {
		t.Error("check reported with no iteration running")
	}
	d.begin()
	start := time.Now()
	if d.check(start) {
		t.Error("check reported before the threshold")
	}
	if !d.check(start.Add(time.Second)) {
		t.Error("check did not report a stalled iteration")
	}
	if d.check(start.Add(2 * time.Second)) {
		t.Error("check reported the same iteration twice")
	}
	d.end()
	if len(reports) != 1 {
		t.Errorf("reports = %d, want 1", len(reports))
	}
}
