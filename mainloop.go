package arbor

import (
	"cmp"
	"context"
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ApplicationAgent receives acknowledgement transactions for one client
// process, such as animation-finished callbacks. It is called on the main
// loop goroutine and must not block.
type ApplicationAgent func(tx *Transaction)

// SurfaceConfig describes a surface created with CreateNodeAndSurface.
type SurfaceConfig struct {
	ID            NodeID
	Name          string
	Width, Height int
	// MaxBuffers is the buffer queue depth; 3 when zero.
	MaxBuffers int
}

// timedCommand is a command waiting for a surface buffer at least as new as
// ts.
type timedCommand struct {
	ts  uint64
	cmd Command
}

// MainLoop is the render service's single consumer. Producers hand it
// transactions from any goroutine; one goroutine applies them, animates,
// renders and hands layers to the hardware thread, once per vsync.
type MainLoop struct {
	ctx      *Context
	opts     loopOptions
	vsync    VSyncSource
	hw       *HardwareThread
	engine   *RenderEngine
	visitor  NodeVisitor
	detector *loopDetector

	tasks *taskQueue

	txMu    sync.Mutex
	pending []*Transaction

	vsyncMu      sync.Mutex
	vsyncPending bool

	uniMu       sync.Mutex
	uniCond     *sync.Cond
	uniFinished bool

	agentMu sync.Mutex
	agents  map[int32]ApplicationAgent

	occlusionMu sync.Mutex
	occlusion   occlusionState

	// Owned by the loop goroutine.
	untargeted       []Command
	buckets          map[NodeID][]timedCommand
	bufferTimestamps map[NodeID]uint64
	doAnimate        bool
	frame            uint64
	stats            frameStats
}

// NewMainLoop returns a loop driving ctx. Without WithVSync it ticks at
// 60 Hz while there is work; without WithHardwareThread frames are built
// and their buffers released without being shown.
func NewMainLoop(ctx *Context, opts ...LoopOption) *MainLoop {
	o := defaultLoopOptions()
	for _, opt := range opts {
		opt(&o)
	}
	l := &MainLoop{
		ctx:              ctx,
		opts:             o,
		vsync:            o.vsync,
		hw:               o.hardware,
		engine:           o.engine,
		tasks:            newTaskQueue(o.taskQueueSize),
		agents:           make(map[int32]ApplicationAgent),
		buckets:          make(map[NodeID][]timedCommand),
		bufferTimestamps: make(map[NodeID]uint64),
	}
	l.uniCond = sync.NewCond(&l.uniMu)
	if l.vsync == nil {
		l.vsync = NewTickerVSync(60)
	}
	if l.engine == nil {
		l.engine = NewRenderEngine()
	}
	if l.hw == nil {
		l.hw = NewHardwareThread(nil)
	}
	if o.mode == RenderModeUnified {
		l.visitor = NewUniVisitor(l.hw, l.engine, o.partialRender)
	} else {
		l.visitor = NewDividedVisitor(l.hw)
	}
	if o.timeoutThreshold > 0 {
		l.detector = newLoopDetector(o.timeoutThreshold, o.onTimeout)
	}
	ctx.requestVSync = l.RequestNextVSync
	return l
}

// Context returns the render context the loop owns.
func (l *MainLoop) Context() *Context { return l.ctx }

// Mode returns the render mode.
func (l *MainLoop) Mode() RenderMode { return l.opts.mode }

// Run drives the loop, the hardware thread and, when they need it, the
// vsync source and the time-out detector until ctx is done.
func (l *MainLoop) Run(ctx context.Context) error {
	Logger().Info("main loop started", "mode", l.opts.mode)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.runTasks(ctx) })
	g.Go(func() error { return l.hw.Run(ctx) })
	if r, ok := l.vsync.(interface{ Run(context.Context) error }); ok {
		g.Go(func() error { return r.Run(ctx) })
	}
	if l.detector != nil {
		g.Go(func() error { return l.detector.run(ctx) })
	}
	err := g.Wait()
	Logger().Info("main loop stopped", "frames", l.frame)
	return err
}

func (l *MainLoop) runTasks(ctx context.Context) error {
	l.tasks.run(ctx)
	l.NotifyUniRenderFinish()
	return nil
}

// PostTask queues fn to run on the loop goroutine. It returns ErrStopped
// once the loop has stopped. Tasks queued before the stop still run.
func (l *MainLoop) PostTask(fn func()) error {
	return l.tasks.post(fn)
}

// RequestNextVSync asks for one more frame. Requests made before the next
// vsync collapse into one. Safe for concurrent use.
func (l *MainLoop) RequestNextVSync() {
	l.vsyncMu.Lock()
	if l.vsyncPending {
		l.vsyncMu.Unlock()
		return
	}
	l.vsyncPending = true
	l.vsyncMu.Unlock()
	l.vsync.RequestNextVSync(l.onVSync)
}

func (l *MainLoop) onVSync(ts int64) {
	l.vsyncMu.Lock()
	l.vsyncPending = false
	l.vsyncMu.Unlock()
	if err := l.PostTask(func() { l.OnVsync(ts) }); err != nil {
		Logger().Debug("vsync after stop", "ts", ts)
	}
}

// RecvTransaction queues tx for the next frame. Safe for concurrent use.
func (l *MainLoop) RecvTransaction(tx *Transaction) {
	if tx == nil || tx.IsEmpty() {
		return
	}
	l.txMu.Lock()
	l.pending = append(l.pending, tx)
	l.txMu.Unlock()
	l.RequestNextVSync()
}

// RecvTransactionData decodes data and queues it. A malformed transaction
// is dropped whole.
func (l *MainLoop) RecvTransactionData(data []byte) error {
	tx, err := UnmarshalTransaction(data)
	if err != nil {
		Logger().Warn("dropping transaction", "err", err)
		return err
	}
	l.RecvTransaction(tx)
	return nil
}

// OnVsync builds one frame for vsync timestamp ts. It must run on the loop
// goroutine; Run arranges that for vsync signals.
func (l *MainLoop) OnVsync(ts int64) {
	if l.detector != nil {
		l.detector.begin()
		defer l.detector.end()
	}
	l.frame++
	l.ctx.currentTime = ts
	l.stats = frameStats{frame: l.frame}

	start := time.Now()
	l.consumeAndUpdateAllNodes()
	l.stats.consumeTime = time.Since(start)

	start = time.Now()
	l.processCommand()
	l.stats.commandTime = time.Since(start)

	start = time.Now()
	l.animate(ts)
	l.stats.animateTime = time.Since(start)

	start = time.Now()
	l.render()
	l.stats.renderTime = time.Since(start)

	l.releaseAllNodesBuffer()
	l.sendCommands()

	l.stats.bufferedCount = countBufferedCommands(l.buckets)
	l.stats.animating = l.ctx.AnimatingNodeCount()
	l.debugLog(l.stats)
}

// consumeAndUpdateAllNodes acquires the newest buffer of every surface and
// records the timestamps commands are released against.
func (l *MainLoop) consumeAndUpdateAllNodes() {
	clear(l.bufferTimestamps)
	l.ctx.nodeMap.TraverseSurfaceNodes(func(n *RenderNode) {
		l.stats.surfaceCount++
		consumed, err := n.ConsumeBuffer()
		if err != nil {
			Logger().Warn("consume buffer", "surface", n.SurfaceName(), "err", err)
		}
		if consumed {
			l.bufferTimestamps[n.id] = uint64(n.BufferTimestamp())
		}
		if n.AvailableBufferCount() > 0 {
			l.RequestNextVSync()
		}
	})
}

// processCommand moves queued transactions into the command buckets and
// runs what is due: untargeted commands always, and commands following a
// node once that node consumed a buffer at least as new as the
// transaction. A node that is gone, off the tree or without a new buffer
// this frame releases everything it holds.
func (l *MainLoop) processCommand() {
	l.txMu.Lock()
	pending := l.pending
	l.pending = nil
	l.txMu.Unlock()

	for _, tx := range pending {
		if tx.UniRender && l.opts.mode == RenderModeUnified {
			l.untargeted = append(l.untargeted, tx.Commands()...)
			continue
		}
		for _, e := range tx.entries {
			l.bufferCommand(e, tx.Timestamp)
		}
	}

	run := func(c Command) {
		c.Process(l.ctx)
		l.stats.commandCount++
	}
	untargeted := l.untargeted
	l.untargeted = nil
	for _, c := range untargeted {
		run(c)
	}

	ids := make([]NodeID, 0, len(l.buckets))
	for id := range l.buckets {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareNodeID)
	for _, id := range ids {
		cmds := l.buckets[id]
		n := l.ctx.nodeMap.GetRenderNode(id)
		ts, ok := l.bufferTimestamps[id]
		if n == nil || !n.IsOnTheTree() || !ok {
			for _, tc := range cmds {
				run(tc.cmd)
			}
			delete(l.buckets, id)
			continue
		}
		due, _ := slices.BinarySearchFunc(cmds, ts+1, func(tc timedCommand, t uint64) int {
			return cmp.Compare(tc.ts, t)
		})
		for _, tc := range cmds[:due] {
			run(tc.cmd)
		}
		if due == len(cmds) {
			delete(l.buckets, id)
		} else {
			l.buckets[id] = slices.Delete(cmds, 0, due)
		}
	}
}

// bufferCommand files one entry under the node whose buffer it waits for.
func (l *MainLoop) bufferCommand(e TransactionEntry, ts uint64) {
	target := e.Node
	switch {
	case target.IsZero() || e.Follow == FollowNone:
		l.untargeted = append(l.untargeted, e.Command)
		return
	case e.Follow == FollowToParent:
		n := l.ctx.nodeMap.GetRenderNode(target)
		if n == nil || n.Parent() == nil {
			l.untargeted = append(l.untargeted, e.Command)
			return
		}
		target = n.Parent().id
	}
	cmds := l.buckets[target]
	i, _ := slices.BinarySearchFunc(cmds, ts+1, func(tc timedCommand, t uint64) int {
		return cmp.Compare(tc.ts, t)
	})
	l.buckets[target] = slices.Insert(cmds, i, timedCommand{ts: ts, cmd: e.Command})
}

// animate advances every animating node. doAnimate reflects the set before
// advancing, so the frame on which the last animation ends still skips
// occlusion.
func (l *MainLoop) animate(ts int64) {
	l.doAnimate = l.ctx.AnimatingNodeCount() > 0
	if l.ctx.animate(ts) {
		l.RequestNextVSync()
	}
}

// render runs prepare, occlusion and process over the whole tree.
func (l *MainLoop) render() {
	root := l.ctx.globalRoot
	root.Prepare(l.visitor)
	l.calcOcclusion()
	root.Process(l.visitor)
	if l.opts.mode == RenderModeUnified {
		l.NotifyUniRenderFinish()
	}
}

// calcOcclusion updates surface visible regions. It is skipped while
// animations run, since the result would be stale next frame anyway.
func (l *MainLoop) calcOcclusion() {
	if l.doAnimate {
		return
	}
	l.occlusionMu.Lock()
	defer l.occlusionMu.Unlock()
	l.occlusion.calcOcclusion(l.ctx.globalRoot)
}

// AddOcclusionListener registers fn for visible-region changes. Safe for
// concurrent use.
func (l *MainLoop) AddOcclusionListener(fn OcclusionListener) {
	l.occlusionMu.Lock()
	l.occlusion.listeners = append(l.occlusion.listeners, fn)
	l.occlusionMu.Unlock()
}

// releaseAllNodesBuffer returns each surface's replaced buffer to its
// producer. Buffers handed to the display as layers are released by the
// hardware thread instead.
func (l *MainLoop) releaseAllNodesBuffer() {
	l.ctx.nodeMap.TraverseSurfaceNodes(func(n *RenderNode) {
		if err := n.ReleaseBuffer(); err != nil {
			Logger().Warn("release buffer", "surface", n.SurfaceName(), "err", err)
		}
	})
}

// sendCommands delivers queued acknowledgements to their clients.
func (l *MainLoop) sendCommands() {
	acks := l.ctx.takeAcks()
	if len(acks) == 0 {
		return
	}
	pids := make([]int32, 0, len(acks))
	for pid := range acks {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	for _, pid := range pids {
		l.agentMu.Lock()
		agent := l.agents[pid]
		l.agentMu.Unlock()
		if agent == nil {
			Logger().Debug("no agent for acknowledgement", "pid", pid, "commands", acks[pid].Len())
			continue
		}
		agent(acks[pid])
	}
}

// RegisterApplicationAgent sets the receiver of pid's acknowledgements.
// A nil agent unregisters.
func (l *MainLoop) RegisterApplicationAgent(pid int32, agent ApplicationAgent) {
	l.agentMu.Lock()
	defer l.agentMu.Unlock()
	if agent == nil {
		delete(l.agents, pid)
		return
	}
	l.agents[pid] = agent
}

// ClientDied removes everything pid owned: its nodes, its residual
// animations and its agent.
func (l *MainLoop) ClientDied(pid int32) error {
	l.RegisterApplicationAgent(pid, nil)
	return l.PostTask(func() {
		Logger().Info("cleaning up client", "pid", pid)
		l.ctx.nodeMap.FilterNodeByPid(pid)
		l.ctx.RequestNextVSync()
	})
}

// WaitUntilUniRenderFinished blocks until the next unified render pass
// completes, or the loop stops.
func (l *MainLoop) WaitUntilUniRenderFinished() {
	l.uniMu.Lock()
	for !l.uniFinished {
		l.uniCond.Wait()
	}
	l.uniFinished = false
	l.uniMu.Unlock()
}

// NotifyUniRenderFinish wakes WaitUntilUniRenderFinished.
func (l *MainLoop) NotifyUniRenderFinish() {
	l.uniMu.Lock()
	l.uniFinished = true
	l.uniMu.Unlock()
	l.uniCond.Broadcast()
}

// CreateNodeAndSurface creates a surface node fed by a new buffer queue and
// returns the queue for the producer. The node is registered on the loop
// goroutine; new buffers request a frame.
func (l *MainLoop) CreateNodeAndSurface(cfg SurfaceConfig) (*BufferQueue, error) {
	if cfg.MaxBuffers <= 0 {
		cfg.MaxBuffers = 3
	}
	q := NewBufferQueue(cfg.Name, cfg.Width, cfg.Height, cfg.MaxBuffers)
	q.SetOnAvailable(l.RequestNextVSync)
	err := l.PostTask(func() {
		n := NewSurfaceNode(cfg.ID, l.ctx, cfg.Name)
		n.SetConsumer(q)
		registerNew(l.ctx, n)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// call runs fn on the loop goroutine and waits for it.
func (l *MainLoop) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.PostTask(func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Capture renders node id into an image scaled by scaleX and scaleY.
// Security layers are left out.
func (l *MainLoop) Capture(ctx context.Context, id NodeID, scaleX, scaleY float64) (*image.RGBA, error) {
	var img *image.RGBA
	var cerr error
	err := l.call(ctx, func() {
		n := l.ctx.nodeMap.GetRenderNode(id)
		if n == nil {
			cerr = fmt.Errorf("capture %s: %w", id, ErrNodeNotFound)
			return
		}
		img, cerr = captureNode(l.engine, n, scaleX, scaleY)
	})
	if err != nil {
		return nil, err
	}
	return img, cerr
}

// TreeDump returns a text dump of the render tree, taken on the loop
// goroutine.
func (l *MainLoop) TreeDump(ctx context.Context) (string, error) {
	var out string
	err := l.call(ctx, func() { out = l.ctx.TreeDump() })
	return out, err
}
