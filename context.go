package arbor

import (
	"cmp"
	"slices"
	"strings"
	"weak"
)

// Context is the render-side state shared by commands, visitors and the main
// loop: the node map, the global root and the set of animating nodes. It is
// owned by the main loop goroutine.
type Context struct {
	nodeMap    *NodeMap
	globalRoot *RenderNode

	animatingNodes map[NodeID]weak.Pointer[RenderNode]

	// acks holds reply commands per client pid until the loop sends them.
	acks map[int32][]Command

	requestVSync func()
	currentTime  int64
	debug        bool
}

// NewContext returns a context with an empty tree. The global root is on
// the tree from the start; display nodes are added below it.
func NewContext(opts ...ContextOption) *Context {
	o := defaultContextOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Context{
		animatingNodes: make(map[NodeID]weak.Pointer[RenderNode]),
		acks:           make(map[int32][]Command),
		debug:          o.debug,
	}
	c.nodeMap = newNodeMap(c)
	c.globalRoot = NewRenderNode(FallbackNodeID, c)
	c.globalRoot.isOnTheTree = true
	return c
}

// NodeMap returns the node registry.
func (c *Context) NodeMap() *NodeMap { return c.nodeMap }

// GlobalRoot returns the root of the whole render tree.
func (c *Context) GlobalRoot() *RenderNode { return c.globalRoot }

// Debug reports whether debug diagnostics are enabled.
func (c *Context) Debug() bool { return c.debug }

// CurrentTimestamp returns the vsync timestamp of the frame being built.
func (c *Context) CurrentTimestamp() int64 { return c.currentTime }

// RegisterAnimatingRenderNode adds n to the set the loop animates every
// frame and asks for a vsync so the animation starts.
func (c *Context) RegisterAnimatingRenderNode(n *RenderNode) {
	if n == nil {
		return
	}
	c.animatingNodes[n.id] = weak.Make(n)
	c.RequestNextVSync()
}

// UnregisterAnimatingRenderNode removes id from the animating set.
func (c *Context) UnregisterAnimatingRenderNode(id NodeID) {
	delete(c.animatingNodes, id)
}

// AnimatingNodeCount returns the size of the animating set, expired entries
// included.
func (c *Context) AnimatingNodeCount() int { return len(c.animatingNodes) }

// animate advances every animating node to ts. Expired nodes and nodes with
// no running animation leave the set. Finished animations are acknowledged
// to their owning client. It reports whether any node keeps animating.
func (c *Context) animate(ts int64) bool {
	ids := make([]NodeID, 0, len(c.animatingNodes))
	for id := range c.animatingNodes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareNodeID)
	for _, id := range ids {
		n := c.animatingNodes[id].Value()
		if n == nil {
			Logger().Debug("removing expired animating node", "node", id)
			delete(c.animatingNodes, id)
			continue
		}
		running, finished := n.Animate(ts)
		for _, a := range finished {
			c.AddAck(a.id.Pid, &AnimationFinishCommand{Target: n.id, Animation: a.id})
		}
		if !running {
			delete(c.animatingNodes, id)
		}
	}
	return len(c.animatingNodes) > 0
}

// AddAck queues cmd for delivery to the client process pid.
func (c *Context) AddAck(pid int32, cmd Command) {
	c.acks[pid] = append(c.acks[pid], cmd)
}

// takeAcks returns and clears the queued replies, one transaction per pid.
func (c *Context) takeAcks() map[int32]*Transaction {
	if len(c.acks) == 0 {
		return nil
	}
	out := make(map[int32]*Transaction, len(c.acks))
	for pid, cmds := range c.acks {
		tx := &Transaction{Pid: pid, Timestamp: uint64(c.currentTime)}
		for _, cmd := range cmds {
			tx.AddCommand(cmd, NodeID{}, FollowNone)
		}
		out[pid] = tx
	}
	clear(c.acks)
	return out
}

// RequestNextVSync asks the loop for another frame. No-op until a loop is
// attached.
func (c *Context) RequestNextVSync() {
	if c.requestVSync != nil {
		c.requestVSync()
	}
}

// dirtyManagerFor returns the damage accumulator of the nearest surface or
// display at or above n.
func (c *Context) dirtyManagerFor(n *RenderNode) *DirtyRegionManager {
	for p := n; p != nil; p = p.Parent() {
		if dm := p.DirtyManager(); dm != nil {
			return dm
		}
	}
	return nil
}

// TreeDump returns a text dump of the whole tree.
func (c *Context) TreeDump() string {
	var b strings.Builder
	b.WriteString("-- RenderTreeDump:\n")
	c.globalRoot.DumpTree(0, &b)
	if fb := c.nodeMap.GetAnimationFallbackNode(); fb != nil && fb.AnimationCount() > 0 {
		b.WriteString("-- FallbackAnimations:\n")
		fb.DumpTree(0, &b)
	}
	return b.String()
}

func compareNodeID(a, b NodeID) int {
	if c := cmp.Compare(a.Pid, b.Pid); c != 0 {
		return c
	}
	return cmp.Compare(a.Local, b.Local)
}
