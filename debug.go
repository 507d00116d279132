package arbor

import (
	"time"
)

// frameStats holds per-frame timing and counts. Only logged when the
// context is in debug mode.
type frameStats struct {
	frame         uint64
	consumeTime   time.Duration
	commandTime   time.Duration
	animateTime   time.Duration
	renderTime    time.Duration
	commandCount  int
	bufferedCount int
	surfaceCount  int
	animating     int
}

func (s *frameStats) total() time.Duration {
	return s.consumeTime + s.commandTime + s.animateTime + s.renderTime
}

// debugLog writes the frame's stats at debug level.
func (l *MainLoop) debugLog(stats frameStats) {
	if !l.ctx.debug {
		return
	}
	Logger().Debug("frame",
		"frame", stats.frame,
		"consume", stats.consumeTime,
		"commands", stats.commandTime,
		"animate", stats.animateTime,
		"render", stats.renderTime,
		"total", stats.total(),
	)
	Logger().Debug("frame counts",
		"frame", stats.frame,
		"executed", stats.commandCount,
		"buffered", stats.bufferedCount,
		"surfaces", stats.surfaceCount,
		"animating", stats.animating,
	)
}

// debugMaxTreeDepth is the depth above which debugCheckTreeDepth warns.
const debugMaxTreeDepth = 32

func debugCheckTreeDepth(n *RenderNode) {
	depth := 0
	for p := n; p != nil; p = p.Parent() {
		depth++
	}
	if depth > debugMaxTreeDepth {
		Logger().Warn("tree depth over threshold", "depth", depth, "threshold", debugMaxTreeDepth, "node", n.id)
	}
}

// debugMaxChildCount is the child count above which debugCheckChildCount
// warns.
const debugMaxChildCount = 1000

func debugCheckChildCount(n *RenderNode) {
	if c := len(n.children); c > debugMaxChildCount {
		Logger().Warn("child count over threshold", "node", n.id, "children", c, "threshold", debugMaxChildCount)
	}
}

// countBufferedCommands returns how many commands wait for a surface
// buffer.
func countBufferedCommands(buckets map[NodeID][]timedCommand) int {
	n := 0
	for _, b := range buckets {
		n += len(b)
	}
	return n
}
