package arbor

import "slices"

// Well-known surface names captured by the node map for privileged lookups.
const (
	EntryViewName        = "EntryView"
	WallpaperViewName    = "WallpaperView"
	ScreenLockWindowName = "ScreenLockWindow"
)

// NodeMap is the registry of every live render node, keyed by id. It always
// holds the animation-fallback node under FallbackNodeID.
type NodeMap struct {
	nodes    map[NodeID]*RenderNode
	surfaces map[NodeID]*RenderNode

	entryViewID        NodeID
	wallpaperViewID    NodeID
	screenLockWindowID NodeID
}

func newNodeMap(ctx *Context) *NodeMap {
	m := &NodeMap{
		nodes:    make(map[NodeID]*RenderNode),
		surfaces: make(map[NodeID]*RenderNode),
	}
	m.nodes[FallbackNodeID] = NewCanvasNode(FallbackNodeID, ctx)
	return m
}

// RegisterRenderNode inserts n. It reports false, changing nothing, when
// the id is already registered.
func (m *NodeMap) RegisterRenderNode(n *RenderNode) bool {
	if n == nil {
		return false
	}
	if _, ok := m.nodes[n.id]; ok {
		return false
	}
	m.nodes[n.id] = n
	if n.kind == NodeKindSurface {
		m.surfaces[n.id] = n
		switch n.surface.name {
		case EntryViewName:
			m.entryViewID = n.id
		case WallpaperViewName:
			m.wallpaperViewID = n.id
		case ScreenLockWindowName:
			m.screenLockWindowID = n.id
		}
	}
	return true
}

// UnregisterRenderNode removes id. The fallback node cannot be removed.
func (m *NodeMap) UnregisterRenderNode(id NodeID) {
	if id.IsZero() {
		return
	}
	delete(m.nodes, id)
	delete(m.surfaces, id)
}

// GetRenderNode returns the node with id, or nil. The fallback node is not
// returned; use GetAnimationFallbackNode.
func (m *NodeMap) GetRenderNode(id NodeID) *RenderNode {
	if id.IsZero() {
		return nil
	}
	return m.nodes[id]
}

// GetSurfaceNode returns the surface node with id, or nil.
func (m *NodeMap) GetSurfaceNode(id NodeID) *RenderNode {
	return m.surfaces[id]
}

// GetAnimationFallbackNode returns the node that adopts animations of
// destroyed nodes.
func (m *NodeMap) GetAnimationFallbackNode() *RenderNode {
	return m.nodes[FallbackNodeID]
}

// EntryViewNodeID returns the id of the surface named EntryView.
func (m *NodeMap) EntryViewNodeID() NodeID { return m.entryViewID }

// WallpaperViewNodeID returns the id of the surface named WallpaperView.
func (m *NodeMap) WallpaperViewNodeID() NodeID { return m.wallpaperViewID }

// ScreenLockWindowNodeID returns the id of the surface named
// ScreenLockWindow.
func (m *NodeMap) ScreenLockWindowNodeID() NodeID { return m.screenLockWindowID }

// FilterNodeByPid removes every node owned by pid. Removed nodes leave the
// tree without handing their animations to the fallback node, and the
// fallback node drops the animations pid parked there earlier. Pid 0 is
// never filtered.
func (m *NodeMap) FilterNodeByPid(pid int32) {
	if pid == 0 {
		return
	}
	Logger().Info("removing nodes of process", "pid", pid)
	for _, id := range m.sortedIDs(m.nodes) {
		if id.Pid != pid {
			continue
		}
		n := m.nodes[id]
		n.SetFallbackAnimationOnDestroy(false)
		n.Destroy()
		delete(m.nodes, id)
	}
	for id := range m.surfaces {
		if id.Pid == pid {
			delete(m.surfaces, id)
		}
	}
	if fb := m.GetAnimationFallbackNode(); fb != nil {
		fb.FilterAnimationByPid(pid)
	}
}

// TraverseNodes calls fn for every node, the fallback node included, in id
// order.
func (m *NodeMap) TraverseNodes(fn func(*RenderNode)) {
	for _, id := range m.sortedIDs(m.nodes) {
		fn(m.nodes[id])
	}
}

// TraverseSurfaceNodes calls fn for every surface node in id order.
func (m *NodeMap) TraverseSurfaceNodes(fn func(*RenderNode)) {
	for _, id := range m.sortedIDs(m.surfaces) {
		fn(m.surfaces[id])
	}
}

// Len returns the number of registered nodes, the fallback node included.
func (m *NodeMap) Len() int { return len(m.nodes) }

func (m *NodeMap) sortedIDs(src map[NodeID]*RenderNode) []NodeID {
	ids := make([]NodeID, 0, len(src))
	for id := range src {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareNodeID)
	return ids
}
