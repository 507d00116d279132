package arbor

import (
	"fmt"
	"time"
)

// CommandType groups commands by the node kind they act on.
type CommandType uint16

const (
	CommandBaseNode CommandType = iota
	CommandNode
	CommandCanvasNode
	CommandSurfaceNode
	CommandProxyNode
	CommandRootNode
	CommandDisplayNode
	CommandAnimation
)

// Command is one mutation of the render tree, carried in a Transaction and
// executed on the main loop goroutine.
type Command interface {
	Type() CommandType
	SubType() uint16
	// Process applies the command. Missing nodes are skipped.
	Process(ctx *Context)
	marshal(p *Parcel)
}

type commandKey struct {
	typ CommandType
	sub uint16
}

type commandDecoder func(p *Parcel) (Command, error)

// commandTable is the closed set of commands the codec accepts.
var commandTable = map[commandKey]commandDecoder{
	{CommandBaseNode, 0}: decodeBaseNodeDestroy,
	{CommandBaseNode, 1}: decodeBaseNodeAddChild,
	{CommandBaseNode, 2}: decodeBaseNodeMoveChild,
	{CommandBaseNode, 3}: decodeBaseNodeRemoveChild,
	{CommandBaseNode, 4}: decodeBaseNodeAddCrossParentChild,
	{CommandBaseNode, 5}: decodeBaseNodeRemoveCrossParentChild,
	{CommandBaseNode, 6}: decodeBaseNodeRemoveFromTree,
	{CommandBaseNode, 7}: decodeBaseNodeClearChildren,
	{CommandBaseNode, 8}: decodeBaseNodeCreate,

	{CommandNode, 0}: decodeAddModifier,
	{CommandNode, 1}: decodeRemoveModifier,
	{CommandNode, 2}: decodeUpdateModifier,

	{CommandCanvasNode, 0}: decodeCanvasNodeCreate,
	{CommandCanvasNode, 1}: decodeCanvasNodeUpdateRecording,
	{CommandCanvasNode, 2}: decodeCanvasNodeClearRecording,

	{CommandSurfaceNode, 0}: decodeSurfaceNodeCreate,
	{CommandSurfaceNode, 1}: decodeSurfaceNodeSetContextMatrix,
	{CommandSurfaceNode, 2}: decodeSurfaceNodeSetContextAlpha,
	{CommandSurfaceNode, 3}: decodeSurfaceNodeSetContextClip,
	{CommandSurfaceNode, 4}: decodeSurfaceNodeSetSecurityLayer,
	{CommandSurfaceNode, 5}: decodeSurfaceNodeSetColorSpace,
	{CommandSurfaceNode, 6}: decodeSurfaceNodeSetHardwareEnabled,

	{CommandProxyNode, 0}: decodeProxyNodeCreate,
	{CommandProxyNode, 1}: decodeProxyNodeResetContext,

	{CommandRootNode, 0}: decodeRootNodeCreate,
	{CommandRootNode, 1}: decodeRootNodeAttachSurface,
	{CommandRootNode, 2}: decodeRootNodeAttachToUniSurface,
	{CommandRootNode, 3}: decodeRootNodeSetEnableRender,
	{CommandRootNode, 4}: decodeRootNodeUpdateSuggestedBufferSize,

	{CommandDisplayNode, 0}: decodeDisplayNodeCreate,
	{CommandDisplayNode, 1}: decodeDisplayNodeSetScreenID,
	{CommandDisplayNode, 2}: decodeDisplayNodeSetOffset,
	{CommandDisplayNode, 3}: decodeDisplayNodeSetSecurityDisplay,
	{CommandDisplayNode, 4}: decodeDisplayNodeSetMirror,

	{CommandAnimation, 0}: decodeAnimationCreate,
	{CommandAnimation, 1}: decodeAnimationStart,
	{CommandAnimation, 2}: decodeAnimationPause,
	{CommandAnimation, 3}: decodeAnimationFinish,
	{CommandAnimation, 4}: decodeAnimationRemove,
	{CommandAnimation, 5}: decodeAnimationFinishCommand,
}

func decodeCommand(p *Parcel, typ CommandType, sub uint16) (Command, error) {
	dec, ok := commandTable[commandKey{typ, sub}]
	if !ok {
		return nil, fmt.Errorf("type %d subtype %d: %w", typ, sub, ErrUnknownCommand)
	}
	cmd, err := dec(p)
	if err != nil {
		return nil, err
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func writeNodeID(p *Parcel, id NodeID) {
	p.WriteUint64(id.Pack())
}

func readNodeID(p *Parcel) NodeID {
	return UnpackNodeID(p.ReadUint64())
}

func writePropID(p *Parcel, id PropertyID) {
	p.WriteUint64(id.Pack())
}

func readPropID(p *Parcel) PropertyID {
	return UnpackPropertyID(p.ReadUint64())
}

func readModifierType(p *Parcel) (ModifierType, error) {
	t := ModifierType(p.ReadUint16())
	if p.Err() == nil && !t.valid() {
		return t, fmt.Errorf("modifier type %d: %w", t, ErrMalformedTransaction)
	}
	return t, p.Err()
}

// addChecked adds child to parent unless that would create a cycle, which a
// misbehaving client could otherwise use to crash the loop.
func addChecked(parent, child *RenderNode, index int, cross bool) {
	if isAncestor(child, parent) {
		Logger().Warn("rejecting child that would create a cycle", "parent", parent.id, "child", child.id)
		return
	}
	if cross {
		parent.AddCrossParentChild(child, index)
	} else {
		parent.AddChild(child, index)
	}
}

func registerNew(ctx *Context, n *RenderNode) bool {
	if !ctx.nodeMap.RegisterRenderNode(n) {
		Logger().Warn("node already exists", "node", n.id, "kind", n.kind)
		return false
	}
	return true
}

// --- Base node ---

// BaseNodeCreate creates a base node.
type BaseNodeCreate struct{ ID NodeID }

func (c *BaseNodeCreate) Type() CommandType    { return CommandBaseNode }
func (c *BaseNodeCreate) SubType() uint16      { return 8 }
func (c *BaseNodeCreate) marshal(p *Parcel)    { writeNodeID(p, c.ID) }
func (c *BaseNodeCreate) Process(ctx *Context) { registerNew(ctx, NewRenderNode(c.ID, ctx)) }

func decodeBaseNodeCreate(p *Parcel) (Command, error) {
	return &BaseNodeCreate{ID: readNodeID(p)}, nil
}

// BaseNodeDestroy removes a node from the tree and the node map.
type BaseNodeDestroy struct{ ID NodeID }

func (c *BaseNodeDestroy) Type() CommandType { return CommandBaseNode }
func (c *BaseNodeDestroy) SubType() uint16   { return 0 }
func (c *BaseNodeDestroy) marshal(p *Parcel) { writeNodeID(p, c.ID) }

func (c *BaseNodeDestroy) Process(ctx *Context) {
	n := ctx.nodeMap.GetRenderNode(c.ID)
	if n == nil {
		return
	}
	n.Destroy()
	ctx.nodeMap.UnregisterRenderNode(c.ID)
}

func decodeBaseNodeDestroy(p *Parcel) (Command, error) {
	return &BaseNodeDestroy{ID: readNodeID(p)}, nil
}

// BaseNodeAddChild inserts Child under ID at Index; a negative index
// appends.
type BaseNodeAddChild struct {
	ID, Child NodeID
	Index     int32
}

func (c *BaseNodeAddChild) Type() CommandType { return CommandBaseNode }
func (c *BaseNodeAddChild) SubType() uint16   { return 1 }

func (c *BaseNodeAddChild) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writeNodeID(p, c.Child)
	p.WriteInt32(c.Index)
}

func (c *BaseNodeAddChild) Process(ctx *Context) {
	n, child := ctx.nodeMap.GetRenderNode(c.ID), ctx.nodeMap.GetRenderNode(c.Child)
	if n == nil || child == nil {
		return
	}
	addChecked(n, child, int(c.Index), false)
}

func decodeBaseNodeAddChild(p *Parcel) (Command, error) {
	return &BaseNodeAddChild{ID: readNodeID(p), Child: readNodeID(p), Index: p.ReadInt32()}, nil
}

// BaseNodeMoveChild moves Child to Index among ID's children.
type BaseNodeMoveChild struct {
	ID, Child NodeID
	Index     int32
}

func (c *BaseNodeMoveChild) Type() CommandType { return CommandBaseNode }
func (c *BaseNodeMoveChild) SubType() uint16   { return 2 }

func (c *BaseNodeMoveChild) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writeNodeID(p, c.Child)
	p.WriteInt32(c.Index)
}

func (c *BaseNodeMoveChild) Process(ctx *Context) {
	n, child := ctx.nodeMap.GetRenderNode(c.ID), ctx.nodeMap.GetRenderNode(c.Child)
	if n == nil || child == nil {
		return
	}
	n.MoveChild(child, int(c.Index))
}

func decodeBaseNodeMoveChild(p *Parcel) (Command, error) {
	return &BaseNodeMoveChild{ID: readNodeID(p), Child: readNodeID(p), Index: p.ReadInt32()}, nil
}

// BaseNodeRemoveChild removes Child from ID, letting a running transition
// finish.
type BaseNodeRemoveChild struct{ ID, Child NodeID }

func (c *BaseNodeRemoveChild) Type() CommandType { return CommandBaseNode }
func (c *BaseNodeRemoveChild) SubType() uint16   { return 3 }

func (c *BaseNodeRemoveChild) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writeNodeID(p, c.Child)
}

func (c *BaseNodeRemoveChild) Process(ctx *Context) {
	n, child := ctx.nodeMap.GetRenderNode(c.ID), ctx.nodeMap.GetRenderNode(c.Child)
	if n == nil || child == nil {
		return
	}
	n.RemoveChild(child, false)
}

func decodeBaseNodeRemoveChild(p *Parcel) (Command, error) {
	return &BaseNodeRemoveChild{ID: readNodeID(p), Child: readNodeID(p)}, nil
}

// BaseNodeAddCrossParentChild shows Child under ID without detaching it
// from its parent.
type BaseNodeAddCrossParentChild struct {
	ID, Child NodeID
	Index     int32
}

func (c *BaseNodeAddCrossParentChild) Type() CommandType { return CommandBaseNode }
func (c *BaseNodeAddCrossParentChild) SubType() uint16   { return 4 }

func (c *BaseNodeAddCrossParentChild) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writeNodeID(p, c.Child)
	p.WriteInt32(c.Index)
}

func (c *BaseNodeAddCrossParentChild) Process(ctx *Context) {
	n, child := ctx.nodeMap.GetRenderNode(c.ID), ctx.nodeMap.GetRenderNode(c.Child)
	if n == nil || child == nil {
		return
	}
	addChecked(n, child, int(c.Index), true)
}

func decodeBaseNodeAddCrossParentChild(p *Parcel) (Command, error) {
	return &BaseNodeAddCrossParentChild{ID: readNodeID(p), Child: readNodeID(p), Index: p.ReadInt32()}, nil
}

// BaseNodeRemoveCrossParentChild removes a cross-parent Child from ID and
// makes NewParent its parent.
type BaseNodeRemoveCrossParentChild struct{ ID, Child, NewParent NodeID }

func (c *BaseNodeRemoveCrossParentChild) Type() CommandType { return CommandBaseNode }
func (c *BaseNodeRemoveCrossParentChild) SubType() uint16   { return 5 }

func (c *BaseNodeRemoveCrossParentChild) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writeNodeID(p, c.Child)
	writeNodeID(p, c.NewParent)
}

func (c *BaseNodeRemoveCrossParentChild) Process(ctx *Context) {
	n, child := ctx.nodeMap.GetRenderNode(c.ID), ctx.nodeMap.GetRenderNode(c.Child)
	if n == nil || child == nil {
		return
	}
	n.RemoveCrossParentChild(child, ctx.nodeMap.GetRenderNode(c.NewParent))
}

func decodeBaseNodeRemoveCrossParentChild(p *Parcel) (Command, error) {
	return &BaseNodeRemoveCrossParentChild{ID: readNodeID(p), Child: readNodeID(p), NewParent: readNodeID(p)}, nil
}

// BaseNodeRemoveFromTree detaches ID from its parent.
type BaseNodeRemoveFromTree struct{ ID NodeID }

func (c *BaseNodeRemoveFromTree) Type() CommandType { return CommandBaseNode }
func (c *BaseNodeRemoveFromTree) SubType() uint16   { return 6 }
func (c *BaseNodeRemoveFromTree) marshal(p *Parcel) { writeNodeID(p, c.ID) }

func (c *BaseNodeRemoveFromTree) Process(ctx *Context) {
	if n := ctx.nodeMap.GetRenderNode(c.ID); n != nil {
		n.RemoveFromTree(false)
	}
}

func decodeBaseNodeRemoveFromTree(p *Parcel) (Command, error) {
	return &BaseNodeRemoveFromTree{ID: readNodeID(p)}, nil
}

// BaseNodeClearChildren detaches every child of ID.
type BaseNodeClearChildren struct{ ID NodeID }

func (c *BaseNodeClearChildren) Type() CommandType { return CommandBaseNode }
func (c *BaseNodeClearChildren) SubType() uint16   { return 7 }
func (c *BaseNodeClearChildren) marshal(p *Parcel) { writeNodeID(p, c.ID) }

func (c *BaseNodeClearChildren) Process(ctx *Context) {
	if n := ctx.nodeMap.GetRenderNode(c.ID); n != nil {
		n.ClearChildren()
	}
}

func decodeBaseNodeClearChildren(p *Parcel) (Command, error) {
	return &BaseNodeClearChildren{ID: readNodeID(p)}, nil
}

// --- Modifiers ---

// AddModifier attaches Modifier to node ID.
type AddModifier struct {
	ID       NodeID
	Modifier *Modifier
}

func (c *AddModifier) Type() CommandType { return CommandNode }
func (c *AddModifier) SubType() uint16   { return 0 }

func (c *AddModifier) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writePropID(p, c.Modifier.id)
	p.WriteUint16(uint16(c.Modifier.typ))
	c.Modifier.value.marshal(p, c.Modifier.kind())
}

func (c *AddModifier) Process(ctx *Context) {
	if n := ctx.nodeMap.GetRenderNode(c.ID); n != nil {
		n.AddModifier(c.Modifier)
	}
}

func decodeAddModifier(p *Parcel) (Command, error) {
	id, prop := readNodeID(p), readPropID(p)
	t, err := readModifierType(p)
	if err != nil {
		return nil, err
	}
	v, err := unmarshalValue(p, modifierTable[t].kind)
	if err != nil {
		return nil, err
	}
	return &AddModifier{ID: id, Modifier: NewModifier(prop, t, v)}, nil
}

// RemoveModifier removes modifier Prop from node ID.
type RemoveModifier struct {
	ID   NodeID
	Prop PropertyID
}

func (c *RemoveModifier) Type() CommandType { return CommandNode }
func (c *RemoveModifier) SubType() uint16   { return 1 }

func (c *RemoveModifier) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writePropID(p, c.Prop)
}

func (c *RemoveModifier) Process(ctx *Context) {
	if n := ctx.nodeMap.GetRenderNode(c.ID); n != nil {
		n.RemoveModifier(c.Prop)
	}
}

func decodeRemoveModifier(p *Parcel) (Command, error) {
	return &RemoveModifier{ID: readNodeID(p), Prop: readPropID(p)}, nil
}

// UpdateModifier sets a new value on modifier Prop of node ID. ModType
// selects how Value is encoded and must match the live modifier.
type UpdateModifier struct {
	ID      NodeID
	Prop    PropertyID
	ModType ModifierType
	Value   PropertyValue
}

func (c *UpdateModifier) Type() CommandType { return CommandNode }
func (c *UpdateModifier) SubType() uint16   { return 2 }

func (c *UpdateModifier) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writePropID(p, c.Prop)
	p.WriteUint16(uint16(c.ModType))
	c.Value.marshal(p, modifierTable[c.ModType].kind)
}

func (c *UpdateModifier) Process(ctx *Context) {
	n := ctx.nodeMap.GetRenderNode(c.ID)
	if n == nil {
		return
	}
	if m := n.GetModifier(c.Prop); m != nil && m.typ != c.ModType {
		Logger().Warn("modifier type mismatch", "node", c.ID, "modifier", c.Prop, "have", m.typ, "got", c.ModType)
		return
	}
	n.UpdateModifier(c.Prop, c.Value)
}

func decodeUpdateModifier(p *Parcel) (Command, error) {
	id, prop := readNodeID(p), readPropID(p)
	t, err := readModifierType(p)
	if err != nil {
		return nil, err
	}
	v, err := unmarshalValue(p, modifierTable[t].kind)
	if err != nil {
		return nil, err
	}
	return &UpdateModifier{ID: id, Prop: prop, ModType: t, Value: v}, nil
}

// --- Canvas node ---

// CanvasNodeCreate creates a canvas node, or a canvas drawing node when
// Drawing is set.
type CanvasNodeCreate struct {
	ID      NodeID
	Drawing bool
}

func (c *CanvasNodeCreate) Type() CommandType { return CommandCanvasNode }
func (c *CanvasNodeCreate) SubType() uint16   { return 0 }

func (c *CanvasNodeCreate) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteBool(c.Drawing)
}

func (c *CanvasNodeCreate) Process(ctx *Context) {
	if c.Drawing {
		registerNew(ctx, NewCanvasDrawingNode(c.ID, ctx))
		return
	}
	registerNew(ctx, NewCanvasNode(c.ID, ctx))
}

func decodeCanvasNodeCreate(p *Parcel) (Command, error) {
	return &CanvasNodeCreate{ID: readNodeID(p), Drawing: p.ReadBool()}, nil
}

// CanvasNodeUpdateRecording sets the draw list of one paint phase, adding
// the modifier Prop on first use.
type CanvasNodeUpdateRecording struct {
	ID    NodeID
	Prop  PropertyID
	Phase ModifierType
	Cmds  *DrawCmdList
}

func (c *CanvasNodeUpdateRecording) Type() CommandType { return CommandCanvasNode }
func (c *CanvasNodeUpdateRecording) SubType() uint16   { return 1 }

func (c *CanvasNodeUpdateRecording) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writePropID(p, c.Prop)
	p.WriteUint16(uint16(c.Phase))
	v := DrawCmdsValue(c.Cmds)
	v.marshal(p, kindDrawCmds)
}

func (c *CanvasNodeUpdateRecording) Process(ctx *Context) {
	n := ctx.nodeMap.GetRenderNode(c.ID)
	if n == nil {
		return
	}
	if !n.UpdateModifier(c.Prop, DrawCmdsValue(c.Cmds)) {
		n.AddModifier(NewModifier(c.Prop, c.Phase, DrawCmdsValue(c.Cmds)))
	}
}

func decodeCanvasNodeUpdateRecording(p *Parcel) (Command, error) {
	id, prop := readNodeID(p), readPropID(p)
	t, err := readModifierType(p)
	if err != nil {
		return nil, err
	}
	if !t.IsDrawCmd() {
		return nil, fmt.Errorf("recording phase %s: %w", t, ErrMalformedTransaction)
	}
	v, err := unmarshalValue(p, kindDrawCmds)
	if err != nil {
		return nil, err
	}
	return &CanvasNodeUpdateRecording{ID: id, Prop: prop, Phase: t, Cmds: v.Cmds}, nil
}

// CanvasNodeClearRecording removes every draw list of node ID.
type CanvasNodeClearRecording struct{ ID NodeID }

func (c *CanvasNodeClearRecording) Type() CommandType { return CommandCanvasNode }
func (c *CanvasNodeClearRecording) SubType() uint16   { return 2 }
func (c *CanvasNodeClearRecording) marshal(p *Parcel) { writeNodeID(p, c.ID) }

func (c *CanvasNodeClearRecording) Process(ctx *Context) {
	n := ctx.nodeMap.GetRenderNode(c.ID)
	if n == nil {
		return
	}
	for t := ModifierBackgroundStyle; t < modifierTypeCount; t++ {
		for _, m := range append([]*Modifier(nil), n.DrawCmdModifiers(t)...) {
			n.RemoveModifier(m.id)
		}
	}
}

func decodeCanvasNodeClearRecording(p *Parcel) (Command, error) {
	return &CanvasNodeClearRecording{ID: readNodeID(p)}, nil
}

// --- Surface node ---

// SurfaceNodeCreate creates a surface node without a buffer queue. Use
// MainLoop.CreateNodeAndSurface for a surface fed by a producer.
type SurfaceNodeCreate struct {
	ID   NodeID
	Name string
}

func (c *SurfaceNodeCreate) Type() CommandType { return CommandSurfaceNode }
func (c *SurfaceNodeCreate) SubType() uint16   { return 0 }

func (c *SurfaceNodeCreate) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteString(c.Name)
}

func (c *SurfaceNodeCreate) Process(ctx *Context) {
	registerNew(ctx, NewSurfaceNode(c.ID, ctx, c.Name))
}

func decodeSurfaceNodeCreate(p *Parcel) (Command, error) {
	return &SurfaceNodeCreate{ID: readNodeID(p), Name: p.ReadString()}, nil
}

func surfaceNode(ctx *Context, id NodeID) *RenderNode {
	n := ctx.nodeMap.GetRenderNode(id)
	if n == nil || n.surface == nil {
		return nil
	}
	return n
}

// SurfaceNodeSetContextMatrix sets or, with a nil Matrix, clears the
// transform a proxy imposes on the surface.
type SurfaceNodeSetContextMatrix struct {
	ID     NodeID
	Matrix *Matrix
}

func (c *SurfaceNodeSetContextMatrix) Type() CommandType { return CommandSurfaceNode }
func (c *SurfaceNodeSetContextMatrix) SubType() uint16   { return 1 }

func (c *SurfaceNodeSetContextMatrix) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteBool(c.Matrix != nil)
	if c.Matrix != nil {
		p.WriteMatrix(*c.Matrix)
	}
}

func (c *SurfaceNodeSetContextMatrix) Process(ctx *Context) {
	if n := surfaceNode(ctx, c.ID); n != nil {
		n.SetContextMatrix(c.Matrix)
	}
}

func decodeSurfaceNodeSetContextMatrix(p *Parcel) (Command, error) {
	c := &SurfaceNodeSetContextMatrix{ID: readNodeID(p)}
	if p.ReadBool() {
		m := p.ReadMatrix()
		c.Matrix = &m
	}
	return c, nil
}

// SurfaceNodeSetContextAlpha sets the alpha a proxy imposes on the surface.
type SurfaceNodeSetContextAlpha struct {
	ID    NodeID
	Alpha float64
}

func (c *SurfaceNodeSetContextAlpha) Type() CommandType { return CommandSurfaceNode }
func (c *SurfaceNodeSetContextAlpha) SubType() uint16   { return 2 }

func (c *SurfaceNodeSetContextAlpha) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteFloat64(c.Alpha)
}

func (c *SurfaceNodeSetContextAlpha) Process(ctx *Context) {
	if n := surfaceNode(ctx, c.ID); n != nil {
		n.SetContextAlpha(c.Alpha)
	}
}

func decodeSurfaceNodeSetContextAlpha(p *Parcel) (Command, error) {
	return &SurfaceNodeSetContextAlpha{ID: readNodeID(p), Alpha: p.ReadFloat64()}, nil
}

// SurfaceNodeSetContextClip sets or clears the clip a proxy imposes on the
// surface.
type SurfaceNodeSetContextClip struct {
	ID   NodeID
	Clip *Rect
}

func (c *SurfaceNodeSetContextClip) Type() CommandType { return CommandSurfaceNode }
func (c *SurfaceNodeSetContextClip) SubType() uint16   { return 3 }

func (c *SurfaceNodeSetContextClip) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteBool(c.Clip != nil)
	if c.Clip != nil {
		p.WriteRect(*c.Clip)
	}
}

func (c *SurfaceNodeSetContextClip) Process(ctx *Context) {
	if n := surfaceNode(ctx, c.ID); n != nil {
		n.SetContextClip(c.Clip)
	}
}

func decodeSurfaceNodeSetContextClip(p *Parcel) (Command, error) {
	c := &SurfaceNodeSetContextClip{ID: readNodeID(p)}
	if p.ReadBool() {
		r := p.ReadRect()
		c.Clip = &r
	}
	return c, nil
}

// SurfaceNodeSetSecurityLayer hides the surface from captures.
type SurfaceNodeSetSecurityLayer struct {
	ID   NodeID
	Flag bool
}

func (c *SurfaceNodeSetSecurityLayer) Type() CommandType { return CommandSurfaceNode }
func (c *SurfaceNodeSetSecurityLayer) SubType() uint16   { return 4 }

func (c *SurfaceNodeSetSecurityLayer) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteBool(c.Flag)
}

func (c *SurfaceNodeSetSecurityLayer) Process(ctx *Context) {
	if n := surfaceNode(ctx, c.ID); n != nil {
		n.SetSecurityLayer(c.Flag)
	}
}

func decodeSurfaceNodeSetSecurityLayer(p *Parcel) (Command, error) {
	return &SurfaceNodeSetSecurityLayer{ID: readNodeID(p), Flag: p.ReadBool()}, nil
}

// SurfaceNodeSetColorSpace sets the color space of the surface's buffers.
type SurfaceNodeSetColorSpace struct {
	ID         NodeID
	ColorSpace ColorSpace
}

func (c *SurfaceNodeSetColorSpace) Type() CommandType { return CommandSurfaceNode }
func (c *SurfaceNodeSetColorSpace) SubType() uint16   { return 5 }

func (c *SurfaceNodeSetColorSpace) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteUint8(uint8(c.ColorSpace))
}

func (c *SurfaceNodeSetColorSpace) Process(ctx *Context) {
	if n := surfaceNode(ctx, c.ID); n != nil {
		n.SetColorSpace(c.ColorSpace)
	}
}

func decodeSurfaceNodeSetColorSpace(p *Parcel) (Command, error) {
	return &SurfaceNodeSetColorSpace{ID: readNodeID(p), ColorSpace: ColorSpace(p.ReadUint8())}, nil
}

// SurfaceNodeSetHardwareEnabled lets unified composition hand the surface
// to the display as its own layer.
type SurfaceNodeSetHardwareEnabled struct {
	ID   NodeID
	Flag bool
}

func (c *SurfaceNodeSetHardwareEnabled) Type() CommandType { return CommandSurfaceNode }
func (c *SurfaceNodeSetHardwareEnabled) SubType() uint16   { return 6 }

func (c *SurfaceNodeSetHardwareEnabled) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteBool(c.Flag)
}

func (c *SurfaceNodeSetHardwareEnabled) Process(ctx *Context) {
	if n := surfaceNode(ctx, c.ID); n != nil {
		n.SetHardwareEnabled(c.Flag)
	}
}

func decodeSurfaceNodeSetHardwareEnabled(p *Parcel) (Command, error) {
	return &SurfaceNodeSetHardwareEnabled{ID: readNodeID(p), Flag: p.ReadBool()}, nil
}

// --- Proxy node ---

// ProxyNodeCreate creates a proxy forwarding to Target.
type ProxyNodeCreate struct{ ID, Target NodeID }

func (c *ProxyNodeCreate) Type() CommandType { return CommandProxyNode }
func (c *ProxyNodeCreate) SubType() uint16   { return 0 }

func (c *ProxyNodeCreate) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writeNodeID(p, c.Target)
}

func (c *ProxyNodeCreate) Process(ctx *Context) {
	registerNew(ctx, NewProxyNode(c.ID, ctx, c.Target))
}

func decodeProxyNodeCreate(p *Parcel) (Command, error) {
	return &ProxyNodeCreate{ID: readNodeID(p), Target: readNodeID(p)}, nil
}

// ProxyNodeResetContext clears what the proxy forwarded to its target.
type ProxyNodeResetContext struct{ ID NodeID }

func (c *ProxyNodeResetContext) Type() CommandType { return CommandProxyNode }
func (c *ProxyNodeResetContext) SubType() uint16   { return 1 }
func (c *ProxyNodeResetContext) marshal(p *Parcel) { writeNodeID(p, c.ID) }

func (c *ProxyNodeResetContext) Process(ctx *Context) {
	if n := ctx.nodeMap.GetRenderNode(c.ID); n != nil {
		n.ResetContext()
	}
}

func decodeProxyNodeResetContext(p *Parcel) (Command, error) {
	return &ProxyNodeResetContext{ID: readNodeID(p)}, nil
}

// --- Root node ---

// RootNodeCreate creates an application root node.
type RootNodeCreate struct{ ID NodeID }

func (c *RootNodeCreate) Type() CommandType    { return CommandRootNode }
func (c *RootNodeCreate) SubType() uint16      { return 0 }
func (c *RootNodeCreate) marshal(p *Parcel)    { writeNodeID(p, c.ID) }
func (c *RootNodeCreate) Process(ctx *Context) { registerNew(ctx, NewRootNode(c.ID, ctx)) }

func decodeRootNodeCreate(p *Parcel) (Command, error) {
	return &RootNodeCreate{ID: readNodeID(p)}, nil
}

func rootNode(ctx *Context, id NodeID) *RenderNode {
	n := ctx.nodeMap.GetRenderNode(id)
	if n == nil || n.root == nil {
		return nil
	}
	return n
}

// RootNodeAttachSurface records the surface an application root draws
// into in divided mode.
type RootNodeAttachSurface struct{ ID, Surface NodeID }

func (c *RootNodeAttachSurface) Type() CommandType { return CommandRootNode }
func (c *RootNodeAttachSurface) SubType() uint16   { return 1 }

func (c *RootNodeAttachSurface) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writeNodeID(p, c.Surface)
}

func (c *RootNodeAttachSurface) Process(ctx *Context) {
	if n := rootNode(ctx, c.ID); n != nil {
		n.AttachSurface(c.Surface)
	}
}

func decodeRootNodeAttachSurface(p *Parcel) (Command, error) {
	return &RootNodeAttachSurface{ID: readNodeID(p), Surface: readNodeID(p)}, nil
}

// RootNodeAttachToUniSurface makes the root a child of its surface so
// unified composition draws it.
type RootNodeAttachToUniSurface struct{ ID, Surface NodeID }

func (c *RootNodeAttachToUniSurface) Type() CommandType { return CommandRootNode }
func (c *RootNodeAttachToUniSurface) SubType() uint16   { return 2 }

func (c *RootNodeAttachToUniSurface) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	writeNodeID(p, c.Surface)
}

func (c *RootNodeAttachToUniSurface) Process(ctx *Context) {
	n, parent := rootNode(ctx, c.ID), surfaceNode(ctx, c.Surface)
	if n == nil || parent == nil {
		return
	}
	n.AttachSurface(c.Surface)
	addChecked(parent, n, -1, false)
}

func decodeRootNodeAttachToUniSurface(p *Parcel) (Command, error) {
	return &RootNodeAttachToUniSurface{ID: readNodeID(p), Surface: readNodeID(p)}, nil
}

// RootNodeSetEnableRender turns painting of the root on or off.
type RootNodeSetEnableRender struct {
	ID   NodeID
	Flag bool
}

func (c *RootNodeSetEnableRender) Type() CommandType { return CommandRootNode }
func (c *RootNodeSetEnableRender) SubType() uint16   { return 3 }

func (c *RootNodeSetEnableRender) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteBool(c.Flag)
}

func (c *RootNodeSetEnableRender) Process(ctx *Context) {
	if n := rootNode(ctx, c.ID); n != nil {
		n.SetEnableRender(c.Flag)
	}
}

func decodeRootNodeSetEnableRender(p *Parcel) (Command, error) {
	return &RootNodeSetEnableRender{ID: readNodeID(p), Flag: p.ReadBool()}, nil
}

// RootNodeUpdateSuggestedBufferSize records the size the application
// should render at.
type RootNodeUpdateSuggestedBufferSize struct {
	ID            NodeID
	Width, Height int32
}

func (c *RootNodeUpdateSuggestedBufferSize) Type() CommandType { return CommandRootNode }
func (c *RootNodeUpdateSuggestedBufferSize) SubType() uint16   { return 4 }

func (c *RootNodeUpdateSuggestedBufferSize) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteInt32(c.Width)
	p.WriteInt32(c.Height)
}

func (c *RootNodeUpdateSuggestedBufferSize) Process(ctx *Context) {
	if n := rootNode(ctx, c.ID); n != nil {
		n.UpdateSuggestedBufferSize(int(c.Width), int(c.Height))
	}
}

func decodeRootNodeUpdateSuggestedBufferSize(p *Parcel) (Command, error) {
	return &RootNodeUpdateSuggestedBufferSize{ID: readNodeID(p), Width: p.ReadInt32(), Height: p.ReadInt32()}, nil
}

// --- Display node ---

// DisplayNodeCreate creates a display node and adds it under the global
// root.
type DisplayNodeCreate struct {
	ID     NodeID
	Config DisplayNodeConfig
}

func (c *DisplayNodeCreate) Type() CommandType { return CommandDisplayNode }
func (c *DisplayNodeCreate) SubType() uint16   { return 0 }

func (c *DisplayNodeCreate) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteUint64(c.Config.ScreenID)
	p.WriteBool(c.Config.IsMirror)
	writeNodeID(p, c.Config.MirrorSource)
	p.WriteInt32(int32(c.Config.Width))
	p.WriteInt32(int32(c.Config.Height))
}

func (c *DisplayNodeCreate) Process(ctx *Context) {
	n := NewDisplayNode(c.ID, ctx, c.Config)
	if registerNew(ctx, n) {
		ctx.globalRoot.AddChild(n, -1)
	}
}

func decodeDisplayNodeCreate(p *Parcel) (Command, error) {
	c := &DisplayNodeCreate{ID: readNodeID(p)}
	c.Config.ScreenID = p.ReadUint64()
	c.Config.IsMirror = p.ReadBool()
	c.Config.MirrorSource = readNodeID(p)
	c.Config.Width = int(p.ReadInt32())
	c.Config.Height = int(p.ReadInt32())
	return c, nil
}

func displayNode(ctx *Context, id NodeID) *RenderNode {
	n := ctx.nodeMap.GetRenderNode(id)
	if n == nil || n.display == nil {
		return nil
	}
	return n
}

// DisplayNodeSetScreenID moves a display node to another screen.
type DisplayNodeSetScreenID struct {
	ID       NodeID
	ScreenID uint64
}

func (c *DisplayNodeSetScreenID) Type() CommandType { return CommandDisplayNode }
func (c *DisplayNodeSetScreenID) SubType() uint16   { return 1 }

func (c *DisplayNodeSetScreenID) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteUint64(c.ScreenID)
}

func (c *DisplayNodeSetScreenID) Process(ctx *Context) {
	if n := displayNode(ctx, c.ID); n != nil {
		n.SetScreenID(c.ScreenID)
	}
}

func decodeDisplayNodeSetScreenID(p *Parcel) (Command, error) {
	return &DisplayNodeSetScreenID{ID: readNodeID(p), ScreenID: p.ReadUint64()}, nil
}

// DisplayNodeSetOffset shifts everything on a display.
type DisplayNodeSetOffset struct {
	ID   NodeID
	X, Y int32
}

func (c *DisplayNodeSetOffset) Type() CommandType { return CommandDisplayNode }
func (c *DisplayNodeSetOffset) SubType() uint16   { return 2 }

func (c *DisplayNodeSetOffset) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteInt32(c.X)
	p.WriteInt32(c.Y)
}

func (c *DisplayNodeSetOffset) Process(ctx *Context) {
	if n := displayNode(ctx, c.ID); n != nil {
		n.SetDisplayOffset(int(c.X), int(c.Y))
	}
}

func decodeDisplayNodeSetOffset(p *Parcel) (Command, error) {
	return &DisplayNodeSetOffset{ID: readNodeID(p), X: p.ReadInt32(), Y: p.ReadInt32()}, nil
}

// DisplayNodeSetSecurityDisplay marks a display allowed to show security
// layers, such as the built-in screen.
type DisplayNodeSetSecurityDisplay struct {
	ID   NodeID
	Flag bool
}

func (c *DisplayNodeSetSecurityDisplay) Type() CommandType { return CommandDisplayNode }
func (c *DisplayNodeSetSecurityDisplay) SubType() uint16   { return 3 }

func (c *DisplayNodeSetSecurityDisplay) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteBool(c.Flag)
}

func (c *DisplayNodeSetSecurityDisplay) Process(ctx *Context) {
	if n := displayNode(ctx, c.ID); n != nil {
		n.SetSecurityDisplay(c.Flag)
	}
}

func decodeDisplayNodeSetSecurityDisplay(p *Parcel) (Command, error) {
	return &DisplayNodeSetSecurityDisplay{ID: readNodeID(p), Flag: p.ReadBool()}, nil
}

// DisplayNodeSetMirror makes a display copy Source, or stop copying.
type DisplayNodeSetMirror struct {
	ID       NodeID
	IsMirror bool
	Source   NodeID
}

func (c *DisplayNodeSetMirror) Type() CommandType { return CommandDisplayNode }
func (c *DisplayNodeSetMirror) SubType() uint16   { return 4 }

func (c *DisplayNodeSetMirror) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteBool(c.IsMirror)
	writeNodeID(p, c.Source)
}

func (c *DisplayNodeSetMirror) Process(ctx *Context) {
	if n := displayNode(ctx, c.ID); n != nil {
		n.SetMirror(c.IsMirror, c.Source)
	}
}

func decodeDisplayNodeSetMirror(p *Parcel) (Command, error) {
	return &DisplayNodeSetMirror{ID: readNodeID(p), IsMirror: p.ReadBool(), Source: readNodeID(p)}, nil
}

// --- Animation ---

// AnimationCreate attaches an animation of modifier Prop to node ID and
// starts it.
type AnimationCreate struct {
	ID      NodeID
	Anim    AnimationID
	Prop    PropertyID
	ModType ModifierType
	Params  AnimationParams
}

func (c *AnimationCreate) Type() CommandType { return CommandAnimation }
func (c *AnimationCreate) SubType() uint16   { return 0 }

func (c *AnimationCreate) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteUint64(c.Anim.Pack())
	writePropID(p, c.Prop)
	p.WriteUint16(uint16(c.ModType))
	k := modifierTable[c.ModType].kind
	c.Params.From.marshal(p, k)
	c.Params.To.marshal(p, k)
	p.WriteUint64(uint64(c.Params.Duration))
	p.WriteUint64(uint64(c.Params.Delay))
	p.WriteUint8(uint8(c.Params.Curve))
	p.WriteInt32(int32(c.Params.RepeatCount))
	p.WriteBool(c.Params.AutoReverse)
	p.WriteBool(c.Params.Transition)
}

func (c *AnimationCreate) Process(ctx *Context) {
	n := ctx.nodeMap.GetRenderNode(c.ID)
	if n == nil {
		return
	}
	m := n.GetModifier(c.Prop)
	if m == nil {
		Logger().Warn("animation target missing", "node", c.ID, "modifier", c.Prop)
		return
	}
	a, ok := NewAnimation(c.Anim, m, c.Params)
	if !ok {
		Logger().Warn("modifier not animatable", "node", c.ID, "modifier", c.Prop, "type", m.typ)
		return
	}
	n.AddAnimation(a)
	a.Start()
}

func decodeAnimationCreate(p *Parcel) (Command, error) {
	c := &AnimationCreate{ID: readNodeID(p), Anim: UnpackAnimationID(p.ReadUint64()), Prop: readPropID(p)}
	t, err := readModifierType(p)
	if err != nil {
		return nil, err
	}
	c.ModType = t
	k := modifierTable[t].kind
	if c.Params.From, err = unmarshalValue(p, k); err != nil {
		return nil, err
	}
	if c.Params.To, err = unmarshalValue(p, k); err != nil {
		return nil, err
	}
	c.Params.Duration = time.Duration(p.ReadUint64())
	c.Params.Delay = time.Duration(p.ReadUint64())
	c.Params.Curve = Curve(p.ReadUint8())
	c.Params.RepeatCount = int(p.ReadInt32())
	c.Params.AutoReverse = p.ReadBool()
	c.Params.Transition = p.ReadBool()
	if c.Params.Curve >= curveCount {
		return nil, fmt.Errorf("animation curve %d: %w", c.Params.Curve, ErrMalformedTransaction)
	}
	return c, nil
}

// animationControl is the shared shape of the start, pause, finish and
// remove commands.
type animationControl struct {
	ID   NodeID
	Anim AnimationID
}

func (c *animationControl) marshal(p *Parcel) {
	writeNodeID(p, c.ID)
	p.WriteUint64(c.Anim.Pack())
}

func (c *animationControl) animation(ctx *Context) (*RenderNode, *Animation) {
	n := ctx.nodeMap.GetRenderNode(c.ID)
	if n == nil {
		return nil, nil
	}
	return n, n.GetAnimation(c.Anim)
}

func readAnimationControl(p *Parcel) animationControl {
	return animationControl{ID: readNodeID(p), Anim: UnpackAnimationID(p.ReadUint64())}
}

// AnimationStart starts or resumes an animation.
type AnimationStart struct{ animationControl }

func (c *AnimationStart) Type() CommandType { return CommandAnimation }
func (c *AnimationStart) SubType() uint16   { return 1 }

func (c *AnimationStart) Process(ctx *Context) {
	if n, a := c.animation(ctx); a != nil {
		a.Start()
		ctx.RegisterAnimatingRenderNode(n)
	}
}

func decodeAnimationStart(p *Parcel) (Command, error) {
	return &AnimationStart{readAnimationControl(p)}, nil
}

// NewAnimationStart returns a command starting animation anim on node id.
func NewAnimationStart(id NodeID, anim AnimationID) *AnimationStart {
	return &AnimationStart{animationControl{ID: id, Anim: anim}}
}

// AnimationPause pauses a running animation.
type AnimationPause struct{ animationControl }

func (c *AnimationPause) Type() CommandType { return CommandAnimation }
func (c *AnimationPause) SubType() uint16   { return 2 }

func (c *AnimationPause) Process(ctx *Context) {
	if _, a := c.animation(ctx); a != nil {
		a.Pause()
	}
}

func decodeAnimationPause(p *Parcel) (Command, error) {
	return &AnimationPause{readAnimationControl(p)}, nil
}

// NewAnimationPause returns a command pausing animation anim on node id.
func NewAnimationPause(id NodeID, anim AnimationID) *AnimationPause {
	return &AnimationPause{animationControl{ID: id, Anim: anim}}
}

// AnimationFinish jumps an animation to its end value.
type AnimationFinish struct{ animationControl }

func (c *AnimationFinish) Type() CommandType { return CommandAnimation }
func (c *AnimationFinish) SubType() uint16   { return 3 }

func (c *AnimationFinish) Process(ctx *Context) {
	if n, a := c.animation(ctx); a != nil {
		a.Finish()
		a.target.markOwnerDirty()
		ctx.RegisterAnimatingRenderNode(n)
	}
}

func decodeAnimationFinish(p *Parcel) (Command, error) {
	return &AnimationFinish{readAnimationControl(p)}, nil
}

// NewAnimationFinish returns a command finishing animation anim on node id.
func NewAnimationFinish(id NodeID, anim AnimationID) *AnimationFinish {
	return &AnimationFinish{animationControl{ID: id, Anim: anim}}
}

// AnimationRemove detaches an animation, leaving the value where it is.
type AnimationRemove struct{ animationControl }

func (c *AnimationRemove) Type() CommandType { return CommandAnimation }
func (c *AnimationRemove) SubType() uint16   { return 4 }

func (c *AnimationRemove) Process(ctx *Context) {
	if n := ctx.nodeMap.GetRenderNode(c.ID); n != nil {
		n.RemoveAnimation(c.Anim)
	}
}

func decodeAnimationRemove(p *Parcel) (Command, error) {
	return &AnimationRemove{readAnimationControl(p)}, nil
}

// NewAnimationRemove returns a command removing animation anim from node
// id.
func NewAnimationRemove(id NodeID, anim AnimationID) *AnimationRemove {
	return &AnimationRemove{animationControl{ID: id, Anim: anim}}
}

// AnimationFinishCommand tells the owning client that an animation ended.
// The loop sends it back in an acknowledgement transaction.
type AnimationFinishCommand struct {
	Target    NodeID
	Animation AnimationID
}

func (c *AnimationFinishCommand) Type() CommandType { return CommandAnimation }
func (c *AnimationFinishCommand) SubType() uint16   { return 5 }

func (c *AnimationFinishCommand) marshal(p *Parcel) {
	writeNodeID(p, c.Target)
	p.WriteUint64(c.Animation.Pack())
}

// Process is a no-op on the render side; clients handle the callback.
func (c *AnimationFinishCommand) Process(*Context) {}

func decodeAnimationFinishCommand(p *Parcel) (Command, error) {
	return &AnimationFinishCommand{Target: readNodeID(p), Animation: UnpackAnimationID(p.ReadUint64())}, nil
}
