package arbor

import "fmt"

// NodeID identifies a render node. Pid is the owning client process; Local
// is unique within that process. The zero NodeID is the permanent
// animation-fallback node.
type NodeID struct {
	Pid   int32
	Local uint32
}

// FallbackNodeID is the id of the animation-fallback node.
var FallbackNodeID = NodeID{}

// MakeNodeID returns the id for local id local owned by pid.
func MakeNodeID(pid int32, local uint32) NodeID {
	return NodeID{Pid: pid, Local: local}
}

// IsZero reports whether id is the fallback node id.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// Pack encodes the id into the 64-bit wire form: pid in the high 32 bits.
func (id NodeID) Pack() uint64 {
	return packPair(id.Pid, id.Local)
}

// UnpackNodeID decodes the 64-bit wire form.
func UnpackNodeID(v uint64) NodeID {
	pid, local := unpackPair(v)
	return NodeID{Pid: pid, Local: local}
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d:%d", id.Pid, id.Local)
}

// PropertyID identifies a modifier. The owning process is embedded so that a
// dying client's modifiers can be removed in one pass.
type PropertyID struct {
	Pid   int32
	Local uint32
}

// Pack encodes the id into the 64-bit wire form.
func (id PropertyID) Pack() uint64 {
	return packPair(id.Pid, id.Local)
}

// UnpackPropertyID decodes the 64-bit wire form.
func UnpackPropertyID(v uint64) PropertyID {
	pid, local := unpackPair(v)
	return PropertyID{Pid: pid, Local: local}
}

func (id PropertyID) less(other PropertyID) bool {
	if id.Pid != other.Pid {
		return id.Pid < other.Pid
	}
	return id.Local < other.Local
}

// AnimationID identifies a property animation.
type AnimationID struct {
	Pid   int32
	Local uint32
}

// Pack encodes the id into the 64-bit wire form.
func (id AnimationID) Pack() uint64 {
	return packPair(id.Pid, id.Local)
}

// UnpackAnimationID decodes the 64-bit wire form.
func UnpackAnimationID(v uint64) AnimationID {
	pid, local := unpackPair(v)
	return AnimationID{Pid: pid, Local: local}
}

func packPair(pid int32, local uint32) uint64 {
	return uint64(uint32(pid))<<32 | uint64(local)
}

func unpackPair(v uint64) (int32, uint32) {
	return int32(uint32(v >> 32)), uint32(v)
}
