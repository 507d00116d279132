package arbor

import (
	"encoding/binary"
	"math"
)

// Parcel is a little-endian byte buffer used for transactions and draw
// command lists. Writes append; reads advance a cursor. The first failed read
// sticks: every later read returns zero values and Err reports
// ErrMalformedTransaction, so decoders check once at the end.
type Parcel struct {
	buf []byte
	pos int
	err error
}

// NewParcel returns a parcel that reads from data.
func NewParcel(data []byte) *Parcel {
	return &Parcel{buf: data}
}

// Bytes returns the written bytes.
func (p *Parcel) Bytes() []byte { return p.buf }

// Err returns the first read error.
func (p *Parcel) Err() error { return p.err }

// Remaining returns the number of unread bytes.
func (p *Parcel) Remaining() int { return len(p.buf) - p.pos }

func (p *Parcel) WriteUint8(v uint8)   { p.buf = append(p.buf, v) }
func (p *Parcel) WriteUint16(v uint16) { p.buf = binary.LittleEndian.AppendUint16(p.buf, v) }
func (p *Parcel) WriteUint32(v uint32) { p.buf = binary.LittleEndian.AppendUint32(p.buf, v) }
func (p *Parcel) WriteUint64(v uint64) { p.buf = binary.LittleEndian.AppendUint64(p.buf, v) }
func (p *Parcel) WriteInt32(v int32)   { p.WriteUint32(uint32(v)) }
func (p *Parcel) WriteFloat64(v float64) {
	p.WriteUint64(math.Float64bits(v))
}

func (p *Parcel) WriteBool(v bool) {
	if v {
		p.WriteUint8(1)
	} else {
		p.WriteUint8(0)
	}
}

// WriteBytes writes a u32 length prefix followed by b.
func (p *Parcel) WriteBytes(b []byte) {
	p.WriteUint32(uint32(len(b)))
	p.buf = append(p.buf, b...)
}

func (p *Parcel) WriteString(s string) {
	p.WriteUint32(uint32(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *Parcel) WriteRect(r Rect) {
	p.WriteFloat64(r.X)
	p.WriteFloat64(r.Y)
	p.WriteFloat64(r.Width)
	p.WriteFloat64(r.Height)
}

func (p *Parcel) WriteRectI(r RectI) {
	p.WriteInt32(int32(r.X))
	p.WriteInt32(int32(r.Y))
	p.WriteInt32(int32(r.Width))
	p.WriteInt32(int32(r.Height))
}

func (p *Parcel) WriteColor(c Color) {
	p.WriteFloat64(c.R)
	p.WriteFloat64(c.G)
	p.WriteFloat64(c.B)
	p.WriteFloat64(c.A)
}

func (p *Parcel) WriteMatrix(m Matrix) {
	for _, v := range m {
		p.WriteFloat64(v)
	}
}

func (p *Parcel) next(n int) []byte {
	if p.err != nil {
		return nil
	}
	if n < 0 || p.pos+n > len(p.buf) {
		p.err = ErrMalformedTransaction
		return nil
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b
}

func (p *Parcel) ReadUint8() uint8 {
	b := p.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (p *Parcel) ReadUint16() uint16 {
	b := p.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (p *Parcel) ReadUint32() uint32 {
	b := p.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (p *Parcel) ReadUint64() uint64 {
	b := p.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (p *Parcel) ReadInt32() int32     { return int32(p.ReadUint32()) }
func (p *Parcel) ReadFloat64() float64 { return math.Float64frombits(p.ReadUint64()) }
func (p *Parcel) ReadBool() bool       { return p.ReadUint8() != 0 }

// ReadBytes reads a u32 length prefix and that many bytes. The result aliases
// the parcel buffer.
func (p *Parcel) ReadBytes() []byte {
	n := p.ReadUint32()
	if p.err != nil {
		return nil
	}
	return p.next(int(n))
}

func (p *Parcel) ReadString() string {
	return string(p.ReadBytes())
}

func (p *Parcel) ReadRect() Rect {
	return Rect{p.ReadFloat64(), p.ReadFloat64(), p.ReadFloat64(), p.ReadFloat64()}
}

func (p *Parcel) ReadRectI() RectI {
	return RectI{int(p.ReadInt32()), int(p.ReadInt32()), int(p.ReadInt32()), int(p.ReadInt32())}
}

func (p *Parcel) ReadColor() Color {
	return Color{p.ReadFloat64(), p.ReadFloat64(), p.ReadFloat64(), p.ReadFloat64()}
}

func (p *Parcel) ReadMatrix() Matrix {
	var m Matrix
	for i := range m {
		m[i] = p.ReadFloat64()
	}
	return m
}
