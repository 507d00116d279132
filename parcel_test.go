package arbor

import (
	"errors"
	"testing"
)

func TestParcelValues(t *testing.T) {
	w := NewParcel(nil)
	w.WriteUint8(7)
	w.WriteInt32(-3)
	w.WriteFloat64(1.5)
	w.WriteBool(true)
	w.WriteString("arbor")
	w.WriteRectI(RectI{1, -2, 3, 4})
	w.WriteColor(Color{R: 0.25, A: 1})
	w.WriteMatrix(IdentityMatrix)

	r := NewParcel(w.Bytes())
	if got := r.ReadUint8(); got != 7 {
		t.Errorf("ReadUint8 = %d, want 7", got)
	}
	if got := r.ReadInt32(); got != -3 {
		t.Errorf("ReadInt32 = %d, want -3", got)
	}
	if got := r.ReadFloat64(); got != 1.5 {
		t.Errorf("ReadFloat64 = %v, want 1.5", got)
	}
	if !r.ReadBool() {
		t.Error("ReadBool = false")
	}
	if got := r.ReadString(); got != "arbor" {
		t.Errorf("ReadString = %q", got)
	}
	if got := r.ReadRectI(); got != (RectI{1, -2, 3, 4}) {
		t.Errorf("ReadRectI = %v", got)
	}
	if got := r.ReadColor(); got != (Color{R: 0.25, A: 1}) {
		t.Errorf("ReadColor = %v", got)
	}
	if got := r.ReadMatrix(); got != IdentityMatrix {
		t.Errorf("ReadMatrix = %v", got)
	}
	if r.Err() != nil || r.Remaining() != 0 {
		t.Errorf("Err = %v, Remaining = %d", r.Err(), r.Remaining())
	}
}

func TestParcelShortReadSticks(t *testing.T) {
	r := NewParcel([]byte{1, 2})
	if got := r.ReadUint32(); got != 0 {
		t.Errorf("short ReadUint32 = %d, want 0", got)
	}
	if !errors.Is(r.Err(), ErrMalformedTransaction) {
		t.Fatalf("Err = %v, want ErrMalformedTransaction", r.Err())
	}
	if got := r.ReadUint8(); got != 0 {
		t.Errorf("ReadUint8 after error = %d, want 0", got)
	}
}

func TestParcelBytesLengthPastEnd(t *testing.T) {
	w := NewParcel(nil)
	w.WriteUint32(100)
	w.WriteUint8(1)
	r := NewParcel(w.Bytes())
	if b := r.ReadBytes(); b != nil {
		t.Errorf("ReadBytes = %v, want nil", b)
	}
	if r.Err() == nil {
		t.Error("Err = nil after oversized length")
	}
}
