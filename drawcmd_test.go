package arbor

import (
	"testing"
)

func TestDrawCmdListBoundsFollowsMatrixOps(t *testing.T) {
	rc := NewRecordingCanvas(0, 0)
	rc.Save()
	rc.Translate(10, 5)
	rc.DrawRect(Rect{Width: 4, Height: 4}, ColorBlack)
	rc.Restore()
	rc.DrawRect(Rect{Width: 2, Height: 2}, ColorBlack)

	got := rc.Finish().Bounds()
	if got != (Rect{0, 0, 14, 9}) {
		t.Errorf("Bounds = %v, want {0 0 14 9}", got)
	}
}

func TestDrawCmdListNominalBounds(t *testing.T) {
	l := NewDrawCmdList(20, 10)
	l.AddOp(DrawOp{Code: OpRect, Rect: Rect{X: 50, Y: 50, Width: 1, Height: 1}})
	if got := l.Bounds(); got != (Rect{0, 0, 20, 10}) {
		t.Errorf("Bounds = %v, want the nominal size", got)
	}
}

func TestDrawCmdListReplaceOp(t *testing.T) {
	l := NewDrawCmdList(4, 4)
	l.AddOp(DrawOp{Code: OpRect, Color: ColorBlack})
	snap := l.Snapshot()

	if err := l.ReplaceOp(0, DrawOp{Code: OpClear, Color: ColorWhite}); err != nil {
		t.Fatalf("ReplaceOp: %v", err)
	}
	if !l.IsCached() {
		t.Error("IsCached = false after ReplaceOp")
	}
	if snap.Op(0).Code != OpRect || snap.IsCached() {
		t.Error("snapshot changed by ReplaceOp on the original")
	}
	if err := l.ReplaceOp(3, DrawOp{}); err == nil {
		t.Error("ReplaceOp out of range succeeded")
	}
}

func TestDrawCmdListPlaybackRestoresSaveCount(t *testing.T) {
	l := NewDrawCmdList(4, 4)
	l.AddOp(DrawOp{Code: OpSave})
	l.AddOp(DrawOp{Code: OpTranslate, Args: [4]float64{3, 3}})
	l.AddOp(DrawOp{Code: OpSave})

	dst := NewRecordingCanvas(4, 4)
	before := dst.SaveCount()
	l.Playback(dst)
	if dst.SaveCount() != before {
		t.Errorf("SaveCount = %d, want %d", dst.SaveCount(), before)
	}
	if dst.TotalMatrix() != IdentityMatrix {
		t.Errorf("TotalMatrix = %v, want identity", dst.TotalMatrix())
	}
}

func TestDrawCmdListMarshal(t *testing.T) {
	l := NewDrawCmdList(8, 6)
	l.AddOp(DrawOp{Code: OpRoundRect, Rect: Rect{1, 2, 3, 4}, Value: 2, Color: ColorWhite})
	l.AddOp(DrawOp{Code: OpLine, Args: [4]float64{0, 0, 8, 6}, Value: 1, Color: ColorBlack})
	l.AddOp(DrawOp{Code: OpConcat, Matrix: ScaleMatrix(2, 2)})

	p := NewParcel(nil)
	l.Marshal(p)
	got, err := UnmarshalDrawCmdList(NewParcel(p.Bytes()))
	if err != nil {
		t.Fatalf("UnmarshalDrawCmdList: %v", err)
	}
	if got.Width() != 8 || got.Height() != 6 || got.Len() != 3 {
		t.Fatalf("got %dx%d with %d ops", got.Width(), got.Height(), got.Len())
	}
	for i := range 3 {
		if got.Op(i) != l.Op(i) {
			t.Errorf("op %d = %+v, want %+v", i, got.Op(i), l.Op(i))
		}
	}
}

func TestUnmarshalDrawCmdListHugeCount(t *testing.T) {
	p := NewParcel(nil)
	p.WriteInt32(1)
	p.WriteInt32(1)
	p.WriteUint32(1 << 20)
	if _, err := UnmarshalDrawCmdList(NewParcel(p.Bytes())); err == nil {
		t.Error("UnmarshalDrawCmdList accepted a count past the data")
	}
}
