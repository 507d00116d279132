package arbor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func sceneData() []byte {
	display := MakeNodeID(0, 1)
	bg := MakeNodeID(1, 1)
	tx := NewTransaction(1, 0)
	tx.AddCommand(&DisplayNodeCreate{ID: display, Config: DisplayNodeConfig{Width: 32, Height: 32}}, display, FollowNone)
	tx.AddCommand(&CanvasNodeCreate{ID: bg}, bg, FollowNone)
	tx.AddCommand(&AddModifier{ID: bg, Modifier: NewModifier(PropertyID{Pid: 1, Local: 1}, ModifierBounds, RectValue(Rect{Width: 32, Height: 32}))}, bg, FollowNone)
	tx.AddCommand(&AddModifier{ID: bg, Modifier: NewModifier(PropertyID{Pid: 1, Local: 2}, ModifierBackgroundColor, ColorValue(Color{G: 1, A: 1}))}, bg, FollowNone)
	tx.AddCommand(&BaseNodeAddChild{ID: display, Child: bg, Index: -1}, display, FollowNone)
	return tx.Marshal()
}

func mustScript(t *testing.T, f frameScriptFile) *FrameScript {
	t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	s, err := LoadFrameScript(data)
	if err != nil {
		t.Fatalf("LoadFrameScript: %v", err)
	}
	return s
}

// --- Load ---

func TestLoadFrameScriptRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"no steps", `{"steps":[]}`},
		{"unknown action", `{"steps":[{"action":"jump"}]}`},
		{"capture without label", `{"steps":[{"action":"capture","pid":1,"local":1}]}`},
		{"dump without label", `{"steps":[{"action":"dump"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFrameScript([]byte(tt.json)); err == nil {
				t.Error("LoadFrameScript succeeded, want error")
			}
		})
	}
}

func TestLoadFrameScriptDefaultInterval(t *testing.T) {
	s, err := LoadFrameScript([]byte(`{"start":1000,"steps":[{"action":"frame","frames":3}]}`))
	if err != nil {
		t.Fatalf("LoadFrameScript: %v", err)
	}
	l := NewMainLoop(NewContext(), WithVSync(NewManualVSync()))
	if err := s.Run(l); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := int64(1000 + 3*16_000_000); s.Now() != want {
		t.Errorf("Now = %d, want %d", s.Now(), want)
	}
}

// --- Run ---

func TestFrameScriptCapturesAndDumps(t *testing.T) {
	s := mustScript(t, frameScriptFile{
		Interval: 10,
		Steps: []scriptStep{
			{Action: "transaction", Data: sceneData()},
			{Action: "frame"},
			{Action: "capture", Label: "full", Pid: 0, Local: 1},
			{Action: "capture", Label: "half", Pid: 0, Local: 1, ScaleX: 0.5, ScaleY: 0.5},
			{Action: "dump", Label: "tree"},
		},
	})
	l := NewMainLoop(NewContext(), WithVSync(NewManualVSync()))
	if err := s.Run(l); err != nil {
		t.Fatalf("Run: %v", err)
	}

	full := s.Captures["full"]
	if full == nil {
		t.Fatal("no capture labelled full")
	}
	if b := full.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Errorf("full size = %v, want 32x32", b)
	}
	if got := full.RGBAAt(16, 16); got.G < 250 || got.A < 250 {
		t.Errorf("full pixel = %v, want green", got)
	}
	if b := s.Captures["half"].Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Errorf("half size = %v, want 16x16", b)
	}

	dump := s.Dumps["tree"]
	for _, want := range []string{"DisplayNode[0:1]", "CanvasNode[1:1]"} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}
	if s.Now() != int64(10_000_000) {
		t.Errorf("Now = %d, want 10ms", s.Now())
	}
}

func TestFrameScriptCaptureMissingNode(t *testing.T) {
	s := mustScript(t, frameScriptFile{
		Steps: []scriptStep{{Action: "capture", Label: "x", Pid: 4, Local: 4}},
	})
	err := s.Run(NewMainLoop(NewContext(), WithVSync(NewManualVSync())))
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestFrameScriptMalformedTransaction(t *testing.T) {
	s := mustScript(t, frameScriptFile{
		Steps: []scriptStep{{Action: "transaction", Data: []byte{9}}},
	})
	err := s.Run(NewMainLoop(NewContext(), WithVSync(NewManualVSync())))
	if !errors.Is(err, ErrMalformedTransaction) {
		t.Errorf("err = %v, want ErrMalformedTransaction", err)
	}
}
