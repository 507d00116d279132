package arbor

import (
	"encoding/json"
	"fmt"
	"image"
	"time"
)

// scriptStep is a single action in a frame script.
type scriptStep struct {
	Action string `json:"action"`
	Label  string `json:"label,omitempty"`
	// Data is a wire-encoded transaction, base64 in JSON.
	Data   []byte  `json:"data,omitempty"`
	Pid    int32   `json:"pid,omitempty"`
	Local  uint32  `json:"local,omitempty"`
	ScaleX float64 `json:"scaleX,omitempty"`
	ScaleY float64 `json:"scaleY,omitempty"`
	Frames int     `json:"frames,omitempty"`
}

type frameScriptFile struct {
	// Interval is the vsync period in milliseconds; 16 when zero.
	Interval float64      `json:"interval,omitempty"`
	Start    int64        `json:"start,omitempty"`
	Steps    []scriptStep `json:"steps"`
}

// FrameScript replays transactions and vsyncs into a loop that is not
// running, frame by frame, and records captures and tree dumps along the
// way. It drives headless rendering and golden-image tests.
//
// Actions:
//
//	transaction  queue Data for the next frame
//	frame        run Frames frames (at least one)
//	capture      capture node (Pid, Local) at ScaleX x ScaleY into Label
//	dump         store the tree dump into Label
type FrameScript struct {
	steps    []scriptStep
	interval time.Duration
	now      int64

	// Captures and Dumps hold the results by label after Run.
	Captures map[string]*image.RGBA
	Dumps    map[string]string
}

// LoadFrameScript parses a JSON frame script.
func LoadFrameScript(jsonData []byte) (*FrameScript, error) {
	var f frameScriptFile
	if err := json.Unmarshal(jsonData, &f); err != nil {
		return nil, fmt.Errorf("parse frame script: %w", err)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("parse frame script: no steps")
	}
	for i, st := range f.Steps {
		switch st.Action {
		case "transaction", "frame", "capture", "dump":
		default:
			return nil, fmt.Errorf("parse frame script: step %d: unknown action %q", i, st.Action)
		}
		if (st.Action == "capture" || st.Action == "dump") && st.Label == "" {
			return nil, fmt.Errorf("parse frame script: step %d: %s needs a label", i, st.Action)
		}
	}
	interval := time.Duration(f.Interval * float64(time.Millisecond))
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &FrameScript{
		steps:    f.Steps,
		interval: interval,
		now:      f.Start,
		Captures: make(map[string]*image.RGBA),
		Dumps:    make(map[string]string),
	}, nil
}

// Now returns the timestamp of the last frame run.
func (s *FrameScript) Now() int64 { return s.now }

// Run executes every step against l. l must not be running: Run calls
// into it from the current goroutine. The first failing step stops the
// script.
func (s *FrameScript) Run(l *MainLoop) error {
	for i, st := range s.steps {
		if err := s.step(l, st); err != nil {
			return fmt.Errorf("frame script step %d (%s): %w", i, st.Action, err)
		}
	}
	return nil
}

func (s *FrameScript) step(l *MainLoop, st scriptStep) error {
	switch st.Action {
	case "transaction":
		return l.RecvTransactionData(st.Data)
	case "frame":
		for range max(st.Frames, 1) {
			s.now += int64(s.interval)
			l.OnVsync(s.now)
		}
	case "capture":
		id := MakeNodeID(st.Pid, st.Local)
		n := l.ctx.nodeMap.GetRenderNode(id)
		if n == nil {
			return fmt.Errorf("capture %s: %w", id, ErrNodeNotFound)
		}
		sx, sy := st.ScaleX, st.ScaleY
		if sx == 0 {
			sx = 1
		}
		if sy == 0 {
			sy = 1
		}
		img, err := captureNode(l.engine, n, sx, sy)
		if err != nil {
			return err
		}
		s.Captures[st.Label] = img
	case "dump":
		s.Dumps[st.Label] = l.ctx.TreeDump()
	}
	return nil
}
