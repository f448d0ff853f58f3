package xrandr

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

const (
	fakeRoot xproto.Window = 1

	dp1   randr.Output = 20
	hdmi1 randr.Output = 21
	vga1  randr.Output = 22

	crtc0 randr.Crtc = 10
	crtc1 randr.Crtc = 11

	mode1080 randr.Mode = 100
	mode720  randr.Mode = 101
)

// fakeServer is an in-memory RandR screen. Errors of void requests are
// queued and only reach the handler on Sync, like a real connection.
type fakeServer struct {
	roots []xproto.Window

	modes   []Mode
	outputs map[randr.Output]*Output
	order   []randr.Output
	crtcs   map[randr.Crtc]*Controller

	config  ScreenConfig
	restore Controller

	nextMode randr.Mode

	handler   ErrorHandler
	pending   []error
	unhandled []error

	// requests that mutate server state, in order
	requests []string

	grabs, ungrabs int
	grabbed        bool

	width, height     uint16
	mmWidth, mmHeight uint32

	// a crtc switched to a non-zero mode stays disabled
	failSwitch bool

	// void requests that raise an error
	failRequest map[string]bool

	closed bool
}

func fakeModeInfo(id randr.Mode, w, h uint16) Mode {
	return Mode{
		ID:       id,
		Name:     fmt.Sprintf("%dx%d", w, h),
		DotClock: 148500000,
		Width:    w, HSyncStart: w + 88, HSyncEnd: w + 132, HTotal: w + 280,
		Height: h, VSyncStart: h + 4, VSyncEnd: h + 9, VTotal: h + 45,
		Flags: randr.ModeFlagHsyncPositive | randr.ModeFlagVsyncPositive,
	}
}

// newFake returns a screen with DP-1 connected and running 1920x1080, and
// HDMI-1 and VGA-1 disconnected.
func newFake() *fakeServer {
	f := &fakeServer{
		roots: []xproto.Window{fakeRoot},
		modes: []Mode{
			fakeModeInfo(mode1080, 1920, 1080),
			fakeModeInfo(mode720, 1280, 720),
		},
		outputs: map[randr.Output]*Output{
			vga1:  {ID: vga1, Name: "VGA-1"},
			dp1:   {ID: dp1, Name: "DP-1", Connected: true, Crtc: crtc0, Crtcs: []randr.Crtc{crtc0, crtc1}, Modes: []randr.Mode{mode1080, mode720}},
			hdmi1: {ID: hdmi1, Name: "HDMI-1", Crtcs: []randr.Crtc{crtc0, crtc1}, Modes: []randr.Mode{mode720}},
		},
		order: []randr.Output{vga1, dp1, hdmi1},
		crtcs: map[randr.Crtc]*Controller{
			crtc0: {ID: crtc0, Mode: mode1080, Width: 1920, Height: 1080, Rotation: randr.RotationRotate0, Outputs: []randr.Output{dp1}},
			crtc1: {ID: crtc1, Rotation: randr.RotationRotate0},
		},
		config:      ScreenConfig{SizeID: 0, Rotation: randr.RotationRotate0, Rate: 60},
		nextMode:    200,
		width:       1920,
		height:      1080,
		failRequest: make(map[string]bool),
	}
	f.restore = *f.crtcs[crtc0]
	return f
}

// connectHDMI brings HDMI-1 up on the second crtc, right of DP-1.
func (f *fakeServer) connectHDMI() {
	out := f.outputs[hdmi1]
	out.Connected = true
	out.Crtc = crtc1
	f.crtcs[crtc1] = &Controller{ID: crtc1, Mode: mode720, X: 1920, Width: 1280, Height: 720,
		Rotation: randr.RotationRotate0, Outputs: []randr.Output{hdmi1}}
}

func (f *fakeServer) findMode(id randr.Mode) bool {
	return slices.IndexFunc(f.modes, func(m Mode) bool { return m.ID == id }) != -1
}

func (f *fakeServer) modeNames() []string {
	var names []string
	for _, m := range f.modes {
		names = append(names, m.Name)
	}
	return names
}

func (f *fakeServer) report(err error) {
	if f.handler != nil {
		f.handler(err)
		return
	}
	f.unhandled = append(f.unhandled, err)
}

// fakeRandrBase is the first RandR error code the fake server uses.
const fakeRandrBase = 147

var fakeCodes = map[string]uint8{
	"BadValue":  xproto.BadValue,
	"BadMatch":  xproto.BadMatch,
	"BadAccess": xproto.BadAccess,
	"BadMode":   fakeRandrBase + randr.BadBadMode,
}

func (f *fakeServer) queue(request string, err error) {
	f.pending = append(f.pending, &ProtocolError{
		Code: fakeCodes[err.Error()],
		Err:  fmt.Errorf("%s: %w", request, err),
	})
}

func (f *fakeServer) Roots() []xproto.Window {
	return f.roots
}

func (f *fakeServer) Version() (uint32, uint32, error) {
	return 1, 6, nil
}

func (f *fakeServer) Resources(root xproto.Window) (*Resources, error) {
	res := &Resources{ConfigTimestamp: 1}
	if root != fakeRoot {
		return res, nil
	}
	res.Modes = slices.Clone(f.modes)
	res.Outputs = slices.Clone(f.order)
	for id := range f.crtcs {
		res.Crtcs = append(res.Crtcs, id)
	}
	slices.Sort(res.Crtcs)
	return res, nil
}

func (f *fakeServer) OutputInfo(id randr.Output) (*Output, error) {
	out, ok := f.outputs[id]
	if !ok {
		return nil, fmt.Errorf("BadOutput %d", id)
	}
	c := *out
	c.Crtcs = slices.Clone(out.Crtcs)
	c.Modes = slices.Clone(out.Modes)
	return &c, nil
}

func (f *fakeServer) CrtcInfo(id randr.Crtc) (*Controller, error) {
	crtc, ok := f.crtcs[id]
	if !ok {
		return nil, fmt.Errorf("BadCrtc %d", id)
	}
	c := *crtc
	c.Outputs = slices.Clone(crtc.Outputs)
	return &c, nil
}

func (f *fakeServer) ScreenConfig(root xproto.Window) (ScreenConfig, error) {
	return f.config, nil
}

func (f *fakeServer) SetScreenConfig(root xproto.Window, cfg ScreenConfig) {
	f.requests = append(f.requests, "SetScreenConfig")
	f.config = cfg
	r := f.restore
	r.Outputs = slices.Clone(f.restore.Outputs)
	f.crtcs[r.ID] = &r
}

func (f *fakeServer) SetScreenSize(root xproto.Window, width, height uint16, mmWidth, mmHeight uint32) {
	f.requests = append(f.requests, "SetScreenSize")
	if f.failRequest["SetScreenSize"] {
		f.queue("SetScreenSize", fmt.Errorf("BadValue"))
		return
	}
	f.width, f.height = width, height
	f.mmWidth, f.mmHeight = mmWidth, mmHeight
}

func (f *fakeServer) SetCrtcConfig(id randr.Crtc, x, y int16, mode randr.Mode, rotation uint16, outputs []randr.Output) bool {
	f.requests = append(f.requests, "SetCrtcConfig")
	crtc, ok := f.crtcs[id]
	if !ok {
		f.report(fmt.Errorf("BadCrtc %d", id))
		return false
	}

	if mode == 0 {
		*crtc = Controller{ID: id, Rotation: randr.RotationRotate0}
		return true
	}

	i := slices.IndexFunc(f.modes, func(m Mode) bool { return m.ID == mode })
	if i == -1 {
		f.report(fmt.Errorf("BadMode %d", mode))
		return false
	}
	if f.failSwitch {
		return false
	}

	*crtc = Controller{
		ID: id, Mode: mode, X: x, Y: y,
		Width: f.modes[i].Width, Height: f.modes[i].Height,
		Rotation: rotation, Outputs: slices.Clone(outputs),
	}
	return true
}

func (f *fakeServer) CreateMode(root xproto.Window, mode Mode) randr.Mode {
	f.requests = append(f.requests, "CreateMode")
	if f.failRequest["CreateMode"] {
		f.report(fmt.Errorf("BadName"))
		return 0
	}
	for _, m := range f.modes {
		if m.Name == mode.Name {
			return m.ID
		}
	}
	mode.ID = f.nextMode
	f.nextMode++
	f.modes = append(f.modes, mode)
	return mode.ID
}

func (f *fakeServer) DestroyMode(mode randr.Mode) {
	f.requests = append(f.requests, "DestroyMode")
	for _, out := range f.outputs {
		if slices.Contains(out.Modes, mode) {
			f.queue("DestroyMode", fmt.Errorf("BadAccess"))
			return
		}
	}
	if !f.findMode(mode) {
		f.queue("DestroyMode", fmt.Errorf("BadMode"))
		return
	}
	f.modes = slices.DeleteFunc(f.modes, func(m Mode) bool { return m.ID == mode })
}

func (f *fakeServer) AddOutputMode(output randr.Output, mode randr.Mode) {
	f.requests = append(f.requests, "AddOutputMode")
	out, ok := f.outputs[output]
	if !ok || !f.findMode(mode) || f.failRequest["AddOutputMode"] {
		f.queue("AddOutputMode", fmt.Errorf("BadMatch"))
		return
	}
	if !slices.Contains(out.Modes, mode) {
		out.Modes = append(out.Modes, mode)
	}
}

func (f *fakeServer) DeleteOutputMode(output randr.Output, mode randr.Mode) {
	f.requests = append(f.requests, "DeleteOutputMode")
	out, ok := f.outputs[output]
	if !ok || !slices.Contains(out.Modes, mode) {
		f.queue("DeleteOutputMode", fmt.Errorf("BadMatch"))
		return
	}
	out.Modes = slices.DeleteFunc(out.Modes, func(m randr.Mode) bool { return m == mode })
}

func (f *fakeServer) Grab() {
	f.grabs++
	f.grabbed = true
}

func (f *fakeServer) Ungrab() {
	f.ungrabs++
	f.grabbed = false
}

func (f *fakeServer) Sync() {
	pending := f.pending
	f.pending = nil
	for _, err := range pending {
		f.report(err)
	}
}

func (f *fakeServer) SetErrorHandler(h ErrorHandler) ErrorHandler {
	prev := f.handler
	f.handler = h
	return prev
}

func (f *fakeServer) Close() {
	f.closed = true
}

// testLogger returns a logger writing to buf at debug level.
func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
