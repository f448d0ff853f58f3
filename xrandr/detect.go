package xrandr

import (
	"strconv"
	"strings"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"switchres/modeline"
)

const rotationTurned = randr.RotationRotate90 | randr.RotationRotate180 | randr.RotationRotate270

// screenIndex parses a "screen<N>" selector. It returns -1 for anything else.
func screenIndex(device string) int {
	s, ok := strings.CutPrefix(device, "screen")
	if !ok || s == "" {
		return -1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strings.HasPrefix(s, "+") {
		return -1
	}
	return n
}

// Init detects the primary output. Each connected output is given a
// position in connection order; the first one with a running CRTC whose name
// matches the device, or whose position matches "screen<N>", or any when the
// device is "auto", is selected. The enumeration cursor starts over.
func (m *Manager) Init() error {
	m.detected = false
	m.output = 0
	m.outputMode = 0
	m.width, m.height = 0, 0
	m.crtcFlags = 0
	m.position = 0
	m.created, m.createdName = 0, ""

	pos := screenIndex(m.device)
	if pos >= 0 {
		m.log.Debug("xrandr: check for screen number", "screen", pos)
	}

	for _, root := range m.srv.Roots() {
		if m.detectConnector(root, pos) {
			m.root = root
			m.detected = true
			break
		}
	}

	if !m.detected {
		m.log.Error("xrandr: no screen detected", "device", m.device)
		return ErrNoOutput
	}
	return nil
}

func (m *Manager) detectConnector(root xproto.Window, screenPos int) bool {
	res, err := m.srv.Resources(root)
	if err != nil {
		m.log.Error("xrandr: could not get screen resources", "error", err)
		return false
	}

	desktop, err := m.srv.ScreenConfig(root)
	if err != nil {
		m.log.Error("xrandr: could not get screen configuration", "error", err)
		return false
	}

	var found bool
	outputPos := 0
	for _, id := range res.Outputs {
		out, err := m.srv.OutputInfo(id)
		if err != nil {
			m.log.Error("xrandr: could not get output information", "output", id, "error", err)
			continue
		}
		if !out.Connected {
			continue
		}
		m.log.Debug("xrandr: check output connector", "name", out.Name)

		if !found && out.Crtc != 0 && len(out.Modes) > 0 &&
			(m.device == "auto" || m.device == out.Name || outputPos == screenPos) {
			found = m.bindOutput(res, out)
		}
		outputPos++
	}

	if found {
		m.desktop = desktop
	}
	return found
}

// bindOutput records the output's current timing, bounds and rotation. It
// returns false if the CRTC is not running a known mode.
func (m *Manager) bindOutput(res *Resources, out *Output) bool {
	crtc, err := m.srv.CrtcInfo(out.Crtc)
	if err != nil {
		m.log.Error("xrandr: could not get crtc information", "crtc", out.Crtc, "error", err)
		return false
	}

	if _, ok := res.FindMode(crtc.Mode); !ok {
		return false
	}

	m.log.Debug("xrandr: select output connector as primary", "name", out.Name)
	m.output = out.ID
	m.outputMode = crtc.Mode
	m.width = int(crtc.X) + int(crtc.Width)
	m.height = int(crtc.Y) + int(crtc.Height)

	if crtc.Rotation&rotationTurned != 0 {
		m.crtcFlags |= modeline.Rotated
		m.log.Debug("xrandr: desktop rotation", "rotation", rotationName(crtc.Rotation))
	}
	return true
}

func rotationName(r uint16) string {
	switch {
	case r&randr.RotationRotate90 != 0:
		return "left"
	case r&randr.RotationRotate270 != 0:
		return "right"
	case r&randr.RotationRotate180 != 0:
		return "inverted"
	}
	return "normal"
}
