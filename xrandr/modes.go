package xrandr

import (
	"fmt"
	"math"
	"strings"

	"github.com/BurntSushi/xgb/randr"

	"switchres/modeline"
)

// physical size hint is derived from a fixed 96 DPI
const dpi = 96.0

func millimetres(px int) uint32 {
	return uint32(25.4 * float64(px) / dpi)
}

func failed(requests []string) error {
	if len(requests) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRequestFailed, strings.Join(requests, ", "))
}

// checkRange rejects timings whose extents do not fit the 16 bit fields of
// the protocol or whose clock does not fit 32 bits.
func checkRange(ml *modeline.Modeline) error {
	for _, v := range []int{
		ml.HActive, ml.HBegin, ml.HEnd, ml.HTotal,
		ml.VActive, ml.VBegin, ml.VEnd, ml.VTotal,
	} {
		if v < 0 || v > math.MaxUint16 {
			return fmt.Errorf("%w: extent %d out of range", ErrInvalidModeline, v)
		}
	}
	if ml.PClock < 0 || ml.PClock > math.MaxUint32 {
		return fmt.Errorf("%w: clock %d out of range", ErrInvalidModeline, ml.PClock)
	}
	return nil
}

func modeFlags(ml *modeline.Modeline) uint32 {
	var f uint32
	if ml.Interlace {
		f |= randr.ModeFlagInterlace
	}
	if ml.DoubleScan {
		f |= randr.ModeFlagDoubleScan
	}
	if ml.HSync {
		f |= randr.ModeFlagHsyncPositive
	} else {
		f |= randr.ModeFlagHsyncNegative
	}
	if ml.VSync {
		f |= randr.ModeFlagVsyncPositive
	} else {
		f |= randr.ModeFlagVsyncNegative
	}
	return f
}

// AddMode creates the timing on the server and attaches it to the primary
// output. Both steps are always attempted.
func (m *Manager) AddMode(ml *modeline.Modeline) error {
	if ml == nil {
		return ErrInvalidModeline
	}
	if err := m.checkDetected(); err != nil {
		return err
	}
	if err := checkRange(ml); err != nil {
		return err
	}

	mode := Mode{
		Name:       ml.Name(),
		DotClock:   uint32(ml.PClock),
		Width:      uint16(ml.HActive),
		HSyncStart: uint16(ml.HBegin),
		HSyncEnd:   uint16(ml.HEnd),
		HTotal:     uint16(ml.HTotal),
		Height:     uint16(ml.VActive),
		VSyncStart: uint16(ml.VBegin),
		VSyncEnd:   uint16(ml.VEnd),
		VTotal:     uint16(ml.VTotal),
		Flags:      modeFlags(ml),
	}

	ml.Type |= modeline.TimingXrandr

	var errs []string

	var id randr.Mode
	if !m.guard("CreateMode", func() { id = m.srv.CreateMode(m.root, mode) }) {
		errs = append(errs, "CreateMode")
	}
	if !m.guard("AddOutputMode", func() { m.srv.AddOutputMode(m.output, id) }) {
		errs = append(errs, "AddOutputMode")
	}

	if id != 0 {
		m.created, m.createdName = id, mode.Name
	}
	m.log.Debug("xrandr: mode added", "name", mode.Name, "id", id)

	return failed(errs)
}

// SetTiming activates the timing on the primary output. The desktop timing
// is put back with RestoreMode instead.
func (m *Manager) SetTiming(ml *modeline.Modeline) error {
	if ml == nil {
		return ErrInvalidModeline
	}
	if ml.Type.Has(modeline.Desktop) {
		return m.RestoreMode()
	}
	if err := checkRange(ml); err != nil {
		return err
	}
	return m.setMode(ml)
}

// lookup finds the server mode for name. The most recently created mode is
// used without a scan.
func (m *Manager) lookup(res *Resources, name string) (randr.Mode, error) {
	if m.created != 0 && m.createdName == name {
		return m.created, nil
	}

	var id randr.Mode
	for _, mode := range res.FindModeName(name) {
		id = mode.ID
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: %s", ErrModeNotFound, name)
	}
	return id, nil
}

func (m *Manager) setMode(ml *modeline.Modeline) error {
	if err := m.checkDetected(); err != nil {
		return err
	}

	// also refreshes the config timestamp the crtc requests are checked against
	res, err := m.srv.Resources(m.root)
	if err != nil {
		return fmt.Errorf("xrandr: screen resources: %w", err)
	}

	id, err := m.lookup(res, ml.Name())
	if err != nil {
		m.log.Error("xrandr: cannot switch", "error", err)
		return err
	}

	out, err := m.srv.OutputInfo(m.output)
	if err != nil {
		return fmt.Errorf("xrandr: output information: %w", err)
	}
	if out.Crtc == 0 {
		return ErrNoCrtc
	}

	crtc, err := m.srv.CrtcInfo(out.Crtc)
	if err != nil {
		return fmt.Errorf("xrandr: crtc information: %w", err)
	}

	width, height := m.width, m.height
	if w := int(crtc.X) + ml.HActive; width < w {
		width = w
	}
	if h := int(crtc.Y) + ml.VActive; height < h {
		height = h
	}
	if width > math.MaxUint16 || height > math.MaxUint16 {
		return fmt.Errorf("%w: screen %dx%d out of range", ErrInvalidModeline, width, height)
	}

	// keep the window manager from reacting to the disabled crtcs
	m.srv.Grab()
	grabbed := true
	ungrab := func() {
		if grabbed {
			m.srv.Ungrab()
			grabbed = false
		}
	}
	defer ungrab()

	for _, c := range out.Crtcs {
		if !m.srv.SetCrtcConfig(c, 0, 0, 0, randr.RotationRotate0, nil) {
			m.log.Error("xrandr: error when disabling crtc", "crtc", c)
		}
	}
	m.log.Debug("xrandr: crtc", "crtc", crtc.ID, "mode", crtc.Mode,
		"geometry", fmt.Sprintf("%dx%d+%d+%d", crtc.Width, crtc.Height, crtc.X, crtc.Y))

	if width != m.width || height != m.height {
		m.width, m.height = width, height
		m.log.Debug("xrandr: change screen size", "width", m.width, "height", m.height)
		m.guard("SetScreenSize", func() {
			m.srv.SetScreenSize(m.root, uint16(m.width), uint16(m.height),
				millimetres(m.width), millimetres(m.height))
		})
	}

	m.guard("SetCrtcConfig", func() {
		if !m.srv.SetCrtcConfig(out.Crtc, crtc.X, crtc.Y, id, m.desktop.Rotation, crtc.Outputs) {
			m.log.Error("xrandr: crtc config refused", "crtc", out.Crtc, "mode", id)
		}
	})

	ungrab()

	after, err := m.srv.CrtcInfo(out.Crtc)
	if err != nil {
		return fmt.Errorf("xrandr: crtc information: %w", err)
	}

	// an unset mode means every crtc is still off. put the desktop back
	// rather than leave a blank screen
	if after.Mode == 0 {
		m.log.Error("xrandr: error switching resolution, original mode restored")
		m.guard("SetScreenConfig", func() { m.srv.SetScreenConfig(m.root, m.desktop) })
		return ErrSwitchFailed
	}

	if res, err := m.srv.Resources(m.root); err == nil {
		if mode, ok := res.FindMode(after.Mode); ok {
			m.log.Debug("xrandr: active mode", "id", fmt.Sprintf("%#04x", uint32(mode.ID)),
				"name", mode.Name, "clock", fmt.Sprintf("%.6fMHz", float64(mode.DotClock)/1e6))
		}
	}

	return nil
}

// RestoreMode puts back the screen configuration captured at detection. It
// can be called any number of times.
func (m *Manager) RestoreMode() error {
	if err := m.checkDetected(); err != nil {
		return err
	}

	if !m.guard("SetScreenConfig", func() { m.srv.SetScreenConfig(m.root, m.desktop) }) {
		return failed([]string{"SetScreenConfig"})
	}

	m.log.Debug("xrandr: original video mode restored")
	return nil
}

// DeleteMode detaches every server mode carrying the timing's name from the
// primary output and destroys it. A name that is not registered is not an
// error.
func (m *Manager) DeleteMode(ml *modeline.Modeline) error {
	if ml == nil {
		return ErrInvalidModeline
	}
	if err := m.checkDetected(); err != nil {
		return err
	}

	res, err := m.srv.Resources(m.root)
	if err != nil {
		return fmt.Errorf("xrandr: screen resources: %w", err)
	}

	var errs []string
	for _, mode := range res.FindModeName(ml.Name()) {
		if !m.guard("DeleteOutputMode", func() { m.srv.DeleteOutputMode(m.output, mode.ID) }) {
			errs = append(errs, "DeleteOutputMode")
		}
		if !m.guard("DestroyMode", func() { m.srv.DestroyMode(mode.ID) }) {
			errs = append(errs, "DestroyMode")
		}

		if m.created == mode.ID {
			m.created, m.createdName = 0, ""
		}
		m.log.Debug("xrandr: mode deleted", "name", mode.Name, "id", mode.ID)
	}

	return failed(errs)
}

// GetTiming fills ml with the next timing attached to the primary output and
// returns true, or returns false once every timing has been read. The
// sequence only starts over after Init.
func (m *Manager) GetTiming(ml *modeline.Modeline) (bool, error) {
	if err := m.checkDetected(); err != nil {
		return false, err
	}
	if ml == nil {
		return false, ErrInvalidModeline
	}

	out, err := m.srv.OutputInfo(m.output)
	if err != nil {
		return false, fmt.Errorf("xrandr: output information: %w", err)
	}
	if m.position >= len(out.Modes) {
		return false, nil
	}

	res, err := m.srv.Resources(m.root)
	if err != nil {
		return false, fmt.Errorf("xrandr: screen resources: %w", err)
	}

	id := out.Modes[m.position]
	m.position++

	mode, ok := res.FindMode(id)
	if !ok {
		return true, fmt.Errorf("%w: id %d", ErrModeNotFound, id)
	}

	ml.PClock = int64(mode.DotClock)
	ml.HActive = int(mode.Width)
	ml.HBegin = int(mode.HSyncStart)
	ml.HEnd = int(mode.HSyncEnd)
	ml.HTotal = int(mode.HTotal)
	ml.VActive = int(mode.Height)
	ml.VBegin = int(mode.VSyncStart)
	ml.VEnd = int(mode.VSyncEnd)
	ml.VTotal = int(mode.VTotal)
	ml.Interlace = mode.Flags&randr.ModeFlagInterlace != 0
	ml.DoubleScan = mode.Flags&randr.ModeFlagDoubleScan != 0
	ml.HSync = mode.Flags&randr.ModeFlagHsyncPositive != 0
	ml.VSync = mode.Flags&randr.ModeFlagVsyncPositive != 0
	ml.UpdateFrequencies()

	ml.Width = int(mode.Width)
	ml.Height = int(mode.Height)

	// rotation is a property of the crtc, not the mode
	ml.Type |= m.crtcFlags
	ml.Type |= modeline.TimingSystem
	// created by this backend, so it can be switched to and deleted by name
	if mode.Name == ml.Name() {
		ml.Type |= modeline.TimingXrandr
	}
	if mode.ID == m.outputMode {
		ml.Type |= modeline.Desktop
	}

	return true, nil
}
