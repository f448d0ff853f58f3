package xrandr

import (
	"fmt"
	"log/slog"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// x11 implements Server over an xgb connection.
type x11 struct {
	conn *xgb.Conn
	log  *slog.Logger

	// config timestamp of the most recent resources query
	cfgTs xproto.Timestamp

	// first error code of the RandR extension
	firstError uint8

	handler ErrorHandler
}

// Dial opens a connection to the named X display, or $DISPLAY if empty, and
// initialises the RandR extension on it.
func Dial(display string, log *slog.Logger) (Server, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("xrandr: connect to display: %w", err)
	}

	err = randr.Init(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("xrandr: %w", err)
	}

	ext, err := xproto.QueryExtension(conn, uint16(len("RANDR")), "RANDR").Reply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("xrandr: %w", err)
	}

	return &x11{conn: conn, log: log, firstError: ext.FirstError}, nil
}

func (s *x11) Roots() []xproto.Window {
	var roots []xproto.Window
	for _, screen := range xproto.Setup(s.conn).Roots {
		roots = append(roots, screen.Root)
	}
	return roots
}

func (s *x11) Version() (uint32, uint32, error) {
	v, err := randr.QueryVersion(s.conn, 1, 6).Reply()
	if err != nil {
		return 0, 0, err
	}
	return v.MajorVersion, v.MinorVersion, nil
}

func (s *x11) Resources(root xproto.Window) (*Resources, error) {
	resources, err := randr.GetScreenResourcesCurrent(s.conn, root).Reply()
	if err != nil {
		return nil, err
	}
	s.cfgTs = resources.ConfigTimestamp

	res := &Resources{
		ConfigTimestamp: resources.ConfigTimestamp,
		Crtcs:           resources.Crtcs,
		Outputs:         resources.Outputs,
	}

	// mode names are packed back to back in the order of the modes
	names := resources.Names
	for _, mode := range resources.Modes {
		n := int(mode.NameLen)
		if n > len(names) {
			n = len(names)
		}
		res.Modes = append(res.Modes, Mode{
			ID:         randr.Mode(mode.Id),
			Name:       string(names[:n]),
			DotClock:   mode.DotClock,
			Width:      mode.Width,
			HSyncStart: mode.HsyncStart,
			HSyncEnd:   mode.HsyncEnd,
			HTotal:     mode.Htotal,
			Height:     mode.Height,
			VSyncStart: mode.VsyncStart,
			VSyncEnd:   mode.VsyncEnd,
			VTotal:     mode.Vtotal,
			Flags:      mode.ModeFlags,
		})
		names = names[n:]
	}

	return res, nil
}

func (s *x11) OutputInfo(id randr.Output) (*Output, error) {
	info, err := randr.GetOutputInfo(s.conn, id, 0).Reply()
	if err != nil {
		return nil, err
	}

	return &Output{
		ID:        id,
		Name:      string(info.Name),
		Connected: info.Connection == randr.ConnectionConnected,
		Crtc:      info.Crtc,
		Crtcs:     info.Crtcs,
		Modes:     info.Modes,
	}, nil
}

func (s *x11) CrtcInfo(id randr.Crtc) (*Controller, error) {
	info, err := randr.GetCrtcInfo(s.conn, id, 0).Reply()
	if err != nil {
		return nil, err
	}

	return &Controller{
		ID:       id,
		Mode:     info.Mode,
		X:        info.X,
		Y:        info.Y,
		Width:    info.Width,
		Height:   info.Height,
		Rotation: info.Rotation,
		Outputs:  info.Outputs,
	}, nil
}

func (s *x11) ScreenConfig(root xproto.Window) (ScreenConfig, error) {
	info, err := randr.GetScreenInfo(s.conn, root).Reply()
	if err != nil {
		return ScreenConfig{}, err
	}
	return ScreenConfig{SizeID: info.SizeID, Rotation: info.Rotation, Rate: info.Rate}, nil
}

func (s *x11) SetScreenConfig(root xproto.Window, cfg ScreenConfig) {
	info, err := randr.GetScreenInfo(s.conn, root).Reply()
	if err != nil {
		s.report(err)
		return
	}

	reply, err := randr.SetScreenConfig(s.conn, root, xproto.TimeCurrentTime, info.ConfigTimestamp,
		cfg.SizeID, cfg.Rotation, cfg.Rate).Reply()
	if err != nil {
		s.report(err)
		return
	}
	if reply.Status != randr.SetConfigSuccess {
		s.report(fmt.Errorf("SetScreenConfig: %s", statusString(reply.Status)))
	}
}

func (s *x11) SetScreenSize(root xproto.Window, width, height uint16, mmWidth, mmHeight uint32) {
	randr.SetScreenSize(s.conn, root, width, height, mmWidth, mmHeight)
}

func (s *x11) SetCrtcConfig(crtc randr.Crtc, x, y int16, mode randr.Mode, rotation uint16, outputs []randr.Output) bool {
	reply, err := randr.SetCrtcConfig(s.conn, crtc, xproto.TimeCurrentTime, s.cfgTs,
		x, y, mode, rotation, outputs).Reply()
	if err != nil {
		s.report(err)
		return false
	}
	if reply.Status != randr.SetConfigSuccess {
		s.log.Debug("xrandr: crtc config refused", "crtc", crtc, "status", statusString(reply.Status))
		return false
	}
	return true
}

func (s *x11) CreateMode(root xproto.Window, mode Mode) randr.Mode {
	info := randr.ModeInfo{
		Width:      mode.Width,
		Height:     mode.Height,
		DotClock:   mode.DotClock,
		HsyncStart: mode.HSyncStart,
		HsyncEnd:   mode.HSyncEnd,
		Htotal:     mode.HTotal,
		VsyncStart: mode.VSyncStart,
		VsyncEnd:   mode.VSyncEnd,
		Vtotal:     mode.VTotal,
		NameLen:    uint16(len(mode.Name)),
		ModeFlags:  mode.Flags,
	}

	reply, err := randr.CreateMode(s.conn, root, info, mode.Name).Reply()
	if err != nil {
		s.report(err)
		return 0
	}
	return reply.Mode
}

func (s *x11) DestroyMode(mode randr.Mode) {
	randr.DestroyMode(s.conn, mode)
}

func (s *x11) AddOutputMode(output randr.Output, mode randr.Mode) {
	randr.AddOutputMode(s.conn, output, mode)
}

func (s *x11) DeleteOutputMode(output randr.Output, mode randr.Mode) {
	randr.DeleteOutputMode(s.conn, output, mode)
}

func (s *x11) Grab() {
	xproto.GrabServer(s.conn)
}

func (s *x11) Ungrab() {
	xproto.UngrabServer(s.conn)
}

// Sync forces a round trip. Errors of unchecked requests arrive on the event
// queue ahead of the round trip's reply, so draining the queue afterwards
// sees all of them.
func (s *x11) Sync() {
	s.conn.Sync()
	for {
		ev, err := s.conn.PollForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			s.report(err)
		}
	}
}

func (s *x11) SetErrorHandler(h ErrorHandler) ErrorHandler {
	prev := s.handler
	s.handler = h
	return prev
}

// errorCode maps an xgb error value back to its X error code, zero when the
// type is not known.
func (s *x11) errorCode(err error) uint8 {
	switch err.(type) {
	case xproto.RequestError:
		return xproto.BadRequest
	case xproto.ValueError:
		return xproto.BadValue
	case xproto.WindowError:
		return xproto.BadWindow
	case xproto.MatchError:
		return xproto.BadMatch
	case xproto.AccessError:
		return xproto.BadAccess
	case xproto.AllocError:
		return xproto.BadAlloc
	case xproto.IDChoiceError:
		return xproto.BadIDChoice
	case xproto.NameError:
		return xproto.BadName
	case xproto.LengthError:
		return xproto.BadLength
	case xproto.ImplementationError:
		return xproto.BadImplementation
	case randr.BadOutputError:
		return s.firstError + randr.BadBadOutput
	case randr.BadCrtcError:
		return s.firstError + randr.BadBadCrtc
	case randr.BadModeError:
		return s.firstError + randr.BadBadMode
	}
	return 0
}

func (s *x11) report(err error) {
	if _, ok := err.(xgb.Error); ok {
		err = &ProtocolError{Code: s.errorCode(err), Err: err}
	}
	if s.handler != nil {
		s.handler(err)
		return
	}
	s.log.Error("xrandr: unhandled protocol error", "error", err)
}

func (s *x11) Close() {
	s.conn.Close()
}

func statusString(status byte) string {
	switch status {
	case randr.SetConfigSuccess:
		return "success"
	case randr.SetConfigInvalidConfigTime:
		return "invalid config time"
	case randr.SetConfigInvalidTime:
		return "invalid time"
	case randr.SetConfigFailed:
		return "failed"
	}
	return fmt.Sprintf("status %d", status)
}
