// Package xrandr drives the primary output of an X screen through custom
// video timings using the RandR extension.
package xrandr

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"switchres/modeline"
)

var (
	ErrNoOutput        = errors.New("xrandr: no output detected")
	ErrInvalidModeline = errors.New("xrandr: invalid modeline")
	ErrModeNotFound    = errors.New("xrandr: mode not found")
	ErrNoCrtc          = errors.New("xrandr: output has no crtc")
	ErrSwitchFailed    = errors.New("xrandr: mode switch failed, desktop restored")

	// ErrRequestFailed is wrapped with the names of the requests that raised
	// protocol errors. The rest of the sequence has still been attempted.
	ErrRequestFailed = errors.New("xrandr: request failed")
)

// Manager binds to one output and owns the server connection. It is not
// safe for concurrent use.
type Manager struct {
	srv    Server
	log    *slog.Logger
	device string

	root     xproto.Window
	output   randr.Output
	detected bool

	// CRTC mode at detection time, the desktop mode
	outputMode randr.Mode

	// virtual screen bounds. they only ever grow
	width, height int

	crtcFlags modeline.Type
	desktop   ScreenConfig

	// enumeration cursor for GetTiming
	position int

	// most recently created mode
	created     randr.Mode
	createdName string

	trapping *errorTrap
}

// New returns a Manager for the output named by device on srv. The device is
// "auto", "screen<N>" or an output name. The Manager takes ownership of srv.
func New(srv Server, device string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		srv:    srv,
		log:    log,
		device: device,
	}

	major, minor, err := srv.Version()
	if err != nil {
		log.Warn("xrandr: version query failed", "error", err)
	} else {
		log.Debug("xrandr: creation", "device", device, "version", fmt.Sprintf("%d.%d", major, minor))
	}

	return m
}

// Close releases the server connection.
func (m *Manager) Close() error {
	if m.srv != nil {
		m.srv.Close()
		m.srv = nil
	}
	return nil
}

// Bounds returns the current virtual screen size.
func (m *Manager) Bounds() (width, height int) {
	return m.width, m.height
}

// Desktop returns the screen configuration captured at detection.
func (m *Manager) Desktop() ScreenConfig {
	return m.desktop
}

// Output returns the id of the primary output, zero before detection.
func (m *Manager) Output() randr.Output {
	return m.output
}

func (m *Manager) checkDetected() error {
	if !m.detected {
		m.log.Error("xrandr: no screen detected")
		return ErrNoOutput
	}
	return nil
}
