// Package display selects the platform backend and keeps the list of video
// modes available on the bound output.
package display

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"switchres/config"
	"switchres/modeline"
	"switchres/xrandr"
)

var (
	// ErrUnsupported is returned by Make on platforms without a backend.
	ErrUnsupported = errors.New("display: platform not supported")

	// ErrFixedMode is returned for a server mode the backend did not create.
	// Such a mode cannot be switched to or deleted; Add its timing instead.
	ErrFixedMode = errors.New("display: mode not managed by the backend")
)

// Fixed reports whether m is a mode the server offers that the backend did
// not create. The desktop mode is never fixed since Restore puts it back.
func Fixed(m *modeline.Modeline) bool {
	return m.Type.Provenance() == modeline.TimingSystem && !m.Type.Has(modeline.Desktop)
}

// Backend is the platform layer that talks to the display server.
type Backend interface {
	Init() error
	AddMode(m *modeline.Modeline) error
	DeleteMode(m *modeline.Modeline) error
	SetTiming(m *modeline.Modeline) error

	// GetTiming returns false once every mode has been read.
	GetTiming(m *modeline.Modeline) (bool, error)

	RestoreMode() error
	Close() error
}

// Make returns the backend for the running platform.
func Make(cfg config.Config, log *slog.Logger) (Backend, error) {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		srv, err := xrandr.Dial(cfg.Display, log)
		if err != nil {
			return nil, err
		}
		return xrandr.New(srv, cfg.Screen, log), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
}

// Manager keeps the modes of the bound output and batches changes to them.
// Added and deleted modes are only sent to the backend by Flush.
type Manager struct {
	backend Backend
	log     *slog.Logger

	modes   []*modeline.Modeline
	desktop *modeline.Modeline
	current *modeline.Modeline
	nextID  int

	// the game is rotated relative to the monitor
	rotation bool
}

// New returns a Manager for backend. The Manager takes ownership of it.
func New(backend Backend, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{backend: backend, log: log}
}

// Init binds the backend to its output and reads the modes it offers.
func (mgr *Manager) Init() error {
	err := mgr.backend.Init()
	if err != nil {
		return err
	}

	mgr.modes = mgr.modes[:0]
	mgr.desktop = nil
	mgr.current = nil

	for {
		m := &modeline.Modeline{}
		ok, err := mgr.backend.GetTiming(m)
		if err != nil {
			mgr.log.Warn("display: skipping mode", "error", err)
			if !ok {
				return err
			}
			continue
		}
		if !ok {
			break
		}

		mgr.nextID++
		m.ID = mgr.nextID
		mgr.modes = append(mgr.modes, m)

		if m.Type.Has(modeline.Desktop) && mgr.desktop == nil {
			mgr.desktop = m
			mgr.current = m
		}
	}

	mgr.log.Info("display: modes read", "count", len(mgr.modes))
	return nil
}

// Modes returns the listed modes, including those waiting for Flush.
func (mgr *Manager) Modes() []*modeline.Modeline {
	return mgr.modes
}

// Desktop returns the mode the output was running when Init was called.
func (mgr *Manager) Desktop() *modeline.Modeline {
	return mgr.desktop
}

// Current returns the mode most recently switched to.
func (mgr *Manager) Current() *modeline.Modeline {
	return mgr.current
}

// ByID returns the listed mode with the given ID, or nil.
func (mgr *Manager) ByID(id int) *modeline.Modeline {
	for _, m := range mgr.modes {
		if m.ID == id && !m.Type.Has(modeline.Delete) {
			return m
		}
	}
	return nil
}

// SetRotation tells Find that requested sizes are rotated relative to the
// monitor.
func (mgr *Manager) SetRotation(rotated bool) {
	mgr.rotation = rotated
}

// Add lists m and marks it to be created on the next Flush. A mode with the
// same timing as a listed one the backend can switch to is not added twice;
// the listed one is returned. A matching fixed mode gets its own copy.
func (mgr *Manager) Add(m modeline.Modeline) *modeline.Modeline {
	for _, l := range mgr.modes {
		if l.SameTiming(&m) && !l.Type.Has(modeline.Delete) && !Fixed(l) {
			return l
		}
	}

	mgr.nextID++
	m.ID = mgr.nextID
	m.Type = m.Type&^(modeline.TimingMask|modeline.Desktop|modeline.Delete) | modeline.Add
	if m.Width == 0 {
		m.Width, m.Height = m.HActive, m.VActive
	}

	l := &m
	mgr.modes = append(mgr.modes, l)
	return l
}

// Delete marks m to be removed on the next Flush. The desktop mode cannot be
// deleted.
func (mgr *Manager) Delete(m *modeline.Modeline) error {
	if m == nil || m == mgr.desktop {
		return fmt.Errorf("display: cannot delete the desktop mode")
	}
	if Fixed(m) {
		return fmt.Errorf("%w: %dx%d", ErrFixedMode, m.HActive, m.VActive)
	}
	m.Type |= modeline.Delete
	return nil
}

// Flush sends pending additions and deletions to the backend. Every pending
// change is attempted; the first error is returned.
func (mgr *Manager) Flush() error {
	var first error
	keep := mgr.modes[:0]

	for _, m := range mgr.modes {
		switch {
		case m.Type.Has(modeline.Delete):
			if m.Type.Has(modeline.Add) {
				// never reached the server
				continue
			}
			if err := mgr.backend.DeleteMode(m); err != nil {
				mgr.log.Error("display: delete mode", "mode", m.Name(), "error", err)
				if first == nil {
					first = err
				}
			}
			if mgr.current == m {
				mgr.current = nil
			}
			continue

		case m.Type.Has(modeline.Add):
			if err := mgr.backend.AddMode(m); err != nil {
				mgr.log.Error("display: add mode", "mode", m.Name(), "error", err)
				if first == nil {
					first = err
				}
			}
			m.Type &^= modeline.Add
		}

		keep = append(keep, m)
	}

	mgr.modes = keep
	return first
}

// SwitchTo activates m. Pending changes are flushed first so that a mode
// added since the last Flush exists on the server. Switching to the current
// mode does nothing.
func (mgr *Manager) SwitchTo(m *modeline.Modeline) error {
	if m == mgr.current {
		mgr.log.Debug("display: switching not required", "mode", m.Name())
		return nil
	}
	if Fixed(m) {
		return fmt.Errorf("%w: %dx%d", ErrFixedMode, m.HActive, m.VActive)
	}
	if m.Type.Has(modeline.Add) || m.Type.Has(modeline.Delete) {
		if err := mgr.Flush(); err != nil {
			return err
		}
	}
	if m.Type.Has(modeline.Delete) {
		return fmt.Errorf("display: %s has been deleted", m.Name())
	}

	if err := mgr.backend.SetTiming(m); err != nil {
		return err
	}

	mgr.current = m
	mgr.log.Info("display: switched", "width", m.HActive, "height", m.VActive,
		"vfreq", fmt.Sprintf("%.6f", m.VFreq))
	return nil
}

// Restore puts the desktop mode back.
func (mgr *Manager) Restore() error {
	if err := mgr.backend.RestoreMode(); err != nil {
		return err
	}
	mgr.current = mgr.desktop
	return nil
}

// Find returns the listed mode with the given active size whose refresh is
// closest to refresh. A refresh of zero matches any. With rotation set the
// size is looked up swapped.
func (mgr *Manager) Find(width, height int, refresh float64) *modeline.Modeline {
	if mgr.rotation {
		width, height = height, width
	}

	var best *modeline.Modeline
	bestDiff := math.Inf(1)

	for _, m := range mgr.modes {
		if m.Type.Has(modeline.Delete) || m.HActive != width || m.VActive != height {
			continue
		}
		diff := math.Abs(m.VFreq - refresh)
		if refresh == 0 {
			diff = 0
		}
		if diff < bestDiff {
			best, bestDiff = m, diff
		}
	}

	return best
}

// Close releases the backend.
func (mgr *Manager) Close() error {
	return mgr.backend.Close()
}
