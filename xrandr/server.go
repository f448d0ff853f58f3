package xrandr

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// ErrorHandler receives protocol errors that the server reports out of band.
type ErrorHandler func(err error)

// ProtocolError is an error the server raised for a request. Code is the X
// error code; RandR errors are offset by the extension's first error code.
type ProtocolError struct {
	Code uint8
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("X error %d: %v", e.Code, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Server is the display-server capability the Manager drives.
//
// Queries return their errors directly. Mutating requests report failures
// through the installed ErrorHandler, possibly only once Sync has been
// called, the way Xlib reports errors for asynchronous requests.
type Server interface {
	Roots() []xproto.Window
	Version() (major, minor uint32, err error)

	Resources(root xproto.Window) (*Resources, error)
	OutputInfo(id randr.Output) (*Output, error)
	CrtcInfo(id randr.Crtc) (*Controller, error)
	ScreenConfig(root xproto.Window) (ScreenConfig, error)

	SetScreenConfig(root xproto.Window, cfg ScreenConfig)
	SetScreenSize(root xproto.Window, width, height uint16, mmWidth, mmHeight uint32)

	// SetCrtcConfig returns false if the server did not report success.
	SetCrtcConfig(crtc randr.Crtc, x, y int16, mode randr.Mode, rotation uint16, outputs []randr.Output) bool

	CreateMode(root xproto.Window, mode Mode) randr.Mode
	DestroyMode(mode randr.Mode)
	AddOutputMode(output randr.Output, mode randr.Mode)
	DeleteOutputMode(output randr.Output, mode randr.Mode)

	Grab()
	Ungrab()

	// Sync waits until every request sent so far has been processed and
	// its errors delivered to the handler.
	Sync()

	// SetErrorHandler installs h and returns the handler it replaces.
	SetErrorHandler(h ErrorHandler) ErrorHandler

	Close()
}
