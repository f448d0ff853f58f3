package xrandr

import (
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// Resources is a snapshot of the screen's RandR resources. It is read fresh
// for every operation and never kept between calls.
type Resources struct {
	ConfigTimestamp xproto.Timestamp

	Crtcs   []randr.Crtc
	Outputs []randr.Output
	Modes   []Mode
}

// Mode is a timing as the server knows it.
type Mode struct {
	ID   randr.Mode
	Name string

	DotClock uint32

	Width, HSyncStart, HSyncEnd, HTotal  uint16
	Height, VSyncStart, VSyncEnd, VTotal uint16

	Flags uint32
}

// Controller is the state of a CRTC.
type Controller struct {
	ID randr.Crtc

	Mode          randr.Mode
	X, Y          int16
	Width, Height uint16
	Rotation      uint16
	Outputs       []randr.Output
}

// Output is the state of a video connector.
type Output struct {
	ID   randr.Output
	Name string

	Connected bool

	// the CRTC currently driving the output, zero if none
	Crtc  randr.Crtc
	Crtcs []randr.Crtc
	Modes []randr.Mode
}

// ScreenConfig is the screen-wide size configuration used to put the
// desktop back.
type ScreenConfig struct {
	SizeID   uint16
	Rotation uint16
	Rate     uint16
}

// FindMode returns the mode with the given id.
func (r *Resources) FindMode(id randr.Mode) (Mode, bool) {
	for _, m := range r.Modes {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}

// FindModeName returns every mode with the given name.
func (r *Resources) FindModeName(name string) []Mode {
	var found []Mode
	for _, m := range r.Modes {
		if m.Name == name {
			found = append(found, m)
		}
	}
	return found
}
