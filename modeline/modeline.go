// Package modeline holds the timing record passed between the display
// backends and their callers.
package modeline

import "fmt"

// Type records the provenance and role of a timing. Classifiers only ever
// OR bits into it.
type Type uint32

const (
	// TimingSystem marks a timing read back from the display server.
	TimingSystem Type = 0x00000010
	// TimingXrandr marks a timing created by the XRandR backend.
	TimingXrandr Type = 0x00000020

	// TimingMask covers every backend provenance bit.
	TimingMask Type = 0x00000ff0

	Desktop Type = 0x01000000
	Rotated Type = 0x02000000
	Add     Type = 0x20000000
	Delete  Type = 0x40000000
)

// Has reports whether all bits of f are set.
func (t Type) Has(f Type) bool {
	return t&f == f
}

// Provenance returns the backend bits of t, zero for a timing no backend
// has seen yet.
func (t Type) Provenance() Type {
	return t & TimingMask
}

// Modeline is a single video timing. Clock is in Hz, frequencies in Hz.
type Modeline struct {
	ID int

	PClock int64

	HActive, HBegin, HEnd, HTotal int
	VActive, VBegin, VEnd, VTotal int

	// sync polarity, true is positive
	HSync, VSync bool

	Interlace  bool
	DoubleScan bool

	HFreq   float64
	VFreq   float64
	Refresh int

	Width, Height int

	Type Type
}

// Name is the deterministic server-side name for the timing. Two timings
// share a name exactly when their active size and vertical frequency match.
func (m *Modeline) Name() string {
	return fmt.Sprintf("GM-%dx%d_%.6f", m.HActive, m.VActive, m.VFreq)
}

// UpdateFrequencies derives HFreq, VFreq and Refresh from the clock and
// totals. Frequencies are left at zero when a total is zero.
func (m *Modeline) UpdateFrequencies() {
	m.HFreq, m.VFreq = 0, 0
	if m.HTotal == 0 || m.VTotal == 0 {
		m.Refresh = 0
		return
	}

	m.HFreq = float64(m.PClock) / float64(m.HTotal)
	m.VFreq = m.HFreq / float64(m.VTotal)
	if m.Interlace {
		m.VFreq *= 2
	}
	m.Refresh = int(m.VFreq)
}

// SameTiming reports whether both timings describe the same signal,
// ignoring provenance and bookkeeping fields.
func (m *Modeline) SameTiming(o *Modeline) bool {
	return m.PClock == o.PClock &&
		m.HActive == o.HActive && m.HBegin == o.HBegin && m.HEnd == o.HEnd && m.HTotal == o.HTotal &&
		m.VActive == o.VActive && m.VBegin == o.VBegin && m.VEnd == o.VEnd && m.VTotal == o.VTotal &&
		m.HSync == o.HSync && m.VSync == o.VSync &&
		m.Interlace == o.Interlace && m.DoubleScan == o.DoubleScan
}
