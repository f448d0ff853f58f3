package modeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every error returned from Parse.
var ErrSyntax = errors.New("modeline syntax")

// Parse reads a timing written in xorg modeline notation:
//
//	[Modeline "name"] clock hdisp hsyncstart hsyncend htotal vdisp vsyncstart vsyncend vtotal [flags]
//
// The clock is in MHz. Recognised flags are +hsync, -hsync, +vsync, -vsync,
// interlace and doublescan. Polarity defaults to negative.
func Parse(s string) (Modeline, error) {
	var m Modeline

	fields := strings.Fields(s)
	if len(fields) > 0 && strings.EqualFold(fields[0], "modeline") {
		fields = fields[1:]
	}

	// the name is decorative. the server-side name is always derived
	if len(fields) > 0 && strings.HasPrefix(fields[0], `"`) {
		end := 0
		for i, f := range fields {
			if (i > 0 || len(f) > 1) && strings.HasSuffix(f, `"`) {
				end = i + 1
				break
			}
		}
		if end == 0 {
			return m, fmt.Errorf("%w: unterminated name", ErrSyntax)
		}
		fields = fields[end:]
	}

	if len(fields) < 9 {
		return m, fmt.Errorf("%w: expected 9 timing values, got %d", ErrSyntax, len(fields))
	}

	clock, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || clock <= 0 {
		return m, fmt.Errorf("%w: bad clock %q", ErrSyntax, fields[0])
	}
	m.PClock = int64(math.Round(clock * 1e6))

	v := make([]int, 8)
	for i := range v {
		v[i], err = strconv.Atoi(fields[i+1])
		if err != nil || v[i] < 0 {
			return m, fmt.Errorf("%w: bad timing value %q", ErrSyntax, fields[i+1])
		}
	}
	m.HActive, m.HBegin, m.HEnd, m.HTotal = v[0], v[1], v[2], v[3]
	m.VActive, m.VBegin, m.VEnd, m.VTotal = v[4], v[5], v[6], v[7]

	if m.HActive == 0 || m.VActive == 0 {
		return m, fmt.Errorf("%w: zero active size", ErrSyntax)
	}
	if m.HTotal < m.HActive || m.VTotal < m.VActive {
		return m, fmt.Errorf("%w: total smaller than active size", ErrSyntax)
	}

	for _, f := range fields[9:] {
		switch strings.ToLower(f) {
		case "+hsync":
			m.HSync = true
		case "-hsync":
			m.HSync = false
		case "+vsync":
			m.VSync = true
		case "-vsync":
			m.VSync = false
		case "interlace":
			m.Interlace = true
		case "doublescan":
			m.DoubleScan = true
		default:
			return m, fmt.Errorf("%w: unknown flag %q", ErrSyntax, f)
		}
	}

	m.Width = m.HActive
	m.Height = m.VActive
	m.UpdateFrequencies()

	return m, nil
}

// String returns the timing in xorg modeline notation. The output can be
// read back with Parse.
func (m *Modeline) String() string {
	s := strings.Builder{}
	s.WriteString(fmt.Sprintf(`Modeline "%s" %f %d %d %d %d %d %d %d %d`, m.Name(),
		float64(m.PClock)/1e6,
		m.HActive, m.HBegin, m.HEnd, m.HTotal,
		m.VActive, m.VBegin, m.VEnd, m.VTotal))

	if m.HSync {
		s.WriteString(" +hsync")
	} else {
		s.WriteString(" -hsync")
	}
	if m.VSync {
		s.WriteString(" +vsync")
	} else {
		s.WriteString(" -vsync")
	}
	if m.Interlace {
		s.WriteString(" interlace")
	}
	if m.DoubleScan {
		s.WriteString(" doublescan")
	}

	return s.String()
}
