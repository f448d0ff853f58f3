package xrandr

import "errors"

// errorTrap counts the protocol errors raised while it is open. Only one
// trap may be open on a Manager at a time.
type errorTrap struct {
	m     *Manager
	outer *errorTrap
	prev  ErrorHandler
	count int
}

// trap flushes pending requests, then starts counting errors.
func (m *Manager) trap() *errorTrap {
	if m.trapping != nil {
		m.log.Error("xrandr: error trap opened while another is open")
	}

	m.srv.Sync()
	t := &errorTrap{m: m, outer: m.trapping}
	t.prev = m.srv.SetErrorHandler(t.handle)
	m.trapping = t
	return t
}

func (t *errorTrap) handle(err error) {
	t.count++

	code := 0
	var pe *ProtocolError
	if errors.As(err, &pe) {
		code = int(pe.Code)
	}
	t.m.log.Error("xrandr: protocol error", "display", t.m.srv != nil, "code", code,
		"error", err, "total", t.count)
}

// release flushes again so that deferred errors are counted, puts the
// previous handler back and returns the number of errors seen.
func (t *errorTrap) release() int {
	t.m.srv.Sync()
	t.m.srv.SetErrorHandler(t.prev)
	t.m.trapping = t.outer
	return t.count
}

// guard runs the requests in fn inside an error trap. Failure is logged under
// the request name and reported to the caller, but never stops the caller's
// sequence.
func (m *Manager) guard(request string, fn func()) bool {
	t := m.trap()
	count := func() (n int) {
		defer func() { n = t.release() }()
		fn()
		return
	}()

	if count > 0 {
		m.log.Error("xrandr: request failed", "request", request, "errors", count)
		return false
	}
	return true
}
