package xrandr

// NewFakeServer gives external tests the in-memory server.
func NewFakeServer() Server {
	return newFake()
}
