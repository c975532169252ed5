package realtime

import "errors"

// Sentinel errors for the realtime channel.
var (
	// ErrInvalidEndpoint is returned when no usable ws/wss URL can be built.
	ErrInvalidEndpoint = errors.New("realtime: invalid endpoint")

	// ErrDialFailed is returned when the WebSocket handshake fails.
	ErrDialFailed = errors.New("realtime: dial failed")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("realtime: manager closed")

	// ErrNoSession is returned by New when no token source is given.
	ErrNoSession = errors.New("realtime: session is required")
)
