// Package lifecycle controls one embedded HTTP listener: bind at
// construction, start serving on Init, release the port on Shutdown.
//
// Callers that only need part of the lifecycle should depend on the narrow
// capability interfaces instead of *Server.
package lifecycle

// Initializer starts accepting connections.
type Initializer interface {
	// Init reports whether the listener is accepting after the call.
	Init() bool
}

// Terminator stops accepting connections and releases the port.
type Terminator interface {
	// Shutdown reports whether the listener is inactive after the call.
	Shutdown() bool
}

// StatusReporter reports whether the listener is accepting.
type StatusReporter interface {
	IsActive() bool
}

// Controller is the full lifecycle surface.
type Controller interface {
	Initializer
	Terminator
	StatusReporter
}

var _ Controller = (*Server)(nil)
