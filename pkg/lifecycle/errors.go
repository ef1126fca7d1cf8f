package lifecycle

import "errors"

var (
	// ErrBind is returned by New when the port cannot be bound.
	ErrBind = errors.New("bind failed")
	// ErrStart marks an Init that could not start the accept loop.
	ErrStart = errors.New("start failed")
	// ErrStop marks a Shutdown that could not release the listener cleanly.
	ErrStop = errors.New("stop failed")
)
