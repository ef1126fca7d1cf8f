package lifecycle

import (
	"errors"
	"time"
)

// Operation names a lifecycle step.
type Operation string

const (
	OperationBind     Operation = "bind"
	OperationInit     Operation = "init"
	OperationShutdown Operation = "shutdown"
	// OperationServe is emitted when the accept loop exits on its own.
	OperationServe Operation = "serve"
)

// Event describes the outcome of one lifecycle step.
type Event struct {
	Operation Operation
	Port      int
	Active    bool
	Err       error
	Duration  time.Duration
	Time      time.Time
}

// Result is "success" or "failure".
func (e Event) Result() string {
	if e.Err != nil {
		return "failure"
	}
	return "success"
}

// Writer receives lifecycle events.
type Writer interface {
	LogEvent(event Event) error
}

// MultiWriter delivers every event to all writers.
type MultiWriter []Writer

// LogEvent implements the Writer interface.
func (m MultiWriter) LogEvent(event Event) error {
	var errs []error
	for _, w := range m {
		if w == nil {
			continue
		}
		if err := w.LogEvent(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopWriter struct{}

func (nopWriter) LogEvent(Event) error { return nil }
