package zapwriter

import (
	"time"

	"github.com/restinthemiddle/wrapperserver/pkg/lifecycle"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventRecord is the log representation of a lifecycle event.
type EventRecord struct {
	Operation string
	Port      int
	Active    bool
	Result    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// MarshalLogObject is used for the type safe JSON serialization of the EventRecord struct.
func (r EventRecord) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("operation", r.Operation)
	enc.AddInt("port", r.Port)
	enc.AddBool("active", r.Active)
	enc.AddString("result", r.Result)
	if r.Error != "" {
		enc.AddString("error", r.Error)
	}
	enc.AddTime("started_at", r.StartedAt)
	enc.AddDuration("duration", r.Duration)
	return nil
}

// NewEventRecord yields the eponymous record from a lifecycle event.
func NewEventRecord(e lifecycle.Event) EventRecord {
	r := EventRecord{
		Operation: string(e.Operation),
		Port:      e.Port,
		Active:    e.Active,
		Result:    e.Result(),
		StartedAt: e.Time,
		Duration:  e.Duration,
	}
	if e.Err != nil {
		r.Error = e.Err.Error()
	}
	return r
}

// Writer is being used to print out lifecycle events via the zap library.
type Writer struct {
	Logger *zap.Logger
}

// LogEvent implements lifecycle.Writer.
func (w Writer) LogEvent(event lifecycle.Event) error {
	if w.Logger == nil {
		return nil
	}

	fields := []zap.Field{zap.Object("event", NewEventRecord(event))}
	if event.Err != nil {
		w.Logger.Warn("lifecycle "+string(event.Operation)+" failed", fields...)
		return nil
	}

	w.Logger.Info("lifecycle "+string(event.Operation), fields...)
	return nil
}
