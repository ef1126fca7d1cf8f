package lifecycle

import (
	"net/http"
	"time"
)

type options struct {
	host         string
	handler      http.Handler
	httpServer   HTTPServer
	binder       Binder
	gracePeriod  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	writer       Writer
}

func defaultOptions() options {
	return options{
		handler: http.HandlerFunc(noContent),
		binder:  TCPBinder{},
		writer:  nopWriter{},
	}
}

// Option configures a Server.
type Option func(*options)

// WithHost sets the interface to bind. Empty binds all interfaces.
func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

// WithHandler sets the handler of the default HTTP layer.
func WithHandler(h http.Handler) Option {
	return func(o *options) {
		if h != nil {
			o.handler = h
		}
	}
}

// WithHTTPServer replaces the default *http.Server. Handler and timeouts are
// then the caller's business.
func WithHTTPServer(s HTTPServer) Option {
	return func(o *options) { o.httpServer = s }
}

// WithBinder replaces the TCP binder.
func WithBinder(b Binder) Option {
	return func(o *options) {
		if b != nil {
			o.binder = b
		}
	}
}

// WithGracePeriod lets in-flight requests finish for up to d on Shutdown.
// The default is zero: connections are closed immediately.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.gracePeriod = d
		}
	}
}

// WithTimeouts sets the read, write and idle timeouts of the default HTTP layer.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(o *options) {
		o.readTimeout = read
		o.writeTimeout = write
		o.idleTimeout = idle
	}
}

// WithWriter sets the receiver of lifecycle events.
func WithWriter(w Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}
