package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// stopWait bounds how long Shutdown waits for the accept loop to return.
const stopWait = 5 * time.Second

// Server owns one listening socket, bound in New and released by Shutdown.
// A Server is single-shot: once shut down it cannot be initialized again.
//
// IsActive is safe to call concurrently with anything. Init and Shutdown
// must not race each other.
type Server struct {
	port        int
	listener    net.Listener
	http        HTTPServer
	gracePeriod time.Duration
	writer      Writer

	running  atomic.Bool
	serving  atomic.Bool
	released atomic.Bool
	done     chan struct{}
}

// New binds port and returns an inactive Server. Port 0 picks a free port.
// Any error wraps ErrBind.
func New(port int, opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	if port < 0 || port > 65535 {
		err := fmt.Errorf("%w: port %d out of range", ErrBind, port)
		_ = o.writer.LogEvent(Event{Operation: OperationBind, Port: port, Err: err, Time: start})
		return nil, err
	}

	l, err := o.binder.Bind(o.host, port)
	if err != nil {
		err = fmt.Errorf("%w: port %d: %w", ErrBind, port, err)
		_ = o.writer.LogEvent(Event{Operation: OperationBind, Port: port, Err: err, Duration: time.Since(start), Time: start})
		return nil, err
	}

	hs := o.httpServer
	if hs == nil {
		hs = &http.Server{
			Handler:      o.handler,
			ReadTimeout:  o.readTimeout,
			WriteTimeout: o.writeTimeout,
			IdleTimeout:  o.idleTimeout,
		}
	}

	s := &Server{
		port:        port,
		listener:    l,
		http:        hs,
		gracePeriod: o.gracePeriod,
		writer:      o.writer,
		done:        make(chan struct{}),
	}
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		s.port = addr.Port
	}

	s.emit(OperationBind, start, nil)
	return s, nil
}

// Init starts serving the bound socket. It returns true only once the accept
// loop is running; calling it again while active starts nothing new.
func (s *Server) Init() bool {
	if s.running.Load() {
		return true
	}

	start := time.Now()
	if err := s.start(); err != nil {
		s.emit(OperationInit, start, err)
		return false
	}

	s.running.Store(true)
	select {
	case <-s.done:
		// The loop died between entering Accept and the flag being set.
		s.running.CompareAndSwap(true, false)
		s.emit(OperationInit, start, fmt.Errorf("%w: accept loop on port %d exited", ErrStart, s.port))
		return false
	default:
	}

	s.emit(OperationInit, start, nil)
	return s.running.Load()
}

func (s *Server) start() error {
	if s.released.Load() {
		return fmt.Errorf("%w: port %d already released", ErrStart, s.port)
	}
	if !s.serving.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: accept loop on port %d already exited", ErrStart, s.port)
	}
	if err := checkOpen(s.listener); err != nil {
		close(s.done)
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	n := newAcceptNotifier(s.listener)
	errc := make(chan error, 1)
	go s.serve(n, errc)

	select {
	case <-n.accepting:
		return nil
	case err := <-errc:
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
}

func (s *Server) serve(l net.Listener, errc chan<- error) {
	start := time.Now()
	err := s.http.Serve(l)
	errc <- err
	// done closes before the flag is checked so Init observes one or the other.
	close(s.done)
	if s.running.CompareAndSwap(true, false) {
		s.emit(OperationServe, start, fmt.Errorf("%w: accept loop exited: %w", ErrStart, err))
	}
}

// Shutdown clears the running flag, then closes the socket. Calling it
// again is a no-op. It returns true when the Server reports inactive.
func (s *Server) Shutdown() bool {
	s.running.Store(false)
	if !s.released.CompareAndSwap(false, true) {
		return !s.IsActive()
	}

	start := time.Now()
	err := s.stop()
	s.emit(OperationShutdown, start, err)
	return !s.IsActive()
}

func (s *Server) stop() error {
	var errs []error

	if s.gracePeriod > 0 && s.serving.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), s.gracePeriod)
		err := s.http.Shutdown(ctx)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
		}
	}
	if err := s.http.Close(); err != nil {
		errs = append(errs, err)
	}
	// The HTTP layer only closes listeners it has served.
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}

	if s.serving.Load() {
		select {
		case <-s.done:
		case <-time.After(stopWait):
			errs = append(errs, fmt.Errorf("accept loop on port %d still running after %s", s.port, stopWait))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrStop, errors.Join(errs...))
	}
	return nil
}

// IsActive reports the running flag.
func (s *Server) IsActive() bool {
	return s.running.Load()
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) emit(op Operation, start time.Time, err error) {
	_ = s.writer.LogEvent(Event{
		Operation: op,
		Port:      s.port,
		Active:    s.IsActive(),
		Err:       err,
		Duration:  time.Since(start),
		Time:      start,
	})
}
