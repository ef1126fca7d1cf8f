package core

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// controlShutdownTimeout bounds the graceful stop of the control API.
const controlShutdownTimeout = 5 * time.Second

// HTTPServer defines the interface for the control API server.
type HTTPServer interface {
	// ListenAndServe blocks until ctx ends or the listener fails.
	ListenAndServe(ctx context.Context, addr string, handler http.Handler) error
}

// DefaultHTTPServer is the default implementation of the HTTPServer interface.
type DefaultHTTPServer struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ListenAndServe implements the HTTPServer interface.
func (s *DefaultHTTPServer) ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), controlShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
