package core

import (
	"context"
	"fmt"

	"github.com/restinthemiddle/wrapperserver/internal/zapwriter"
	"github.com/restinthemiddle/wrapperserver/pkg/control"
	config "github.com/restinthemiddle/wrapperserver/pkg/core/config"
	"github.com/restinthemiddle/wrapperserver/pkg/lifecycle"
	"github.com/restinthemiddle/wrapperserver/pkg/metrics"
	"go.uber.org/zap"
)

// Run binds the wrapped listener, serves the control API on server until
// ctx ends, and releases the wrapped port on the way out.
func Run(ctx context.Context, cfg *config.TranslatedConfig, logger *zap.Logger, server HTTPServer) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writers := lifecycle.MultiWriter{zapwriter.Writer{Logger: logger}}
	if cfg.MetricsEnabled {
		metrics.Init()
		writers = append(writers, metrics.Writer{})
	}

	wrapped, err := lifecycle.New(cfg.ServerPort,
		lifecycle.WithHost(cfg.ServerIP),
		lifecycle.WithHandler(wrappedHandler(cfg.Headers)),
		lifecycle.WithGracePeriod(cfg.ShutdownGracePeriod),
		lifecycle.WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout),
		lifecycle.WithWriter(writers),
	)
	if err != nil {
		return fmt.Errorf("failed to bind wrapped server: %w", err)
	}
	defer wrapped.Shutdown()

	if cfg.AutoInit && !wrapped.Init() {
		return fmt.Errorf("failed to start wrapped server on port %d", wrapped.Port())
	}

	router := control.NewRouter(wrapped, control.Options{
		Logger:         logger,
		MetricsEnabled: cfg.MetricsEnabled,
		SetRequestID:   cfg.SetRequestID,
	})

	logger.Info("control API listening",
		zap.String("control_addr", cfg.ControlAddr()),
		zap.Int("server_port", wrapped.Port()),
		zap.Bool("server_active", wrapped.IsActive()),
	)

	if err := server.ListenAndServe(ctx, cfg.ControlAddr(), router); err != nil {
		return fmt.Errorf("control API failed: %w", err)
	}

	logger.Info("control API stopped")
	return nil
}
