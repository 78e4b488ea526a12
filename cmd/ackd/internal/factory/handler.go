package factory

import (
	"fmt"
	"log/slog"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/config"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/frame"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/handler/ack"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/logger"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/stats"
)

// HandlerFactory creates connection handlers
type HandlerFactory struct {
	cfg *config.Config
}

// NewHandlerFactory creates a new handler factory
func NewHandlerFactory(cfg *config.Config) *HandlerFactory {
	return &HandlerFactory{cfg: cfg}
}

// Create creates the acknowledge handler. source is only consulted in
// fixed reply mode.
func (f *HandlerFactory) Create(source core.ReplySource, reporter *errs.Reporter, collector *stats.Collector, log *slog.Logger) (core.ConnectionHandler, error) {
	logger.Info("Creating Acknowledge Handler",
		"framing", f.cfg.Framing,
		"max_message_size", f.cfg.MaxMessageSize,
		"reply_mode", f.cfg.ReplyMode)

	framer, err := frame.New(f.cfg.Framing, f.cfg.MaxMessageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create framer: %w", err)
	}

	responder, err := ack.NewResponder(ack.Mode(f.cfg.ReplyMode), source)
	if err != nil {
		return nil, fmt.Errorf("failed to create responder: %w", err)
	}

	return &ack.Handler{
		Framer:       framer,
		Responder:    responder,
		ReadTimeout:  f.cfg.ReadTimeout,
		WriteTimeout: f.cfg.WriteTimeout,
		Reporter:     reporter,
		Stats:        collector,
		Log:          log,
	}, nil
}
