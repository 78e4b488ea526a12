package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/api"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/bind"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/config"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/factory"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/stats"
)

type app struct {
	cfg    *config.Config
	log    *slog.Logger
	server *core.Server
	health *api.HealthServer
}

// newApp builds every component and binds the listening socket. All
// errors it returns are fatal.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, reporter *errs.Reporter) (*app, error) {
	log.Info("Starting ackd...",
		"port", cfg.Port,
		"framing", cfg.Framing,
		"reply_mode", cfg.ReplyMode,
		"reply_source", cfg.ReplySource,
		"shutdown_policy", cfg.ShutdownPolicy)

	collector := stats.New(cfg.RecentMessages)

	// Reply source is only needed for fixed replies
	var source core.ReplySource
	if cfg.ReplyMode == config.ReplyModeFixed {
		replyFactory := factory.NewReplySourceFactory(cfg)
		store, err := replyFactory.Create(ctx)
		if err != nil {
			return nil, errs.Configuration("create reply source", err)
		}
		if err := replyFactory.EnsureReply(ctx, store); err != nil {
			return nil, errs.Configuration("load reply", err)
		}
		source = store
	}

	handler, err := factory.NewHandlerFactory(cfg).Create(source, reporter, collector, log)
	if err != nil {
		return nil, errs.Configuration("create handler", err)
	}

	listener, err := bind.Listen(cfg.Port, cfg.Backlog)
	if err != nil {
		return nil, err
	}
	log.Info("Server listening", "addr", listener.Addr().String(), "backlog", cfg.Backlog)

	a := &app{
		cfg: cfg,
		log: log,
		server: &core.Server{
			Listener:          listener,
			ConnectionHandler: handler,
			Policy:            cfg.ShutdownPolicy,
			Reporter:          reporter,
			Stats:             collector,
			Log:               log,
		},
	}
	if cfg.HealthServerEnabled {
		a.health = api.NewHealthServer(":"+cfg.HealthServerPort, collector)
	}
	return a, nil
}

func (a *app) Addr() net.Addr {
	return a.server.Listener.Addr()
}

// Run serves until ctx is done, then shuts down under the configured
// policy. It returns nil on a graceful shutdown and an error if the
// server stopped for any other reason.
func (a *app) Run(ctx context.Context) error {
	if a.health != nil {
		a.health.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(ctx)
	}()

	a.setReady(true)
	a.log.Info("Server is ready to accept connections")

	var err error
	served := false
	select {
	case <-ctx.Done():
		a.log.Info("Shutdown signal received", "policy", string(a.cfg.ShutdownPolicy))
	case err = <-serveErr:
		served = true
		a.log.Error("Server stopped unexpectedly", "error", err)
	}
	a.setReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	if sErr := a.server.Shutdown(shutdownCtx); sErr != nil {
		a.log.Warn("Shutdown deadline exceeded, in-flight connections were closed", "error", sErr)
	}
	if !served {
		err = <-serveErr
	}

	if a.health != nil {
		if hErr := a.health.Stop(shutdownCtx); hErr != nil {
			a.log.Warn("Failed to stop health server", "error", hErr)
		}
	}
	return err
}

func (a *app) setReady(ready bool) {
	if a.health != nil {
		a.health.SetReady(ready)
	}
}
