package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/scott-cotton/cli"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/config"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/logger"
)

const name = "ackd"

type MainConfig struct {
	ConfigFile string `cli:"name=config desc='YAML settings file (default $CONFIG_FILE)'"`
	Debug      bool   `cli:"name=debug desc='enable debug logging'"`

	// Diag receives fatal diagnostics; nil means the command's stderr.
	Diag io.Writer

	Main *cli.Command
}

func MainCommand() *cli.Command {
	return newMainCommand(&MainConfig{})
}

func newMainCommand(cfg *MainConfig) *cli.Command {
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Main, name).
		WithSynopsis("ackd [-config file] [-debug] <port>").
		WithDescription("ackd accepts TCP connections, reads one message from each and replies with a fixed acknowledgement.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return ackdMain(cfg, cc, args)
		})
}

func ackdMain(cfg *MainConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Main.Parse(cc, args)
	if err != nil {
		cfg.Main.Usage(cc, err)
		return cli.ExitCodeErr(1)
	}
	// "--" lets a port like -1 reach validation instead of option parsing
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) > 1 {
		cfg.Main.Usage(cc, fmt.Errorf("%w: expected at most one argument, the port", cli.ErrUsage))
		return cli.ExitCodeErr(1)
	}
	var port string
	if len(args) == 1 {
		port = args[0]
	}

	diag := cfg.Diag
	if diag == nil {
		diag = cc.Err
	}

	appCfg, err := config.Load(config.Args{
		Port:       port,
		ConfigFile: cfg.ConfigFile,
		Debug:      cfg.Debug,
	})
	if err != nil {
		errs.NewReporter(name, logger.Default(), diag).Diagnose(err)
		return cli.ExitCodeErr(1)
	}

	parent := cc.Go
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, appCfg, diag)
}

// run owns the process lifecycle once configuration is valid. A nil
// return means a graceful shutdown.
func run(ctx context.Context, cfg *config.Config, diag io.Writer) error {
	logger.Init(logger.Options{Debug: cfg.Debug, Format: cfg.LogFormat})
	log := logger.With("pid", os.Getpid())
	reporter := errs.NewReporter(name, log, diag)

	a, err := newApp(ctx, cfg, log, reporter)
	if err != nil {
		reporter.Diagnose(err)
		return cli.ExitCodeErr(1)
	}
	if err := a.Run(ctx); err != nil {
		reporter.Diagnose(err)
		return cli.ExitCodeErr(1)
	}
	log.Info("Shutdown complete")
	return nil
}
