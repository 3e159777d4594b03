package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"dkprun/internal/config"
	"dkprun/internal/transfer"
)

const defGrace = 5 * time.Second

type serveFlags struct {
	config        string
	bind          string
	port          int
	dir           string
	maxConns      int
	headerTimeout time.Duration
	logFormat     string
	grace         time.Duration
	verbose       bool
}

func newServeCmd() *command {
	var f serveFlags
	def := config.Default()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "", "TOML configuration `file`, flags override its values")
	fs.StringVar(&f.bind, "bind", def.Bind, "listen `address`, empty for all interfaces (env: DKP_BIND)")
	fs.IntVar(&f.port, "port", def.Port, "TCP `port` (env: DKP_PORT)")
	fs.StringVar(&f.dir, "dir", def.Dir, "destination `directory` (env: DKP_DIR)")
	fs.IntVar(&f.maxConns, "max-conns", def.MaxConns, "maximum simultaneous connections, 0 is unlimited (env: DKP_MAX_CONNS)")
	fs.DurationVar(&f.headerTimeout, "header-timeout", def.HeaderTimeout, "drop clients that send no header within this `duration`,\n0 waits forever (env: DKP_HEADER_TIMEOUT)")
	fs.StringVar(&f.logFormat, "log-format", def.LogFormat, "log `format`: text or json (env: DKP_LOG_FORMAT)")
	fs.DurationVar(&f.grace, "grace", defGrace, "on interrupt, wait up to this `duration` for running transfers")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")

	return &command{
		UsageLine: "dkp serve [flags]",
		Short:     "receive files and serve them back over TCP",
		Flag:      fs,
		Run: func(ctx context.Context, cmd *command, args []string) error {
			if len(args) != 0 {
				return errUsage
			}
			return runServe(ctx, cmd, f)
		},
	}
}

// resolveConfig loads the config file, if any, and applies the flags the
// user set explicitly on top of it.
func resolveConfig(fs *flag.FlagSet, f serveFlags) (config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return config.Config{}, err
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "bind":
			cfg.Bind = f.bind
		case "port":
			cfg.Port = f.port
		case "dir":
			cfg.Dir = f.dir
		case "max-conns":
			cfg.MaxConns = f.maxConns
		case "header-timeout":
			cfg.HeaderTimeout = f.headerTimeout
		case "log-format":
			cfg.LogFormat = f.logFormat
		}
	})
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *command, f serveFlags) error {
	cfg, err := resolveConfig(cmd.Flag, f)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		config.PrintErrors(cmd.stderr, err)
		return errUsage
	}

	lg := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.stderr)
	slog.SetDefault(lg)

	st := &serverStatus{status: newStatus(cmd.stdout)}
	if f.verbose {
		st.next = transfer.LogReporter{}
	}
	srv, err := transfer.New(cfg.Dir,
		transfer.WithLogger(lg),
		transfer.WithReporter(st),
		transfer.WithMaxConns(cfg.MaxConns),
		transfer.WithHeaderTimeout(cfg.HeaderTimeout),
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.stdout, "dkp  |  %s  |  saving to %s\n", cfg.Addr(), srv.Dir())
	fmt.Fprintln(cmd.stdout, "Waiting for transfers... (Ctrl-C to stop)")
	if err := srv.ListenAndServe(ctx, cfg.Addr()); err != nil {
		return err
	}

	return drain(srv, f.grace, lg)
}

// drain waits for running transfers, giving up after grace.
func drain(srv *transfer.Server, grace time.Duration, lg *slog.Logger) error {
	if grace <= 0 {
		return nil
	}
	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		lg.Warn("transfers still running, exiting anyway", "grace", grace)
	}
	return nil
}
