package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/foxy/internal/config"
	"github.com/loykin/foxy/internal/env"
	"github.com/loykin/foxy/internal/history"
	"github.com/loykin/foxy/internal/history/factory"
	"github.com/loykin/foxy/internal/launcher"
	"github.com/loykin/foxy/internal/logger"
	"github.com/loykin/foxy/internal/metrics"
)

// runLaunch runs args as one command line. Every failure is reported on
// stderr or in the log; nothing is returned so the exit status stays 0.
func runLaunch(cmd *cobra.Command, flags *GlobalFlags, args []string) {
	stderr := cmd.ErrOrStderr()
	commandLine := strings.Join(args, " ")

	cfg, err := config.Load(flags.ConfigPath, cmd.Flags())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "foxy: %v\n", err)
		return
	}
	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "foxy: %v\n", err)
		return
	}
	defer func() { _ = closer.Close() }()

	overrides, err := env.Load(cfg.EnvFiles, cfg.Env)
	if err != nil {
		log.Log(context.Background(), logger.LevelCritical, fmt.Sprintf("%s raised %v", commandLine, err))
		return
	}

	sink := openHistory(cfg.History.DSN, log)
	if c, ok := sink.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	reg := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		log.Warn("metrics disabled", "error", err)
		m = nil
	}

	l, err := launcher.New(launcher.Config{
		LockDir:        cfg.LockDir,
		Exclusive:      cfg.Exclusive,
		ReuseCheck:     cfg.ReuseCheck,
		HistoryTimeout: cfg.History.Timeout,
		Env:            overrides,
	}, log, launcher.WithHistory(sink), launcher.WithMetrics(m))
	if err != nil {
		log.Log(context.Background(), logger.LevelCritical, fmt.Sprintf("%s raised %v", commandLine, err))
		return
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res := l.Run(ctx, commandLine)

	if cfg.Metrics.Textfile != "" && m != nil {
		path := metrics.TextfilePath(cfg.Metrics.Textfile, res.ID)
		if err := metrics.WriteTextfile(path, reg); err != nil {
			log.Warn("could not write metrics textfile", "path", path, "error", err)
		}
	}
}

// openHistory returns the configured sink, or history.Nop when the sink
// cannot be opened. History never blocks a launch.
func openHistory(dsn string, log *slog.Logger) history.Sink {
	sink, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		log.Warn("history disabled", "error", err)
		return history.Nop{}
	}
	return sink
}
