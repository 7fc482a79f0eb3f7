package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/loykin/foxy/internal/auth"
	"github.com/loykin/foxy/internal/config"
	"github.com/loykin/foxy/internal/logger"
	"github.com/loykin/foxy/internal/metrics"
	"github.com/loykin/foxy/internal/server"
	tlsx "github.com/loykin/foxy/internal/tls"
)

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lock records over HTTP",
		Long: `Serve a read-mostly HTTP API over the lock directory.

Endpoints:
  GET    /locks        list records with liveness
  GET    /locks/:id    one record
  DELETE /locks/:id    remove a stale record (409 while its owner runs)
The /locks endpoints require credentials when [serve.auth] is enabled.
  GET    /healthz
  GET    /metrics

Examples:
  foxy serve --listen 127.0.0.1:9105
  foxy serve --base-path /foxy
  foxy serve --tls-cert /etc/foxy/tls.crt --tls-key /etc/foxy/tls.key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, globalFlags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "listen address (default 127.0.0.1:9105)")
	cmd.Flags().StringVar(&flags.BasePath, "base-path", "", "URL prefix for every endpoint")
	cmd.Flags().StringVar(&flags.TLSCert, "tls-cert", "", "serve HTTPS with this certificate")
	cmd.Flags().StringVar(&flags.TLSKey, "tls-key", "", "private key for --tls-cert")
	return cmd
}

func runServe(cmd *cobra.Command, globalFlags *GlobalFlags) error {
	cfg, err := config.Load(globalFlags.ConfigPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	// the server is long-running; always mirror its log on stderr
	cfg.Log.Console = true
	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	tc, err := tlsx.Setup(cfg.Serve.TLS)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewLockCollector(cfg.LockDir, nil),
	)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := server.NewRouter(cfg.LockDir, cfg.Serve.BasePath, reg)
	if cfg.Serve.Auth.Enabled {
		svc, err := auth.NewService(cfg.Serve.Auth)
		if err != nil {
			return err
		}
		r.UseAuth(svc.GinAuth())
	}
	srv := server.NewServer(cfg.Serve.Listen, r, log, tc)
	return srv.ListenAndServe(ctx, cfg.Serve.ShutdownTimeout)
}
