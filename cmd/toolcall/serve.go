package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"toolcall/internal/mcpbridge"
	"toolcall/internal/metrics"
	"toolcall/internal/server"
)

const pruneInterval = time.Hour

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the protocol endpoint over HTTP",
		Long:  "Serves POST <server.path>, GET /healthz and the metrics endpoint until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srvCfg := server.Config{
				Host:         cfg.Server.Host,
				Port:         cfg.Server.Port,
				Path:         cfg.Server.Path,
				APIKey:       cfg.Server.APIKey,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
				Dispatcher:   rt.dispatcher,
				Logger:       logger,

				RateLimitPerMinute: cfg.Server.RateLimit.PerMinute,
				RateLimitBurst:     cfg.Server.RateLimit.Burst,
			}
			if cfg.Metrics.Enabled {
				srvCfg.MetricsPath = cfg.Metrics.Endpoint
				srvCfg.Metrics = metrics.Collector.Handler()
			}
			srv := server.New(srvCfg)

			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gCtx)
			})
			if rt.journal != nil {
				retention := time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
				g.Go(func() error {
					return rt.journal.RunPruner(gCtx, retention, pruneInterval)
				})
			}

			logger.Info("toolcall serving", "version", version, "tools", len(rt.registry.IDs()))
			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func stdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve the tool registry as an MCP server on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			bridge, err := mcpbridge.New("toolcall", version, rt.dispatcher, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("serving MCP over stdio", "tools", len(rt.registry.IDs()))
			if err := bridge.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
