package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ai-datalab/internal/auth"
	"ai-datalab/internal/scheduler"
	"ai-datalab/internal/server"
	"ai-datalab/internal/telegram"
)

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, the progress stream and the optional Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides BACKEND_PORT)")
	return cmd
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(logger)
	for _, job := range a.maintenanceJobs() {
		if err := sched.Add(job); err != nil {
			return err
		}
	}

	srv := server.New(server.Options{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.AllowedOrigins,
		Heartbeat:      cfg.StreamHeartbeat,
		Provider:       string(cfg.LLMProvider),
		LLMConfigured:  cfg.LLMConfigured(),
	}, a.chat, a.bus, a.catalog, a.recorder, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })

	if cfg.WatchDataDir {
		g.Go(func() error {
			if err := a.catalog.Watch(ctx); err != nil {
				logger.Warn("data directory watch disabled", zap.Error(err))
			}
			return nil
		})
	}

	if cfg.TelegramBotToken != "" {
		bot, err := telegram.New(cfg.TelegramBotToken, auth.New(cfg.AllowedUsers), a.chat, a.store, a.bus, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return bot.Run(ctx) })
	}

	return g.Wait()
}
