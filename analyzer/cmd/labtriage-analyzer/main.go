package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/omegalab/labtriage/analyzer/internal/config"
	"github.com/omegalab/labtriage/analyzer/internal/feed"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("labtriage-analyzer starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Analyzer.ServerEndpoint,
		"interval", cfg.Analyzer.Interval,
		"patients", len(cfg.Analyzer.Patients),
		"tests", len(cfg.Analyzer.Tests),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f := feed.New(cfg.Analyzer)

	// Watch config file for hot-reload. A valid reload swaps the running
	// feed's patient pool, test ranges, interval, and auth settings.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			f.Update(updated.Analyzer)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	slog.Info("feed starting",
		"instance", f.Instance(),
		"initial_delay", cfg.Analyzer.InitialDelay,
	)
	go f.Run(ctx)

	<-ctx.Done()
	slog.Info("labtriage-analyzer shutting down",
		"sent", f.Sent(), "failed", f.Failed())
}
