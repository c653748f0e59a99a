package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/omegalab/labtriage/server/internal/api"
	"github.com/omegalab/labtriage/server/internal/catalog"
	"github.com/omegalab/labtriage/server/internal/config"
	"github.com/omegalab/labtriage/server/internal/gateway"
	"github.com/omegalab/labtriage/server/internal/metrics"
	"github.com/omegalab/labtriage/server/internal/notify"
	"github.com/omegalab/labtriage/server/internal/store"
	"github.com/omegalab/labtriage/server/internal/triage"
	"github.com/omegalab/labtriage/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory (e.g. ui/dist); leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("labtriage-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	cat := catalog.New(cfg.Server.Definitions())
	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"db_path", cfg.Server.DBPath,
		"auth_mode", cfg.Server.Auth.Mode,
		"catalog_entries", cat.Len(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Durable result log.
	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		slog.Error("failed to open result store", "path", cfg.Server.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	reg := metrics.New()

	// Notifier fires webhooks on PANIC results, with per-patient cooldown.
	ntf := notify.New(cfg.Server.Notify, reg)

	// Gateway validates, classifies and appends submissions, then hands the
	// stored result to the notifier.
	gw := gateway.New(cat, triage.New(cat), st, ntf)

	// WebSocket hub broadcasts the recent-results feed to dashboard clients.
	hub := ws.New(st, reg, cfg.Server.Stream.Interval, cfg.Server.Stream.RecentLimit)
	go hub.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, gw, ntf, reg, cfg.Server.Auth, cfg.Server.Stream.RecentLimit))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", reg.Handler())

	// Optional: serve the pre-built dashboard from a local directory.
	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("labtriage-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
