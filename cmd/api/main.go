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
	"time"

	"github.com/your-org/facecheck/internal/api"
	"github.com/your-org/facecheck/internal/api/handlers"
	"github.com/your-org/facecheck/internal/api/ws"
	"github.com/your-org/facecheck/internal/app"
	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/observability"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facecheck API",
		"port", cfg.Server.Port,
		"threshold", cfg.Matching.Threshold,
		"cooldown", cfg.Cooldown.Window,
		"utc_offset", cfg.Attendance.UTCOffset,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("init core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	if err := core.Start(ctx); err != nil {
		slog.Error("start core", "error", err)
		os.Exit(1)
	}

	// WebSocket hub fed from the attendance stream, so events recognized
	// by workers reach dashboards too.
	hub := ws.NewHub()
	go hub.Run(ctx)

	if err := core.Consumer.ConsumeAttendance(ctx, hub.Forward(core.Ledger.Location())); err != nil {
		slog.Warn("start attendance consumer", "error", err)
	}

	checks := map[string]handlers.Check{
		"postgres": core.DB.Ping,
		"nats":     func(context.Context) error { return core.Producer.Ping() },
	}
	if core.MinIO != nil {
		checks["minio"] = core.MinIO.Ping
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		JWTSecret:   cfg.Server.JWTSecret,
		Gallery:     core.Gallery,
		Matcher:     core.Matcher,
		Cooldown:    core.Cooldown,
		Ledger:      core.Ledger,
		Enroll:      core.Enroll,
		Recognition: core.Recognition,
		Monitor:     core.Monitor,
		Base:        ctx,
		Hub:         hub,
		Checks:      checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("API server stopped")
}
