package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"batepapo/internal/chat"
	"batepapo/internal/clock"
	"batepapo/internal/config"
	"batepapo/internal/database"
	"batepapo/internal/handler"
	"batepapo/internal/logging"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownGracePeriod = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "path to a .env file loaded before reading the environment")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK, nil
		}
		return exitConfig, err
	}

	// .envファイルを読み込み
	envErr := godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		return exitConfig, err
	}
	defer logger.Sync()
	if envErr != nil {
		logger.Warn("⚠️  .env file not found, using environment only", zap.String("path", *envFile), zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ストレージ接続を初期化
	store, err := database.Init(ctx, cfg, logger)
	if err != nil {
		logger.Error("❌ Failed to initialize storage", zap.String("driver", cfg.DBDriver), zap.Error(err))
		return exitRuntime, fmt.Errorf("storage init: %w", err)
	}
	defer func() {
		logger.Info("Closing storage...")
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := handler.NewHub(logger.Named("ws"))
	room := chat.NewRoom(store, chat.Options{
		Clock:          clock.Real{},
		Logger:         logger.Named("chat"),
		Metrics:        chat.NewMetrics(registry),
		StorageTimeout: cfg.StorageTimeout,
		Publisher:      hub,
	})
	if err := room.Sync(ctx); err != nil {
		return exitRuntime, fmt.Errorf("load participants: %w", err)
	}

	// WebSocket ブロードキャスターとプレゼンススイーパーを開始
	go hub.Run(ctx)
	sweeper := room.NewSweeper(cfg.SweepInterval, cfg.HeartbeatTimeout)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		_ = sweeper.Run(ctx)
	}()

	h := handler.New(room, hub, cfg, logger.Named("http"), registry)

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "User"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.Handler(h.SetupRouter()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	printBanner(cfg)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 Server started successfully", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-sweeperDone
			return exitRuntime, fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	<-sweeperDone

	logger.Info("Server stopped")
	return exitOK, nil
}

func printBanner(cfg config.Config) {
	fmt.Println("========================================")
	color.Cyan.Println("  Bate-papo API Server")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: %s\n", color.Cyan.Sprintf("http://localhost:%s", cfg.ServerPort))
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	fmt.Printf("  Storage: %s\n", storageLabel(cfg))
	fmt.Printf("  Sweep: every %s, timeout %s\n", cfg.SweepInterval, cfg.HeartbeatTimeout)
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")
}

func storageLabel(cfg config.Config) string {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return fmt.Sprintf("mysql %s@%s:%s/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	case config.DriverSQLite, config.DriverBadger:
		return fmt.Sprintf("%s %s", cfg.DBDriver, cfg.DBPath)
	}
	return cfg.DBDriver
}
