package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/gatehouse/internal/avatar"
	"github.com/me/gatehouse/internal/config"
	"github.com/me/gatehouse/internal/logging"
	"github.com/me/gatehouse/internal/password"
	"github.com/me/gatehouse/internal/ratelimit"
	"github.com/me/gatehouse/internal/server"
	"github.com/me/gatehouse/internal/session"
	"github.com/me/gatehouse/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	logFile := flag.String("log-file", "", "Also append logs to this file")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger, logCloser, err := logging.NewFileLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// User table.
	users, err := store.Open(ctx, cfg.Users.Backend, cfg.Users.CSVPath, cfg.Users.SQLitePath, logger)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer users.Close()
	logger.Info("user store ready", "backend", cfg.Users.Backend)

	hasher, err := password.NewHasher(password.Scheme(cfg.Password.Scheme), cfg.Password.BcryptCost)
	if err != nil {
		return err
	}

	// Session table.
	sessionStore, closeSessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions.Close()
	sessions := session.NewManager(sessionStore, cfg.Session.TTL, logger)
	logger.Info("session store ready", "backend", cfg.Session.Backend, "ttl", cfg.Session.TTL)

	// Avatar uploads.
	maxUpload, err := cfg.MaxUploadBytes()
	if err != nil {
		return err
	}
	avatars := avatar.NewStorage(cfg.Upload.Dir, maxUpload, logger)
	if err := avatars.EnsureDefault(); err != nil {
		return err
	}

	var opts []server.Option
	limiter := ratelimit.New(cfg.LoginRate.PerMinute, cfg.LoginRate.Burst)
	if limiter.Enabled() {
		opts = append(opts, server.WithLoginLimiter(limiter))
		go limiter.RunCleanup(ctx, time.Minute)
		logger.Info("login rate limit enabled", "per_minute", cfg.LoginRate.PerMinute, "burst", cfg.LoginRate.Burst)
	}

	if cfg.Session.SweepInterval > 0 {
		go sessions.RunJanitor(ctx, cfg.Session.SweepInterval)
		logger.Info("session janitor started", "interval", cfg.Session.SweepInterval)
	}

	srv := server.New(cfg, users, sessions, avatars, hasher, logger, opts...)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openSessionStore returns the configured session backend and a closer for
// any connection it holds.
func openSessionStore(ctx context.Context, cfg config.ServerConfig) (session.Store, io.Closer, error) {
	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(), io.NopCloser(nil), nil
	}
	st, client, err := session.NewRedisStore(ctx, cfg.Session.RedisAddr, cfg.Session.RedisDB, cfg.Session.TTL)
	if err != nil {
		return nil, nil, err
	}
	return st, client, nil
}
