package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/shopgrab/internal/config"
	"github.com/dukerupert/shopgrab/internal/database"
	"github.com/dukerupert/shopgrab/internal/logging"
	"github.com/dukerupert/shopgrab/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DB.Path)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(cfg, db, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Extraction holds the request open for up to Extract.Timeout.
		WriteTimeout: cfg.Extract.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanup(cleanupCtx, srv, logger)

	go func() {
		logger.Info("shopgrab starting", "addr", httpServer.Addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func cleanup(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Error("cleanup expired sessions", "error", err)
			} else if n > 0 {
				logger.Info("cleaned up expired sessions", "count", n)
			}
			if n, err := srv.MagicLinkStore().DeleteExpired(); err != nil {
				logger.Error("cleanup expired magic links", "error", err)
			} else if n > 0 {
				logger.Info("cleaned up expired magic links", "count", n)
			}
			if l := srv.MemoryLimiter(); l != nil {
				l.Cleanup()
			}
		case <-ctx.Done():
			return
		}
	}
}
