package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/audit"
	"github.com/chasquifx/chasquifx-cache/internal/cache"
	"github.com/chasquifx/chasquifx-cache/internal/config"
	"github.com/chasquifx/chasquifx-cache/internal/database"
	"github.com/chasquifx/chasquifx-cache/internal/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	db, err := database.NewPostgresDB(logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Database setup failed")
	}
	defer database.Close(db)

	if err := database.EnsureCacheIndexes(logger, db); err != nil {
		logger.WithError(err).Fatal("Cache index setup failed")
	}

	store := cache.NewStore(logger, db)
	reconciler := cache.NewReconciler(logger, db, nil)
	auditLog := audit.NewLogger(logger, db)
	api := handlers.NewAPI(logger, cfg, store, reconciler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	purger := cache.NewPurger(logger, db, cfg.PurgeInterval)
	go purger.Start(ctx)

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger, auditLog))
	r.Use(handlers.RateLimitMiddleware(cfg))
	handlers.RegisterRoutes(r, api)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
	}()

	logger.WithField("addr", server.Addr).Info("Starting server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("Server failed")
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}
