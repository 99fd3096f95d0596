package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elevateforhumanity/cima-importer/internal/api"
	"github.com/elevateforhumanity/cima-importer/internal/config"
	"github.com/elevateforhumanity/cima-importer/internal/notify"
	"github.com/elevateforhumanity/cima-importer/internal/objectstore"
	"github.com/elevateforhumanity/cima-importer/internal/repository"
	"github.com/elevateforhumanity/cima-importer/internal/scheduler"
	"github.com/elevateforhumanity/cima-importer/internal/service"
	"github.com/elevateforhumanity/cima-importer/internal/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	logger, err := utils.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	defer logger.Sync()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		logger.Fatalw("Failed to set up database", "error", err)
	}
	defer db.Close()

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Object store is optional; without it batch files arrive inline only.
	var store *objectstore.Store
	if cfg.ObjectStore.Endpoint != "" {
		store, err = objectstore.New(cfg.ObjectStore)
		if err != nil {
			logger.Fatalw("Failed to set up object store", "error", err)
		}
	}

	// Approval notifications are best effort and optional.
	var notifier notify.Notifier = notify.Noop{}
	if cfg.Mail.Endpoint != "" {
		notifier = notify.NewMailer(cfg.Mail.Endpoint, cfg.Mail.From, cfg.Mail.FromName, cfg.Mail.BCC, logger)
	}

	// Create service
	tokens := service.NewTokenService(repo, cfg.Signing.TokenTTLDays)
	svc := service.NewDefaultService(repo, tokens, notifier, logger)

	// Nightly maintenance: auto-import, token purge, stale marking
	if cfg.Scheduler.Enabled {
		var files scheduler.BatchFiles
		if store != nil {
			files = store
		}
		sched := scheduler.New(svc, files, repo, logger, cfg.Scheduler.Interval, cfg.Signing.StalePendingDays)
		sched.Start()
		defer sched.Stop()
	}

	// Create API handler
	var fetcher api.ObjectFetcher
	if store != nil {
		fetcher = store
	}
	handler := api.NewHandler(svc, fetcher, []byte(cfg.Auth.StaffJWTSecret))

	// Set up Gin router
	router := gin.Default()
	handler.SetupRoutes(router)

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Infow("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("Failed to start server", "error", err)
		}
	}()

	// Wait for an interrupt, then drain in-flight requests.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("forced shutdown", "error", err)
	}
}
