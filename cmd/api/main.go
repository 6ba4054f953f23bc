package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/database"
	"lmsinquiry/internal/logging"
	"lmsinquiry/internal/server"
	"lmsinquiry/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
	cleanupInterval = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatalf("Failed to load config: %v", err)
	}
	logging.Init("API", cfg.App.LogLevel, os.Stdout)
	logger := logging.For("main")

	if err := validateConfig(cfg); err != nil {
		logger.Fatalf("Configuration validation failed: %v", err)
	}

	logger.Infof("Starting %s v%s", cfg.App.Name, cfg.App.Version)
	logger.Infof("Environment: debug=%v, port=%s, host=%s", cfg.App.Debug, cfg.App.Port, cfg.App.Host)

	logger.Info("Initializing database connection...")
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		logger.Info("Closing database connections...")
		if err := database.Close(); err != nil {
			logger.WithError(err).Error("Error closing database")
		}
	}()

	logger.Info("Initializing services...")
	db := database.GetDB()
	emailSvc := services.NewEmailService(&cfg.Email, cfg.Inquiry.NotifyEmail)
	if !emailSvc.IsEnabled() {
		logger.Warn("Email is disabled; inquiry notifications will only be logged")
	}
	healthSvc := services.NewHealthService(cfg.App.Name, db)
	authSvc := services.NewAuthService(db, &cfg.Auth)
	inquirySvc := services.NewInquiryService(db, emailSvc, &cfg.Inquiry)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go inquirySvc.CleanupLoop(ctx, cleanupInterval)

	addr := fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.New(cfg, healthSvc, authSvc, inquirySvc),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		ErrorLog:     log.New(logging.Logger.WriterLevel(logrus.ErrorLevel), "", 0),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infof("Server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server error: %w", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalf("Server failed to start: %v", err)
	case sig := <-shutdown:
		logger.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during graceful shutdown")
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout exceeded, forcing close...")
			httpServer.Close()
		}
	}

	logger.Info("Waiting for pending notifications...")
	inquirySvc.Wait()

	logger.Info("Server shutdown complete")
}

// validateConfig validates critical configuration values
func validateConfig(cfg *config.Config) error {
	if cfg.Auth.SecretKey == "" || cfg.Auth.SecretKey == "your-secret-key-change-in-production" {
		return fmt.Errorf("SECRET_KEY must be set and changed from default value")
	}
	if len(cfg.Auth.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters for security")
	}
	if cfg.Email.Enabled && cfg.Inquiry.NotifyEmail == "" {
		return fmt.Errorf("INQUIRY_NOTIFY_EMAIL must be set when EMAIL_ENABLED is true")
	}
	return nil
}
