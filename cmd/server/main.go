package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gbsr/chappy/internal/api"
	"github.com/gbsr/chappy/internal/auth"
	"github.com/gbsr/chappy/internal/config"
	"github.com/gbsr/chappy/internal/core"
	"github.com/gbsr/chappy/internal/logging"
	"github.com/gbsr/chappy/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Command line flag for schema setup
	migrateOnly := flag.Bool("migrate", false, "Prepare the database schema and indexes, then exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	ctx := context.Background()
	if !cfg.EnvFileLoaded {
		logger.Debug(ctx, "no .env file found, relying on environment variables")
	}

	// Initialize database store
	openCtx, cancelOpen := context.WithTimeout(ctx, 30*time.Second)
	dbStore, err := store.Open(openCtx, cfg.ConnectionString, cfg.DBName)
	cancelOpen()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dbStore.Close(closeCtx); err != nil {
			logger.Error(closeCtx, "failed to close database", "error", err)
		}
	}()

	if *migrateOnly {
		logger.Info(ctx, "database schema is up to date")
		return nil
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	userService := core.NewUserService(dbStore, tokens, logger)
	channelService := core.NewChannelService(dbStore, logger)
	messageService := core.NewMessageService(dbStore, dbStore, dbStore, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(userService, channelService, messageService, tokens, dbStore, logger)
	router := api.NewRouter(apiHandler, api.RouterOptions{CORSOrigins: cfg.CORSOrigins})

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server listening", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case sig := <-quit:
		logger.Info(ctx, "shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info(ctx, "server exiting gracefully")
	return nil
}
