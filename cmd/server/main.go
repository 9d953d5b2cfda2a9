package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stash/internal/server/api"
	"stash/internal/server/auth"
	"stash/internal/server/config"
	"stash/internal/server/database"
	"stash/internal/server/storage"
	"stash/internal/server/upload"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()

	// "adduser <name> <password>" bootstraps an account and exits.
	if len(os.Args) > 1 && os.Args[1] == "adduser" {
		os.Exit(runAddUser(cfg, os.Args[2:]))
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"upload_dir", cfg.UploadDir,
		"sweep_interval", cfg.SweepInterval,
		"idle_expiry", cfg.IdleExpiry,
	)

	// Connect to database (authentication user store)
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize the upload directory. A failure here disables the
	// ingestion path only; everything else keeps serving.
	store := storage.NewFileSystemStore(cfg.UploadDir)
	uploadsEnabled := true
	if err := store.EnsureDir(); err != nil {
		slog.Error("upload directory unavailable, ingestion disabled", "error", err)
		uploadsEnabled = false
	} else {
		slog.Info("upload directory ready", "path", cfg.UploadDir)
	}

	// Registry, ingestor, sweeper
	registry := upload.NewRegistry()
	ingestor := upload.NewIngestor(registry, store)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := upload.NewSweeper(registry, store, cfg.SweepInterval, cfg.IdleExpiry, cfg.SkewWindow)
	if uploadsEnabled {
		sweeper.Start(sweepCtx)
	}

	// Authentication and HTTP surface
	authn := auth.NewBasicAuthenticator(database.NewRepository(db))
	handler := api.NewHandler(registry, ingestor, authn, db, uploadsEnabled)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the sweeper and wait for its clean exit
	sweepCancel()
	if uploadsEnabled {
		sweeper.Wait()
	}

	slog.Info("server exited cleanly")
}

// runAddUser creates a user with a bcrypt-hashed password.
func runAddUser(cfg *config.Config, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: server adduser <username> <password>")
		return 2
	}
	username, password := args[0], args[1]

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		return 1
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		return 1
	}

	if err := database.NewRepository(db).CreateUser(ctx, username, string(hash)); err != nil {
		slog.Error("failed to create user", "username", username, "error", err)
		return 1
	}

	slog.Info("user created", "username", username)
	return 0
}
