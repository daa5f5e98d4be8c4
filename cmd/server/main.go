// The stockline server: HTTP API plus the /sync WebSocket endpoint that
// keeps client instances consistent with the shared inventory dataset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/stocklinehq/stockline/internal/crypto"
	"github.com/stocklinehq/stockline/internal/models"
	"github.com/stocklinehq/stockline/internal/server/handlers"
	"github.com/stocklinehq/stockline/internal/server/middleware"
	"github.com/stocklinehq/stockline/internal/server/storage"
	"github.com/stocklinehq/stockline/internal/server/storage/sqlite"
	syncsvc "github.com/stocklinehq/stockline/internal/server/sync"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	addr := flag.String("addr", envOr("STOCKLINE_ADDR", ":8080"), "listen address")
	dbPath := flag.String("db", envOr("STOCKLINE_DB", "stockline.db"), "path to the SQLite database")
	jwtSecret := flag.String("jwt-secret", os.Getenv("STOCKLINE_JWT_SECRET"), "JWT signing secret")
	tokenTTL := flag.Duration("token-ttl", 12*time.Hour, "access token lifetime")
	bootstrapUser := flag.String("bootstrap-user", "", "create this admin user if missing (password from STOCKLINE_BOOTSTRAP_PASSWORD)")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *addr, *dbPath, *jwtSecret, *tokenTTL, *bootstrapUser); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, addr, dbPath, jwtSecret string, tokenTTL time.Duration, bootstrapUser string) error {
	if jwtSecret == "" {
		return errors.New("a JWT secret is required (flag -jwt-secret or STOCKLINE_JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	if bootstrapUser != "" {
		if err := ensureUser(ctx, logger, store, bootstrapUser, os.Getenv("STOCKLINE_BOOTSTRAP_PASSWORD")); err != nil {
			return err
		}
	}

	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(jwtSecret),
		AccessTokenTTL: tokenTTL,
	}

	service := syncsvc.New(logger.With("component", "sync"), store, nil)
	service.Start()
	defer service.Shutdown()

	authHandler := handlers.NewAuthHandler(logger.With("component", "auth"), store, jwtConfig)
	healthHandler := handlers.NewHealthHandler(logger)
	clientsHandler := handlers.NewClientsHandler(logger, service)

	requireAuth := middleware.AuthMiddleware(logger, jwtConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.HandleFunc("POST /api/v1/login", authHandler.Login)
	mux.Handle("GET /api/v1/sync/clients", requireAuth(http.HandlerFunc(clientsHandler.Clients)))
	mux.Handle("/sync", requireAuth(http.HandlerFunc(service.HandleSync)))

	handler := middleware.RecoveryMiddleware(logger)(
		middleware.LoggingMiddleware(logger)(mux))

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "version", Version)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// ensureUser creates an account on first boot so a fresh deployment has a
// way in. A no-op when the user already exists.
func ensureUser(ctx context.Context, logger *slog.Logger, store *sqlite.Storage, username, password string) error {
	if password == "" {
		return errors.New("STOCKLINE_BOOTSTRAP_PASSWORD is required with -bootstrap-user")
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	err = store.CreateUser(ctx, &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, storage.ErrUserAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create bootstrap user: %w", err)
	}

	logger.Info("bootstrap user created", "username", username)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printVersion() {
	fmt.Printf("Stockline Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
