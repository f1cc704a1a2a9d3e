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

	"checkout-scan-backend/config"
	"checkout-scan-backend/internal/api"
	"checkout-scan-backend/internal/db"
	"checkout-scan-backend/internal/notify"
	"checkout-scan-backend/internal/scan"
	"checkout-scan-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "checkout-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Check for VAPID keys
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Seed the admin credential on first start.
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		username := os.Getenv("ADMIN_USERNAME")
		if username == "" {
			username = "admin"
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatalf("failed to hash admin password: %v", err)
		}
		if err := appStore.EnsureAdmin(ctx, username, string(hash)); err != nil {
			logger.Fatalf("failed to seed admin account: %v", err)
		}
		logger.Printf("admin account %q is ready", username)
	} else {
		logger.Println("ADMIN_PASSWORD not set, skipping admin seeding")
	}

	// Start the notification worker pool
	hub := notify.NewHub(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	hub.Start(ctx)

	// The session manager drives the per-device detection pipelines.
	sessions := scan.NewManager(scan.Config{
		TickInterval:        cfg.Scanner.TickInterval,
		Debounce:            cfg.Scanner.Debounce,
		MinConfidence:       cfg.Scanner.MinConfidence,
		OccurrenceThreshold: cfg.Scanner.OccurrenceThreshold,
		HistorySize:         cfg.Scanner.HistorySize,
	}, cfg.Scanner.FrameBuffer, appStore, appStore, hub)

	// Initialize router
	router := api.NewRouter(appStore, sessions, &webpushOptions, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	sessions.Shutdown()
	logger.Println("Server gracefully stopped")
}
