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

	"github.com/SherClockHolmes/webpush-go"

	"factory-floor-backend/config"
	"factory-floor-backend/internal/api"
	"factory-floor-backend/internal/changefeed"
	"factory-floor-backend/internal/clock"
	"factory-floor-backend/internal/db"
	"factory-floor-backend/internal/notification"
	"factory-floor-backend/internal/snapshot"
	"factory-floor-backend/internal/store"
	"factory-floor-backend/internal/stream"
)

func main() {
	logger := log.New(os.Stdout, "floord ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One change feed fans every committed row change out to the stream
	// channels and the notification dispatcher.
	feed := changefeed.NewBus()
	appStore := store.NewGormStore(gormDB, feed)
	builder := snapshot.NewBuilder(appStore, clock.System(), cfg.Stream.CollapseThreshold())
	logger.Println("data store initialized")

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	pool.Start(ctx)
	dispatcher := notification.NewDispatcher(appStore, pool)
	go dispatcher.Watch(ctx, feed)

	listOpts := stream.Options{Debounce: cfg.Stream.ListDebounce(), Heartbeat: cfg.Stream.Heartbeat()}
	detailOpts := stream.Options{Debounce: cfg.Stream.DetailDebounce(), Heartbeat: cfg.Stream.Heartbeat()}

	router := api.NewRouter(appStore, builder, feed, &webpushOptions, listOpts, detailOpts)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Closing the feed first lets every open stream channel say goodbye
	// with its closed-code frame before the listener goes away.
	feed.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
