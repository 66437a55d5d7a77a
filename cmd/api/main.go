package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundriff/clipsmith/internal/api"
	"github.com/soundriff/clipsmith/internal/config"
	"github.com/soundriff/clipsmith/internal/db"
	"github.com/soundriff/clipsmith/internal/queue"
	"github.com/soundriff/clipsmith/internal/render"
	"github.com/soundriff/clipsmith/internal/storage"
	"github.com/soundriff/clipsmith/internal/worker"
)

func main() {
	log.Println("Starting Clipsmith API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize object storage
	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	if stor.Configured() {
		log.Println("Object storage enabled")
	} else {
		log.Printf("Object storage not configured, finished renders kept under %s", cfg.OutputDir)
	}

	// Render engine wiring, shared by the in-process path and the worker role
	publisher := render.NewPublisher(stor, cfg.OutputDir, cfg.PublicBaseURL)
	engineOpts := render.Options{
		WorkDir:         cfg.WorkDir,
		WatermarkText:   cfg.WatermarkText,
		RenderTimeout:   time.Duration(cfg.RenderTimeoutSec) * time.Second,
		DownloadTimeout: time.Duration(cfg.DownloadTimeoutSec) * time.Second,
		ParallelEncodes: cfg.ParallelSceneEncodes,
	}
	engine := render.NewEngine(database, publisher, engineOpts)
	remote := worker.NewRemoteRenderer(cfg.InternalRenderSecret, publisher, engineOpts)

	// Create API handler
	handler := api.NewHandler(database, q, stor, publisher, remote)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:        cfg.BackendAPIKey,
		CorsAllowedOrigins:   cfg.CorsAllowedOrigins,
		InternalRenderSecret: cfg.InternalRenderSecret,
		WorkerToken:          cfg.RemoteWorkerToken,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Janitor sweeps abandoned scratch directories
	janitorDone := make(chan struct{})
	janitor := render.NewJanitor(cfg.WorkDir)
	go janitor.Run(janitorDone, time.Hour, time.Duration(cfg.SweepMaxAgeHours)*time.Hour)

	// Start queue consumer if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting queue consumer...")

		dispatcher := worker.NewDispatcher(database, engine, cfg.RemoteWorkerURL, cfg.RemoteWorkerToken, cfg.PublicBaseURL)
		if cfg.RemoteWorkerURL != "" {
			log.Printf("Dispatching encodes to remote worker at %s", cfg.RemoteWorkerURL)
		} else {
			log.Println("Rendering in-process")
		}

		w := worker.New(database, q, dispatcher)
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker and janitor
	if workerCancel != nil {
		workerCancel()
	}
	close(janitorDone)

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
