package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/listvault/internal/api"
	"github.com/ignite/listvault/internal/app"
	"github.com/ignite/listvault/internal/config"
	"github.com/ignite/listvault/internal/export"
	"github.com/ignite/listvault/internal/importer"
	"github.com/ignite/listvault/internal/pkg/logger"
	"github.com/ignite/listvault/internal/queue"
	"github.com/ignite/listvault/internal/service/category"
	suppsvc "github.com/ignite/listvault/internal/service/suppression"
	"github.com/ignite/listvault/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file (empty for defaults)")
	flag.Parse()

	log.Println("Starting listvault API server...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	app.ConfigureLogging(cfg.Log)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// The publisher stays a nil interface when AMQP is off, so health
	// reports "not configured" and the submitter leaves batches to polling.
	var (
		dispatcher queue.Dispatcher
		broker     api.BrokerStatus
	)
	if cfg.AMQP.URL != "" {
		pub, err := queue.NewPublisher(cfg.AMQP)
		if err != nil {
			log.Printf("Warning: AMQP unavailable, batches will be picked up by polling: %v", err)
		} else {
			defer pub.Close()
			dispatcher, broker = pub, pub
			log.Printf("AMQP publisher connected (exchange=%s)", cfg.AMQP.Exchange)
		}
	} else {
		log.Println("AMQP not configured, workers poll for queued batches")
	}

	categories := category.NewService(a.Categories)
	streamer := export.NewStreamer(a.DB, cfg.Export.PageSize)
	exports := export.NewJobRunner(a.ExportJobs, streamer, a.Files)

	handlers := api.NewHandlers(api.Deps{
		Categories:     categories,
		Suppressions:   suppsvc.NewService(a.Suppressions),
		Submitter:      importer.NewSubmitter(a.Categories, a.Batches, a.Files, dispatcher),
		Batches:        a.Batches,
		Progress:       worker.NewProgressTracker(a.Redis),
		Domains:        a.Suppressions,
		Identities:     a.Emails,
		Streamer:       streamer,
		Exports:        exports,
		MaxUploadBytes: cfg.Server.MaxUploadBytes(),
	})
	health := api.NewHealthChecker(a.DB, a.Redis, broker)
	server := api.NewServer(cfg.Server, handlers, health)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Waiting for running export jobs...")
	exports.Wait()

	log.Println("Server stopped")
}
