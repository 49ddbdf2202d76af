package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ignite/listvault/internal/app"
	"github.com/ignite/listvault/internal/config"
	"github.com/ignite/listvault/internal/importer"
	"github.com/ignite/listvault/internal/metrics"
	"github.com/ignite/listvault/internal/pkg/distlock"
	"github.com/ignite/listvault/internal/pkg/logger"
	"github.com/ignite/listvault/internal/queue"
	"github.com/ignite/listvault/internal/worker"
)

const (
	recoveryLockKey = "listvault:lock:recovery"
	maxReconnect    = time.Minute
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file (empty for defaults)")
	flag.Parse()

	log.Println("Starting listvault import worker...")

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

	runner := worker.NewImportRunner(a.Batches, a.Batches, a.Files, worker.NewProgressTracker(a.Redis), importer.Options{
		PreviewCap:    cfg.Import.PreviewCap,
		FlushSize:     cfg.Import.FlushSize,
		ProgressEvery: cfg.Import.ProgressEvery,
	}, cfg.Worker.BatchTimeout())

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
		log.Printf("%s started", name)
	}

	// Polling always runs: it picks up batches whose dispatch was lost and
	// is the only source when AMQP is off.
	poller := worker.NewPoller(a.Batches, runner.Handle, cfg.Worker.PollInterval(), cfg.Worker.Concurrency)
	start("Poller", poller.Start)

	if cfg.AMQP.URL != "" {
		for i := 0; i < cfg.Worker.Concurrency; i++ {
			id := i
			start(fmt.Sprintf("AMQP consumer %d", id), func(ctx context.Context) {
				consumeLoop(ctx, cfg.AMQP, id, runner.Handle)
			})
		}
	} else {
		log.Println("AMQP not configured, relying on polling")
	}

	sweeper := worker.NewRecoverySweeper(a.Batches,
		distlock.NewLock(a.Redis, a.DB, recoveryLockKey, cfg.Worker.SweepInterval()),
		cfg.Worker.SweepInterval(), cfg.Worker.StaleAfter())
	start("Recovery sweeper", sweeper.Start)

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Worker.MetricsPort > 0 {
		go func() {
			log.Printf("Metrics listening on %s", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker, waiting for running batches...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if cfg.Worker.MetricsPort > 0 {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Metrics shutdown error: %v", err)
		}
	}

	wg.Wait()
	log.Println("Worker stopped")
}

// consumeLoop keeps one consumer attached to the broker, reconnecting with
// a doubling delay after the connection drops.
func consumeLoop(ctx context.Context, cfg config.AMQPConfig, id int, h queue.BatchHandler) {
	delay := time.Second
	for ctx.Err() == nil {
		c, err := queue.NewConsumer(cfg)
		if err == nil {
			delay = time.Second
			err = c.Consume(ctx, h)
			c.Close()
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("[Consumer %d] broker connection lost: %v (retrying in %s)", id, err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnect {
			delay = maxReconnect
		}
	}
}
