// Package app opens the shared dependencies of the listvault binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/listvault/internal/config"
	"github.com/ignite/listvault/internal/pkg/logger"
	"github.com/ignite/listvault/internal/repository/postgres"
	"github.com/ignite/listvault/internal/storage"
)

// App holds the connections and repositories every binary needs.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client // nil when redis is not configured or unreachable
	Files  storage.FileStore

	Batches      *postgres.BatchRepo
	Emails       *postgres.EmailRepo
	Suppressions *postgres.SuppressionRepo
	Categories   *postgres.CategoryRepo
	ExportJobs   *postgres.ExportJobRepo
}

// ConfigureLogging applies the log section of the config.
func ConfigureLogging(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// Open connects to Postgres, redis and file storage. Postgres and storage
// are required; redis is optional.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := postgres.Open(dbCtx, cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Printf("File storage ready (type=%s)", cfg.Storage.Type)

	a := &App{
		Config:       cfg,
		DB:           db,
		Redis:        openRedis(ctx, cfg.Redis),
		Files:        files,
		Batches:      postgres.NewBatchRepo(db),
		Emails:       postgres.NewEmailRepo(db),
		Suppressions: postgres.NewSuppressionRepo(db),
		Categories:   postgres.NewCategoryRepo(db),
		ExportJobs:   postgres.NewExportJobRepo(db),
	}
	return a, nil
}

// openRedis returns nil when redis is disabled or does not answer a ping.
func openRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.URL == "" {
		log.Println("Redis not configured, progress stays in process and locks use Postgres")
		return nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without it", "addr", opts.Addr, "error", err)
		client.Close()
		return nil
	}
	log.Printf("Redis connected: %s", opts.Addr)
	return client
}

// Close releases every connection.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.DB.Close()
}
