package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Storage  StorageConfig  `yaml:"storage"`
	Import   ImportConfig   `yaml:"import"`
	Worker   WorkerConfig   `yaml:"worker"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// MaxUploadBytes is the request body limit for import uploads.
func (c ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// ConnLifetime returns ConnMaxLifetime as a duration
func (c DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// RedisConfig holds redis settings. An empty URL disables redis; progress
// then stays in process and the recovery lock falls back to Postgres.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AMQPConfig holds the batch dispatch broker settings. An empty URL leaves
// dispatch to the worker's database poller.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"`
	Prefetch   int    `yaml:"prefetch"`
}

// StorageConfig holds file storage configuration for uploads and exports
type StorageConfig struct {
	Type       string `yaml:"type"` // "local" or "s3"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS, use the task role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// ImportConfig tunes the import pipeline
type ImportConfig struct {
	PreviewCap    int `yaml:"preview_cap"`
	FlushSize     int `yaml:"flush_size"`
	ProgressEvery int `yaml:"progress_every"`
}

// WorkerConfig holds batch worker settings
type WorkerConfig struct {
	Concurrency          int `yaml:"concurrency"`
	PollIntervalSeconds  int `yaml:"poll_interval_seconds"`
	BatchTimeoutSeconds  int `yaml:"batch_timeout_seconds"`
	StaleAfterSeconds    int `yaml:"stale_after_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	MetricsPort          int `yaml:"metrics_port"`
}

// PollInterval returns the queued-batch poll interval
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// BatchTimeout bounds a single batch run
func (c WorkerConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds) * time.Second
}

// StaleAfter is how long a batch may sit in processing before the recovery
// sweep fails it
func (c WorkerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// SweepInterval returns the recovery sweep interval
func (c WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ExportConfig holds export settings
type ExportConfig struct {
	PageSize int `yaml:"page_size"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"` // nil means redact
}

// Redact reports whether email addresses are masked in logs.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 64
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "listvault"
	}
	if cfg.AMQP.Queue == "" {
		cfg.AMQP.Queue = "listvault.import_batches"
	}
	if cfg.AMQP.RoutingKey == "" {
		cfg.AMQP.RoutingKey = "import.batch.queued"
	}
	if cfg.AMQP.Prefetch == 0 {
		cfg.AMQP.Prefetch = 4
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Import.PreviewCap == 0 {
		cfg.Import.PreviewCap = 50
	}
	if cfg.Import.FlushSize == 0 {
		cfg.Import.FlushSize = 500
	}
	if cfg.Import.ProgressEvery == 0 {
		cfg.Import.ProgressEvery = 1000
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 2
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 5
	}
	if cfg.Worker.BatchTimeoutSeconds == 0 {
		cfg.Worker.BatchTimeoutSeconds = 1800
	}
	if cfg.Worker.StaleAfterSeconds == 0 {
		cfg.Worker.StaleAfterSeconds = 3600
	}
	if cfg.Worker.SweepIntervalSeconds == 0 {
		cfg.Worker.SweepIntervalSeconds = 300
	}
	if cfg.Worker.MetricsPort == 0 {
		cfg.Worker.MetricsPort = 9102
	}
	if cfg.Export.PageSize == 0 {
		cfg.Export.PageSize = 1000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate rejects configurations the services cannot run with.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Storage.Type {
	case "local":
		if cfg.Storage.LocalPath == "" {
			errs = append(errs, errors.New("storage.local_path is required for local storage"))
		}
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("storage.s3_bucket is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be local or s3, got %q", cfg.Storage.Type))
	}
	if cfg.Worker.Concurrency < 0 {
		errs = append(errs, errors.New("worker.concurrency must not be negative"))
	}
	if cfg.Import.PreviewCap < 0 {
		errs = append(errs, errors.New("import.preview_cap must not be negative"))
	}
	if cfg.Import.FlushSize < 0 {
		errs = append(errs, errors.New("import.flush_size must not be negative"))
	}
	if cfg.Export.PageSize < 0 {
		errs = append(errs, errors.New("export.page_size must not be negative"))
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}
	return errors.Join(errs...)
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in deployment. An empty
// path skips the file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = Default()
	} else if cfg, err = Load(path); err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQP.URL = v
	}
	if v := os.Getenv("STORAGE_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
		cfg.Storage.Type = "s3"
	}
	if v := os.Getenv("STORAGE_S3_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	if v := os.Getenv("LISTVAULT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("LISTVAULT_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
