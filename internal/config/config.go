package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DatabaseURL string // FLIXTUBE_DATABASE_URL (history service)
	NATSURL     string // FLIXTUBE_NATS_URL
	HTTPAddr    string // FLIXTUBE_HTTP_ADDR (default ":8080")
	GRPCAddr    string // FLIXTUBE_GRPC_ADDR (default ":9090")
	StorageURL  string // FLIXTUBE_STORAGE_URL (default "http://video-storage")

	// Subscriber settings
	HistoryQueue    string        // FLIXTUBE_HISTORY_QUEUE (empty = anonymous exclusive queue)
	AckWait         time.Duration // FLIXTUBE_ACK_WAIT (default 30s)
	MaxDeliver      int           // FLIXTUBE_MAX_DELIVER (default -1 = unbounded)
	RedeliveryDelay time.Duration // FLIXTUBE_REDELIVERY_DELAY (default 1s)
	PersistTimeout  time.Duration // FLIXTUBE_PERSIST_TIMEOUT (default 10s)
	ConnectTimeout  time.Duration // FLIXTUBE_CONNECT_TIMEOUT (default 10s)

	// Sync settings
	SyncInterval   time.Duration // FLIXTUBE_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // FLIXTUBE_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // FLIXTUBE_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // FLIXTUBE_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // FLIXTUBE_SYNC_S3_KEY (default "flixtube/history.jsonl")
	SyncGitRepo    string        // FLIXTUBE_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // FLIXTUBE_SYNC_GIT_FILE (default "history.jsonl")
	SyncGitBranch  string        // FLIXTUBE_SYNC_GIT_BRANCH (default "main")
}

// fileConfig mirrors Config for the optional TOML file named by
// FLIXTUBE_CONFIG. Durations are written as strings ("30s").
type fileConfig struct {
	DatabaseURL     string `toml:"database_url"`
	NATSURL         string `toml:"nats_url"`
	HTTPAddr        string `toml:"http_addr"`
	GRPCAddr        string `toml:"grpc_addr"`
	StorageURL      string `toml:"storage_url"`
	HistoryQueue    string `toml:"history_queue"`
	AckWait         string `toml:"ack_wait"`
	MaxDeliver      string `toml:"max_deliver"`
	RedeliveryDelay string `toml:"redelivery_delay"`
	PersistTimeout  string `toml:"persist_timeout"`
	ConnectTimeout  string `toml:"connect_timeout"`

	Sync struct {
		Interval   string `toml:"interval"`
		S3Bucket   string `toml:"s3_bucket"`
		S3Endpoint string `toml:"s3_endpoint"`
		S3Region   string `toml:"s3_region"`
		S3Key      string `toml:"s3_key"`
		GitRepo    string `toml:"git_repo"`
		GitFile    string `toml:"git_file"`
		GitBranch  string `toml:"git_branch"`
	} `toml:"sync"`
}

// Load builds a Config from defaults, then the TOML file named by
// FLIXTUBE_CONFIG (if any), then FLIXTUBE_* environment variables.
// Service-specific requirements are checked by ValidateHistory and
// ValidateStreaming.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("FLIXTUBE_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("FLIXTUBE_CONFIG: %w", err)
		}
	}

	c := &Config{
		DatabaseURL:    setting("FLIXTUBE_DATABASE_URL", fc.DatabaseURL, ""),
		NATSURL:        setting("FLIXTUBE_NATS_URL", fc.NATSURL, ""),
		HTTPAddr:       setting("FLIXTUBE_HTTP_ADDR", fc.HTTPAddr, ":8080"),
		GRPCAddr:       setting("FLIXTUBE_GRPC_ADDR", fc.GRPCAddr, ":9090"),
		StorageURL:     setting("FLIXTUBE_STORAGE_URL", fc.StorageURL, "http://video-storage"),
		HistoryQueue:   setting("FLIXTUBE_HISTORY_QUEUE", fc.HistoryQueue, ""),
		SyncS3Bucket:   setting("FLIXTUBE_SYNC_S3_BUCKET", fc.Sync.S3Bucket, ""),
		SyncS3Endpoint: setting("FLIXTUBE_SYNC_S3_ENDPOINT", fc.Sync.S3Endpoint, ""),
		SyncS3Region:   setting("FLIXTUBE_SYNC_S3_REGION", fc.Sync.S3Region, "us-east-1"),
		SyncS3Key:      setting("FLIXTUBE_SYNC_S3_KEY", fc.Sync.S3Key, "flixtube/history.jsonl"),
		SyncGitRepo:    setting("FLIXTUBE_SYNC_GIT_REPO", fc.Sync.GitRepo, ""),
		SyncGitFile:    setting("FLIXTUBE_SYNC_GIT_FILE", fc.Sync.GitFile, "history.jsonl"),
		SyncGitBranch:  setting("FLIXTUBE_SYNC_GIT_BRANCH", fc.Sync.GitBranch, "main"),
	}

	var err error
	for _, d := range []struct {
		key      string
		file     string
		fallback string
		dst      *time.Duration
	}{
		{"FLIXTUBE_ACK_WAIT", fc.AckWait, "30s", &c.AckWait},
		{"FLIXTUBE_REDELIVERY_DELAY", fc.RedeliveryDelay, "1s", &c.RedeliveryDelay},
		{"FLIXTUBE_PERSIST_TIMEOUT", fc.PersistTimeout, "10s", &c.PersistTimeout},
		{"FLIXTUBE_CONNECT_TIMEOUT", fc.ConnectTimeout, "10s", &c.ConnectTimeout},
		{"FLIXTUBE_SYNC_INTERVAL", fc.Sync.Interval, "0s", &c.SyncInterval},
	} {
		if *d.dst, err = parseDuration(d.key, setting(d.key, d.file, d.fallback)); err != nil {
			return nil, err
		}
	}

	maxDeliver := setting("FLIXTUBE_MAX_DELIVER", fc.MaxDeliver, "-1")
	c.MaxDeliver, err = strconv.Atoi(maxDeliver)
	if err != nil {
		return nil, fmt.Errorf("FLIXTUBE_MAX_DELIVER: %w", err)
	}
	if c.MaxDeliver == 0 || c.MaxDeliver < -1 {
		return nil, fmt.Errorf("FLIXTUBE_MAX_DELIVER: must be -1 (unbounded) or positive, got %d", c.MaxDeliver)
	}

	return c, nil
}

// ValidateHistory checks the settings the history service cannot run without.
func (c *Config) ValidateHistory() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("FLIXTUBE_DATABASE_URL is required"))
	}
	if c.NATSURL == "" {
		errs = append(errs, errors.New("FLIXTUBE_NATS_URL is required"))
	}
	if c.AckWait <= 0 {
		errs = append(errs, errors.New("FLIXTUBE_ACK_WAIT must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateStreaming checks the settings the streaming service cannot run
// without. The broker URL may be omitted only when withBroker is false.
func (c *Config) ValidateStreaming(withBroker bool) error {
	var errs []error
	if withBroker && c.NATSURL == "" {
		errs = append(errs, errors.New("FLIXTUBE_NATS_URL is required"))
	}
	if c.StorageURL == "" {
		errs = append(errs, errors.New("FLIXTUBE_STORAGE_URL is required"))
	}
	return errors.Join(errs...)
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

// setting resolves one value: environment first, then the config file, then
// the fallback.
func setting(key, fromFile, fallback string) string {
	if fromFile != "" {
		fallback = fromFile
	}
	return envOrDefault(key, fallback)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
