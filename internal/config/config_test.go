package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// allEnvVars lists every env var Load reads; they are cleared between tests.
var allEnvVars = []string{
	"FLIXTUBE_CONFIG", "FLIXTUBE_DATABASE_URL", "FLIXTUBE_NATS_URL",
	"FLIXTUBE_HTTP_ADDR", "FLIXTUBE_GRPC_ADDR", "FLIXTUBE_STORAGE_URL",
	"FLIXTUBE_HISTORY_QUEUE", "FLIXTUBE_ACK_WAIT", "FLIXTUBE_MAX_DELIVER",
	"FLIXTUBE_REDELIVERY_DELAY", "FLIXTUBE_PERSIST_TIMEOUT", "FLIXTUBE_CONNECT_TIMEOUT",
	"FLIXTUBE_SYNC_INTERVAL", "FLIXTUBE_SYNC_S3_BUCKET", "FLIXTUBE_SYNC_S3_ENDPOINT",
	"FLIXTUBE_SYNC_S3_REGION", "FLIXTUBE_SYNC_S3_KEY", "FLIXTUBE_SYNC_GIT_REPO",
	"FLIXTUBE_SYNC_GIT_FILE", "FLIXTUBE_SYNC_GIT_BRANCH",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.StorageURL != "http://video-storage" {
		t.Errorf("StorageURL = %q", cfg.StorageURL)
	}
	if cfg.HistoryQueue != "" {
		t.Errorf("HistoryQueue = %q, want anonymous (empty)", cfg.HistoryQueue)
	}
	if cfg.AckWait != 30*time.Second {
		t.Errorf("AckWait = %v, want 30s", cfg.AckWait)
	}
	if cfg.MaxDeliver != -1 {
		t.Errorf("MaxDeliver = %d, want -1", cfg.MaxDeliver)
	}
	if cfg.RedeliveryDelay != time.Second {
		t.Errorf("RedeliveryDelay = %v, want 1s", cfg.RedeliveryDelay)
	}
	if cfg.PersistTimeout != 10*time.Second {
		t.Errorf("PersistTimeout = %v, want 10s", cfg.PersistTimeout)
	}
	if cfg.SyncInterval != 0 {
		t.Errorf("SyncInterval = %v, want 0 (disabled)", cfg.SyncInterval)
	}
	if cfg.SyncS3Region != "us-east-1" {
		t.Errorf("SyncS3Region = %q", cfg.SyncS3Region)
	}
	if cfg.SyncGitBranch != "main" {
		t.Errorf("SyncGitBranch = %q", cfg.SyncGitBranch)
	}
}

func TestLoadInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		key  string
		val  string
	}{
		{"AckWaitNotDuration", "FLIXTUBE_ACK_WAIT", "soon"},
		{"NegativePersistTimeout", "FLIXTUBE_PERSIST_TIMEOUT", "-5s"},
		{"SyncIntervalNotDuration", "FLIXTUBE_SYNC_INTERVAL", "not-a-duration"},
		{"MaxDeliverNotInt", "FLIXTUBE_MAX_DELIVER", "many"},
		{"MaxDeliverZero", "FLIXTUBE_MAX_DELIVER", "0"},
		{"MaxDeliverBelowUnbounded", "FLIXTUBE_MAX_DELIVER", "-2"},
		{"MissingConfigFile", "FLIXTUBE_CONFIG", "/nonexistent/flixtube.toml"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearAllEnv(t)

	path := filepath.Join(t.TempDir(), "flixtube.toml")
	data := `
database_url = "postgres://file/history"
nats_url = "nats://file:4222"
history_queue = "history"
ack_wait = "45s"
max_deliver = "5"

[sync]
interval = "10m"
s3_bucket = "backups"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLIXTUBE_CONFIG", path)
	t.Setenv("FLIXTUBE_NATS_URL", "nats://env:4222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file/history" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.NATSURL != "nats://env:4222" {
		t.Errorf("NATSURL = %q, env should override file", cfg.NATSURL)
	}
	if cfg.HistoryQueue != "history" {
		t.Errorf("HistoryQueue = %q", cfg.HistoryQueue)
	}
	if cfg.AckWait != 45*time.Second {
		t.Errorf("AckWait = %v", cfg.AckWait)
	}
	if cfg.MaxDeliver != 5 {
		t.Errorf("MaxDeliver = %d", cfg.MaxDeliver)
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.SyncS3Bucket != "backups" {
		t.Errorf("SyncS3Bucket = %q", cfg.SyncS3Bucket)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, default should survive", cfg.HTTPAddr)
	}
}

func TestValidateHistory(t *testing.T) {
	for _, tc := range []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{
			name: "Complete",
			cfg:  Config{DatabaseURL: "postgres://db/history", NATSURL: "nats://n:4222", AckWait: time.Second},
		},
		{
			name:    "MissingEverything",
			cfg:     Config{},
			wantErr: []string{"FLIXTUBE_DATABASE_URL", "FLIXTUBE_NATS_URL", "FLIXTUBE_ACK_WAIT"},
		},
		{
			name:    "MissingNATS",
			cfg:     Config{DatabaseURL: "postgres://db/history", AckWait: time.Second},
			wantErr: []string{"FLIXTUBE_NATS_URL"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ValidateHistory()
			if len(tc.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %s", err, want)
				}
			}
		})
	}
}

func TestValidateStreaming(t *testing.T) {
	if err := (&Config{NATSURL: "nats://n", StorageURL: "http://s"}).ValidateStreaming(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (&Config{StorageURL: "http://s"}).ValidateStreaming(true); err == nil {
		t.Fatal("expected error without NATS URL")
	}
	if err := (&Config{StorageURL: "http://s"}).ValidateStreaming(false); err != nil {
		t.Fatalf("broker URL required without a broker: %v", err)
	}
	if err := (&Config{NATSURL: "nats://n"}).ValidateStreaming(true); err == nil {
		t.Fatal("expected error without storage URL")
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
