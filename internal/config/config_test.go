package config

import (
	"testing"
	"time"
)

// pulseEnvVars lists every recognized env var so tests start clean.
var pulseEnvVars = []string{
	"PULSE_DATABASE_URL", "PULSE_HTTP_ADDR", "PULSE_NATS_URL",
	"PULSE_QUEUE_NAME", "PULSE_BATCH_SIZE", "PULSE_VISIBILITY_TIMEOUT",
	"PULSE_POLL_INTERVAL", "PULSE_MAX_RETRIES", "PULSE_ALERT_CHECK_INTERVAL",
	"PULSE_ALERT_RULES_FILE", "PULSE_SMTP_ADDR", "PULSE_SMTP_FROM",
	"PULSE_ALERT_EMAIL_TO", "PULSE_ALERT_WEBHOOK_URL", "PULSE_SLACK_WEBHOOK_URL",
	"PULSE_SNAPSHOT_INTERVAL", "PULSE_SNAPSHOT_S3_BUCKET", "PULSE_SNAPSHOT_S3_KEY",
	"PULSE_SNAPSHOT_S3_REGION", "PULSE_SNAPSHOT_S3_ENDPOINT",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range pulseEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	clearAllEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when PULSE_DATABASE_URL is unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("PULSE_DATABASE_URL", "postgres://localhost/pulse")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.QueueName != "analytics_events" {
		t.Errorf("QueueName = %q, want analytics_events", cfg.QueueName)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.VisibilityTimeout != 30*time.Second {
		t.Errorf("VisibilityTimeout = %v, want 30s", cfg.VisibilityTimeout)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.AlertCheckInterval != 60*time.Second {
		t.Errorf("AlertCheckInterval = %v, want 60s", cfg.AlertCheckInterval)
	}
	if cfg.SnapshotInterval != 0 {
		t.Errorf("SnapshotInterval = %v, want 0 (disabled)", cfg.SnapshotInterval)
	}
	if cfg.SnapshotS3Key != "pulse/snapshot.jsonl" {
		t.Errorf("SnapshotS3Key = %q", cfg.SnapshotS3Key)
	}
	if cfg.SnapshotS3Region != "us-east-1" {
		t.Errorf("SnapshotS3Region = %q", cfg.SnapshotS3Region)
	}
}

func TestLoadCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("PULSE_DATABASE_URL", "postgres://db:5432/pulse")
	t.Setenv("PULSE_HTTP_ADDR", ":3000")
	t.Setenv("PULSE_NATS_URL", "nats://localhost:4222")
	t.Setenv("PULSE_QUEUE_NAME", "staging_events")
	t.Setenv("PULSE_BATCH_SIZE", "25")
	t.Setenv("PULSE_VISIBILITY_TIMEOUT", "1m")
	t.Setenv("PULSE_POLL_INTERVAL", "500ms")
	t.Setenv("PULSE_MAX_RETRIES", "5")
	t.Setenv("PULSE_ALERT_CHECK_INTERVAL", "30s")
	t.Setenv("PULSE_SNAPSHOT_INTERVAL", "15m")
	t.Setenv("PULSE_SNAPSHOT_S3_BUCKET", "pulse-backups")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL = %q", cfg.NATSURL)
	}
	if cfg.QueueName != "staging_events" {
		t.Errorf("QueueName = %q", cfg.QueueName)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.VisibilityTimeout != time.Minute {
		t.Errorf("VisibilityTimeout = %v", cfg.VisibilityTimeout)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.AlertCheckInterval != 30*time.Second {
		t.Errorf("AlertCheckInterval = %v", cfg.AlertCheckInterval)
	}
	if cfg.SnapshotInterval != 15*time.Minute {
		t.Errorf("SnapshotInterval = %v", cfg.SnapshotInterval)
	}
	if cfg.SnapshotS3Bucket != "pulse-backups" {
		t.Errorf("SnapshotS3Bucket = %q", cfg.SnapshotS3Bucket)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	for _, tc := range []struct {
		key string
		val string
	}{
		{"PULSE_BATCH_SIZE", "ten"},
		{"PULSE_MAX_RETRIES", "3.5"},
		{"PULSE_VISIBILITY_TIMEOUT", "30"},
		{"PULSE_POLL_INTERVAL", "soon"},
		{"PULSE_ALERT_CHECK_INTERVAL", "minutely"},
		{"PULSE_SNAPSHOT_INTERVAL", "-"},
	} {
		t.Run(tc.key, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv("PULSE_DATABASE_URL", "postgres://localhost/pulse")
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
