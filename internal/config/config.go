package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // PULSE_DATABASE_URL (required)
	HTTPAddr    string // PULSE_HTTP_ADDR (default ":8080")
	NATSURL     string // PULSE_NATS_URL (optional, empty = no notifications)

	// Queue consumer settings
	QueueName         string        // PULSE_QUEUE_NAME (default "analytics_events")
	BatchSize         int           // PULSE_BATCH_SIZE (default 10)
	VisibilityTimeout time.Duration // PULSE_VISIBILITY_TIMEOUT (default 30s)
	PollInterval      time.Duration // PULSE_POLL_INTERVAL (default 5s)
	MaxRetries        int           // PULSE_MAX_RETRIES (default 3)

	// Alerting
	AlertCheckInterval time.Duration // PULSE_ALERT_CHECK_INTERVAL (default 60s)
	AlertRulesFile     string        // PULSE_ALERT_RULES_FILE (optional TOML seed)
	SMTPAddr           string        // PULSE_SMTP_ADDR (host:port; enables email channel)
	SMTPFrom           string        // PULSE_SMTP_FROM
	AlertEmailTo       string        // PULSE_ALERT_EMAIL_TO (comma-separated)
	AlertWebhookURL    string        // PULSE_ALERT_WEBHOOK_URL (enables webhook channel)
	SlackWebhookURL    string        // PULSE_SLACK_WEBHOOK_URL (enables slack channel)

	// Snapshot export
	SnapshotInterval   time.Duration // PULSE_SNAPSHOT_INTERVAL (default 0 = disabled)
	SnapshotS3Bucket   string        // PULSE_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Key      string        // PULSE_SNAPSHOT_S3_KEY (default "pulse/snapshot.jsonl")
	SnapshotS3Region   string        // PULSE_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Endpoint string        // PULSE_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:        os.Getenv("PULSE_DATABASE_URL"),
		HTTPAddr:           envOrDefault("PULSE_HTTP_ADDR", ":8080"),
		NATSURL:            os.Getenv("PULSE_NATS_URL"),
		QueueName:          envOrDefault("PULSE_QUEUE_NAME", "analytics_events"),
		AlertRulesFile:     os.Getenv("PULSE_ALERT_RULES_FILE"),
		SMTPAddr:           os.Getenv("PULSE_SMTP_ADDR"),
		SMTPFrom:           os.Getenv("PULSE_SMTP_FROM"),
		AlertEmailTo:       os.Getenv("PULSE_ALERT_EMAIL_TO"),
		AlertWebhookURL:    os.Getenv("PULSE_ALERT_WEBHOOK_URL"),
		SlackWebhookURL:    os.Getenv("PULSE_SLACK_WEBHOOK_URL"),
		SnapshotS3Bucket:   os.Getenv("PULSE_SNAPSHOT_S3_BUCKET"),
		SnapshotS3Key:      envOrDefault("PULSE_SNAPSHOT_S3_KEY", "pulse/snapshot.jsonl"),
		SnapshotS3Region:   envOrDefault("PULSE_SNAPSHOT_S3_REGION", "us-east-1"),
		SnapshotS3Endpoint: os.Getenv("PULSE_SNAPSHOT_S3_ENDPOINT"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("PULSE_DATABASE_URL is required")
	}

	var err error
	if c.BatchSize, err = envInt("PULSE_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if c.MaxRetries, err = envInt("PULSE_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if c.VisibilityTimeout, err = envDuration("PULSE_VISIBILITY_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.PollInterval, err = envDuration("PULSE_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if c.AlertCheckInterval, err = envDuration("PULSE_ALERT_CHECK_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if c.SnapshotInterval, err = envDuration("PULSE_SNAPSHOT_INTERVAL", 0); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
