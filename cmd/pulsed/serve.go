package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenlearn/pulse/internal/aggregate"
	"github.com/lumenlearn/pulse/internal/alert"
	"github.com/lumenlearn/pulse/internal/bus"
	"github.com/lumenlearn/pulse/internal/config"
	"github.com/lumenlearn/pulse/internal/ingest"
	"github.com/lumenlearn/pulse/internal/retention"
	"github.com/lumenlearn/pulse/internal/schedule"
	"github.com/lumenlearn/pulse/internal/server"
	"github.com/lumenlearn/pulse/internal/snapshot"
	"github.com/lumenlearn/pulse/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline: queue consumer, scheduler, alert engine, and HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Event publisher for downstream notifications.
		var publisher bus.Publisher
		var subscriber bus.Subscriber
		if cfg.NATSURL != "" {
			pub, err := bus.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			sub, err := bus.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				publisher.Close()
				store.Close()
				return err
			}
			subscriber = sub
			logger.Info("notifications enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &bus.NoopPublisher{}
			logger.Info("notifications disabled (PULSE_NATS_URL not set)")
		}

		// Seed alert rules from the TOML file, if configured.
		if cfg.AlertRulesFile != "" {
			n, err := alert.SeedRules(cmd.Context(), store, cfg.AlertRulesFile)
			if err != nil {
				logger.Error("alert rule seeding failed", "file", cfg.AlertRulesFile, "err", err)
			} else {
				logger.Info("alert rules seeded", "file", cfg.AlertRulesFile, "count", n)
			}
		}

		// Queue consumer.
		consumer := ingest.NewConsumer(store, store, publisher, ingest.Options{
			QueueName:         cfg.QueueName,
			BatchSize:         cfg.BatchSize,
			VisibilityTimeout: cfg.VisibilityTimeout,
			PollInterval:      cfg.PollInterval,
			MaxRetries:        cfg.MaxRetries,
		}, logger)
		if err := consumer.Start(); err != nil {
			publisher.Close()
			store.Close()
			return err
		}

		// Aggregation, retention, and the scheduler that drives them.
		aggService := aggregate.NewService(store, logger)
		retService := retention.NewService(store, retention.Options{}, logger)
		scheduler := schedule.New(aggService, retService, logger)
		if err := scheduler.Start(); err != nil {
			consumer.Stop()
			publisher.Close()
			store.Close()
			return err
		}

		// Alert engine with the configured notification channels.
		notifiers := buildNotifiers(cfg, logger)
		alertService := alert.NewService(store, consumer, publisher, notifiers, cfg.AlertCheckInterval, logger)
		if err := alertService.Start(); err != nil {
			scheduler.Stop()
			consumer.Stop()
			publisher.Close()
			store.Close()
			return err
		}

		// Snapshot export, when an interval and S3 bucket are configured.
		var snapScheduler *snapshot.Scheduler
		if cfg.SnapshotInterval > 0 && cfg.SnapshotS3Bucket != "" {
			dest, err := snapshot.NewS3Destination(
				context.Background(),
				cfg.SnapshotS3Bucket,
				cfg.SnapshotS3Key,
				cfg.SnapshotS3Region,
				cfg.SnapshotS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 snapshot destination", "err", err)
			} else {
				snapScheduler = snapshot.NewScheduler(store, []snapshot.Destination{dest}, cfg.SnapshotInterval, logger)
				snapScheduler.Start()
				logger.Info("snapshot scheduler started", "bucket", cfg.SnapshotS3Bucket, "interval", cfg.SnapshotInterval)
			}
		}

		// HTTP query surface and SSE stream.
		pulseServer := server.NewPulseServer(aggService, alertService, consumer, scheduler, logger)
		if subscriber != nil {
			err := pulseServer.AttachBus(subscriber,
				bus.TopicEventProcessed,
				bus.TopicMetricsUpdated,
				bus.TopicAlertTriggered,
				bus.TopicAlertResolved,
				bus.TopicConsumerError,
			)
			if err != nil {
				logger.Error("SSE bus bridge failed", "err", err)
			}
		}

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: pulseServer.NewHTTPHandler(),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("pulse pipeline started",
			"http_addr", cfg.HTTPAddr,
			"queue", cfg.QueueName,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown, in dependency order.
		pulseServer.DetachBus()
		if subscriber != nil {
			subscriber.Close()
		}

		if snapScheduler != nil {
			snapScheduler.Stop()
			logger.Info("snapshot scheduler stopped")
		}

		alertService.Stop()
		logger.Info("alert engine stopped")

		scheduler.Stop()
		consumer.Stop()
		logger.Info("consumer stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// buildNotifiers assembles the notification channels enabled by config.
func buildNotifiers(cfg *config.Config, logger *slog.Logger) map[string]alert.Notifier {
	notifiers := make(map[string]alert.Notifier)
	if cfg.SMTPAddr != "" && cfg.AlertEmailTo != "" {
		var to []string
		for _, addr := range strings.Split(cfg.AlertEmailTo, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				to = append(to, addr)
			}
		}
		notifiers["email"] = &alert.EmailNotifier{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom, To: to}
		logger.Info("email alert channel enabled", "smtp", cfg.SMTPAddr, "recipients", len(to))
	}
	if cfg.AlertWebhookURL != "" {
		notifiers["webhook"] = &alert.WebhookNotifier{URL: cfg.AlertWebhookURL}
		logger.Info("webhook alert channel enabled")
	}
	if cfg.SlackWebhookURL != "" {
		notifiers["slack"] = &alert.SlackNotifier{WebhookURL: cfg.SlackWebhookURL}
		logger.Info("slack alert channel enabled")
	}
	return notifiers
}
