package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenlearn/pulse/internal/bus"
	"github.com/lumenlearn/pulse/internal/idgen"
	"github.com/lumenlearn/pulse/internal/model"
	"github.com/lumenlearn/pulse/internal/store"
)

// Sink is the slice of the store the consumer writes through.
type Sink interface {
	UpsertEvent(ctx context.Context, event *model.Event) error
	MarkEventProcessed(ctx context.Context, eventID string, at time.Time) error
	TouchFeatureAdoption(ctx context.Context, userID string, feature model.Feature, ts time.Time) error
	CreateAlertInstance(ctx context.Context, inst *model.AlertInstance) error
}

// Options configures the consumer's polling behavior.
type Options struct {
	QueueName         string
	BatchSize         int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	MaxRetries        int
}

// Stats is a snapshot of the consumer's live counters.
type Stats struct {
	EventsProcessed int64      `json:"events_processed"`
	Errors          int64      `json:"errors"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	QueueDepth      int        `json:"queue_depth"`
	EventsPerMinute int        `json:"events_per_minute"`
	Running         bool       `json:"running"`
}

// Consumer drains the durable queue into canonical event records with
// at-least-once semantics. A message that fails transform or persistence
// is left leased; the visibility timeout returns it for redelivery until
// its delivery count exceeds MaxRetries, at which point it is archived.
type Consumer struct {
	sink  Sink
	queue store.Queue
	pub   bus.Publisher
	opts  Options
	log   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	running         bool
	eventsProcessed int64
	errors          int64
	lastProcessedAt *time.Time
	queueDepth      int
	recent          []time.Time // processed-at timestamps inside the last minute
}

func NewConsumer(sink Sink, queue store.Queue, pub bus.Publisher, opts Options, log *slog.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Consumer{
		sink:  sink,
		queue: queue,
		pub:   pub,
		opts:  opts,
		log:   log,
	}
}

// Start verifies queue connectivity, then launches the poll loop. The
// connectivity probe is the only error Start surfaces; once running, all
// failures are absorbed into counters and log lines.
func (c *Consumer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := c.queue.Metrics(ctx, c.opts.QueueName); err != nil {
		cancel()
		return fmt.Errorf("queue unreachable: %w", err)
	}

	c.cancel = cancel
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return nil
}

// Stop cancels the poll loop and waits for the in-flight batch to finish.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// run polls on a timer that is rearmed only after the current batch fully
// completes, so polls never overlap.
func (c *Consumer) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.pollOnce(ctx)
			timer.Reset(c.opts.PollInterval)
		}
	}
}

func (c *Consumer) pollOnce(ctx context.Context) {
	msgs, err := c.queue.Read(ctx, c.opts.QueueName, c.opts.VisibilityTimeout, c.opts.BatchSize)
	if err != nil {
		c.recordError("queue read", 0, err)
		return
	}

	for _, msg := range msgs {
		if err := c.processMessage(ctx, msg); err != nil {
			c.recordError("process", msg.MsgID, err)
			// ReadCount already includes this delivery; past the retry
			// budget the message goes to the dead-letter archive.
			if msg.ReadCount > c.opts.MaxRetries {
				if aerr := c.queue.Archive(ctx, c.opts.QueueName, msg.MsgID); aerr != nil {
					c.recordError("archive", msg.MsgID, aerr)
				} else {
					c.log.Warn("message archived after retries exhausted",
						"msg_id", msg.MsgID, "read_ct", msg.ReadCount)
				}
			}
			continue
		}
		if err := c.queue.Delete(ctx, c.opts.QueueName, msg.MsgID); err != nil {
			c.recordError("queue delete", msg.MsgID, err)
		}
	}

	if metrics, err := c.queue.Metrics(ctx, c.opts.QueueName); err == nil {
		c.mu.Lock()
		c.queueDepth = metrics.QueueLength
		c.mu.Unlock()
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *model.QueueMessage) error {
	now := time.Now().UTC()

	event, err := Transform(msg.Payload, now)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}

	if err := c.sink.UpsertEvent(ctx, event); err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	if err := c.sink.MarkEventProcessed(ctx, event.EventID, now); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	if event.UserID != "" {
		if feature, ok := AdoptionFeature(event.Type); ok {
			if err := c.sink.TouchFeatureAdoption(ctx, event.UserID, feature, event.Timestamp); err != nil {
				c.log.Error("feature adoption update failed",
					"user_id", event.UserID, "feature", string(feature), "err", err)
			}
		}
	}

	if IsAlertTrigger(event.Type) {
		c.triggerEventAlert(ctx, event)
	}

	c.recordProcessed(now)

	c.publish(ctx, bus.TopicEventProcessed, bus.EventProcessed{Event: event})
	c.publish(ctx, bus.TopicMetricsUpdated, bus.MetricsUpdated{
		EventType: event.Type,
		UserID:    event.UserID,
		Timestamp: event.Timestamp,
	})
	return nil
}

// triggerEventAlert records an alert-history entry for event types that
// alarm on sight (crashes, payment failures). Best effort: a store error
// here must not fail the message.
func (c *Consumer) triggerEventAlert(ctx context.Context, event *model.Event) {
	id, err := idgen.Alert()
	if err != nil {
		c.log.Error("alert id generation failed", "err", err)
		return
	}
	inst := &model.AlertInstance{
		ID:          id,
		RuleName:    "event:" + event.Type,
		Metric:      event.Type,
		Severity:    TriggerSeverity(event.Type),
		Status:      model.AlertActive,
		Message:     fmt.Sprintf("event %s occurred", event.Type),
		TriggeredAt: event.Timestamp,
	}
	if err := c.sink.CreateAlertInstance(ctx, inst); err != nil {
		c.log.Error("event alert creation failed", "event_type", event.Type, "err", err)
		return
	}
	c.publish(ctx, bus.TopicAlertTriggered, bus.AlertTriggered{Alert: inst, CurrentValue: 1})
}

func (c *Consumer) publish(ctx context.Context, topic string, payload any) {
	if err := c.pub.Publish(ctx, topic, payload); err != nil {
		c.log.Error("publish failed", "topic", topic, "err", err)
	}
}

func (c *Consumer) recordProcessed(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventsProcessed++
	t := at
	c.lastProcessedAt = &t
	c.recent = append(c.recent, at)
	c.pruneRecentLocked(at)
}

func (c *Consumer) recordError(stage string, msgID int64, err error) {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
	c.log.Error("consumer error", "stage", stage, "msg_id", msgID, "err", err)
	c.publish(context.Background(), bus.TopicConsumerError, bus.ConsumerError{
		Stage:   stage,
		Message: err.Error(),
		MsgID:   msgID,
	})
}

// pruneRecentLocked drops timestamps older than one minute. Callers hold mu.
func (c *Consumer) pruneRecentLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(c.recent) && c.recent[i].Before(cutoff) {
		i++
	}
	c.recent = c.recent[i:]
}

// Stats returns a snapshot of the live counters.
func (c *Consumer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneRecentLocked(time.Now())
	return Stats{
		EventsProcessed: c.eventsProcessed,
		Errors:          c.errors,
		LastProcessedAt: c.lastProcessedAt,
		QueueDepth:      c.queueDepth,
		EventsPerMinute: len(c.recent),
		Running:         c.running,
	}
}

// QueueDepth reports the queue length observed after the last batch.
func (c *Consumer) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueDepth
}

// EventsPerMinute reports how many events were processed in the last minute.
func (c *Consumer) EventsPerMinute() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneRecentLocked(time.Now())
	return len(c.recent)
}
