// Package bus defines the pipeline's event topics and payloads, and the
// Publisher/Subscriber interfaces for emitting and receiving them.
package bus

import (
	"context"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

// Topic constants
const (
	TopicEventProcessed = "pulse.event.processed"
	TopicMetricsUpdated = "pulse.metrics.updated"
	TopicAlertTriggered = "pulse.alert.triggered"
	TopicAlertResolved  = "pulse.alert.resolved"
	TopicConsumerError  = "pulse.consumer.error"
)

// Payload types

type EventProcessed struct {
	Event *model.Event `json:"event"`
}

type MetricsUpdated struct {
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AlertTriggered struct {
	Alert        *model.AlertInstance `json:"alert"`
	CurrentValue float64              `json:"current_value"`
}

type AlertResolved struct {
	Alert *model.AlertInstance `json:"alert"`
}

type ConsumerError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	MsgID   int64  `json:"msg_id,omitempty"`
}

// Publisher is the interface for emitting pipeline events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives pipeline events.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
