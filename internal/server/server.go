// Package server exposes the read-only HTTP query surface and the SSE
// notification stream consumed by the dashboard.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenlearn/pulse/internal/aggregate"
	"github.com/lumenlearn/pulse/internal/bus"
	"github.com/lumenlearn/pulse/internal/ingest"
	"github.com/lumenlearn/pulse/internal/model"
	"github.com/lumenlearn/pulse/internal/schedule"
)

// MetricsProvider serves the composite aggregated-metrics view.
type MetricsProvider interface {
	GetAggregatedMetrics(ctx context.Context, days int) (*aggregate.AggregatedMetrics, error)
}

// AlertManager exposes the alert operations reachable over HTTP.
type AlertManager interface {
	GetActiveAlerts(ctx context.Context) ([]*model.AlertInstance, error)
	AcknowledgeAlert(ctx context.Context, id string) error
	GetAlertStatistics(ctx context.Context, since time.Time) (*model.AlertStats, error)
}

// ConsumerStats reports the queue consumer's live counters.
type ConsumerStats interface {
	Stats() ingest.Stats
}

// SchedulerStatus reports the aggregation scheduler's job state.
type SchedulerStatus interface {
	Status() schedule.Status
}

// PulseServer wires the pipeline services to the HTTP handlers and fans
// bus notifications out to SSE clients.
type PulseServer struct {
	metrics  MetricsProvider
	alerts   AlertManager
	consumer ConsumerStats
	sched    SchedulerStatus
	log      *slog.Logger

	sseHub *sseHub

	mu      sync.Mutex
	cancels []func()
	wg      sync.WaitGroup
}

func NewPulseServer(metrics MetricsProvider, alerts AlertManager, consumer ConsumerStats, sched SchedulerStatus, log *slog.Logger) *PulseServer {
	return &PulseServer{
		metrics:  metrics,
		alerts:   alerts,
		consumer: consumer,
		sched:    sched,
		log:      log,
		sseHub:   newSSEHub(),
	}
}

// AttachBus subscribes to each topic on the bus and relays its payloads
// to connected SSE clients. Call DetachBus during shutdown.
func (s *PulseServer) AttachBus(sub bus.Subscriber, topics ...string) error {
	for _, topic := range topics {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		s.mu.Lock()
		s.cancels = append(s.cancels, cancel)
		s.mu.Unlock()

		s.wg.Add(1)
		go func(topic string, ch <-chan []byte) {
			defer s.wg.Done()
			for payload := range ch {
				s.sseHub.broadcast(topic, payload)
			}
		}(topic, ch)
	}
	return nil
}

// DetachBus cancels every bus subscription and waits for the relay
// goroutines to drain.
func (s *PulseServer) DetachBus() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}
