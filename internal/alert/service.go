// Package alert evaluates threshold rules against live metric values and
// tracks alert lifecycle with hysteresis: one trigger when a condition
// first becomes true, one resolution when it first becomes false again.
package alert

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

// Store is the slice of the persistence layer the service reads metrics
// from and writes alert history to.
type Store interface {
	store.AlertStore
	CountEvents(ctx context.Context, filter model.EventFilter) (int, error)
	DistinctUsers(ctx context.Context, start, end time.Time) ([]string, error)
	AvgResponseTime(ctx context.Context, start, end time.Time) (float64, error)
	ErrorRate(ctx context.Context, start, end time.Time) (float64, error)
	LatestTimeSeriesValue(ctx context.Context, metric string) (float64, bool, error)
}

// StatsProvider surfaces the consumer's live counters for the queue_depth
// and events_per_minute metrics.
type StatsProvider interface {
	QueueDepth() int
	EventsPerMinute() int
}

// Service runs the alert check loop. The active index maps
// "ruleID:metric" to the open alert instance; it admits one instance per
// pair, which is what suppresses duplicate triggers across ticks.
type Service struct {
	store     Store
	stats     StatsProvider
	pub       bus.Publisher
	notifiers map[string]Notifier
	interval  time.Duration
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	rules  []*model.AlertRule
	active map[string]*model.AlertInstance
}

func NewService(s Store, stats StatsProvider, pub bus.Publisher, notifiers map[string]Notifier, interval time.Duration, log *slog.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		store:     s,
		stats:     stats,
		pub:       pub,
		notifiers: notifiers,
		interval:  interval,
		log:       log,
		active:    make(map[string]*model.AlertInstance),
	}
}

// LoadRules refreshes the in-memory rule set from the store (enabled
// rules only).
func (s *Service) LoadRules(ctx context.Context) error {
	rules, err := s.store.ListAlertRules(ctx, true)
	if err != nil {
		return fmt.Errorf("loading alert rules: %w", err)
	}
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	s.log.Info("alert rules loaded", "count", len(rules))
	return nil
}

// Start loads rules and launches the periodic check loop. A rule-load
// failure is fatal to Start; steady-state failures are logged and the
// loop continues.
func (s *Service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.LoadRules(ctx); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CheckAlerts(ctx)
			}
		}
	}()
	return nil
}

// Stop cancels the check loop and waits for an in-flight check to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func indexKey(ruleID int64, metric string) string {
	return fmt.Sprintf("%d:%s", ruleID, metric)
}

// CheckAlerts evaluates every loaded rule once. A metric that cannot be
// resolved skips only that rule's evaluation for this tick.
func (s *Service) CheckAlerts(ctx context.Context) {
	s.mu.Lock()
	rules := s.rules
	s.mu.Unlock()

	for _, rule := range rules {
		value, err := s.resolveMetric(ctx, rule)
		if err != nil {
			s.log.Error("metric resolution failed", "rule", rule.Name, "metric", rule.Metric, "err", err)
			continue
		}

		conditionMet := rule.Condition.Eval(value, rule.Threshold)
		key := indexKey(rule.ID, rule.Metric)

		s.mu.Lock()
		existing, isActive := s.active[key]
		s.mu.Unlock()

		switch {
		case conditionMet && !isActive:
			s.trigger(ctx, rule, value, key)
		case !conditionMet && isActive:
			s.resolve(ctx, existing, key)
		}
	}
}

func (s *Service) trigger(ctx context.Context, rule *model.AlertRule, value float64, key string) {
	id, err := idgen.Alert()
	if err != nil {
		s.log.Error("alert id generation failed", "err", err)
		return
	}
	inst := &model.AlertInstance{
		ID:          id,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Metric:      rule.Metric,
		Value:       value,
		Threshold:   rule.Threshold,
		Severity:    rule.Severity,
		Status:      model.AlertActive,
		Message:     fmt.Sprintf("%s is %.2f (threshold %s %.2f)", rule.Metric, value, rule.Condition, rule.Threshold),
		TriggeredAt: time.Now().UTC(),
	}
	if err := s.store.CreateAlertInstance(ctx, inst); err != nil {
		s.log.Error("alert creation failed", "rule", rule.Name, "err", err)
		return
	}

	s.mu.Lock()
	s.active[key] = inst
	s.mu.Unlock()

	for _, channel := range rule.Channels {
		notifier, ok := s.notifiers[channel]
		if !ok {
			s.log.Warn("unknown notification channel", "rule", rule.Name, "channel", channel)
			continue
		}
		if err := notifier.Send(ctx, inst); err != nil {
			s.log.Error("notification failed", "rule", rule.Name, "channel", channel, "err", err)
		}
	}

	s.publish(ctx, bus.TopicAlertTriggered, bus.AlertTriggered{Alert: inst, CurrentValue: value})
	s.log.Warn("alert triggered", "rule", rule.Name, "metric", rule.Metric, "value", value, "threshold", rule.Threshold)
}

func (s *Service) resolve(ctx context.Context, inst *model.AlertInstance, key string) {
	now := time.Now().UTC()
	if err := s.store.UpdateAlertStatus(ctx, inst.ID, model.AlertResolved, now); err != nil {
		s.log.Error("alert resolution failed", "alert", inst.ID, "err", err)
		return
	}

	inst.Status = model.AlertResolved
	inst.ResolvedAt = &now

	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()

	s.publish(ctx, bus.TopicAlertResolved, bus.AlertResolved{Alert: inst})
	s.log.Info("alert resolved", "rule", inst.RuleName, "metric", inst.Metric)
}

// resolveMetric computes the current value of a rule's metric over its
// evaluation window.
func (s *Service) resolveMetric(ctx context.Context, rule *model.AlertRule) (float64, error) {
	now := time.Now().UTC()
	start := now.Add(-time.Duration(rule.WindowMinutes) * time.Minute)

	switch rule.Metric {
	case "error_rate":
		return s.store.ErrorRate(ctx, start, now)
	case "response_time":
		return s.store.AvgResponseTime(ctx, start, now)
	case "active_users":
		users, err := s.store.DistinctUsers(ctx, start, now)
		if err != nil {
			return 0, err
		}
		return float64(len(users)), nil
	case "queue_depth":
		return float64(s.stats.QueueDepth()), nil
	case "events_per_minute":
		return float64(s.stats.EventsPerMinute()), nil
	case "failed_logins":
		count, err := s.store.CountEvents(ctx, model.EventFilter{
			Start: start,
			End:   now,
			Types: []string{"login_failed"},
		})
		if err != nil {
			return 0, err
		}
		return float64(count), nil
	default:
		value, ok, err := s.store.LatestTimeSeriesValue(ctx, rule.Metric)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("no time-series data for metric %q", rule.Metric)
		}
		return value, nil
	}
}

// GetActiveAlerts returns the currently active alert-history rows.
func (s *Service) GetActiveAlerts(ctx context.Context) ([]*model.AlertInstance, error) {
	return s.store.ListAlertInstances(ctx, model.AlertActive, 0)
}

// AcknowledgeAlert marks an alert acknowledged. The alert stays in the
// active index so the same rule does not re-trigger while acknowledged.
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if err := s.store.UpdateAlertStatus(ctx, id, model.AlertAcknowledged, now); err != nil {
		return err
	}
	s.mu.Lock()
	for _, inst := range s.active {
		if inst.ID == id {
			inst.Status = model.AlertAcknowledged
			inst.AcknowledgedAt = &now
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// GetAlertStatistics returns counts by status and severity over a
// lookback window.
func (s *Service) GetAlertStatistics(ctx context.Context, since time.Time) (*model.AlertStats, error) {
	return s.store.AlertStatistics(ctx, since)
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if err := s.pub.Publish(ctx, topic, payload); err != nil {
		s.log.Error("publish failed", "topic", topic, "err", err)
	}
}
