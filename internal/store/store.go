package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

// EventStore persists canonical event records and feature adoption.
type EventStore interface {
	// UpsertEvent inserts an event, or leaves the existing row untouched
	// when one with the same event_id is already present.
	UpsertEvent(ctx context.Context, event *model.Event) error
	MarkEventProcessed(ctx context.Context, eventID string, at time.Time) error
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)
	CountEvents(ctx context.Context, filter model.EventFilter) (int, error)

	// TouchFeatureAdoption sets the feature column for the user to ts
	// only if it is currently null (first-occurrence wins).
	TouchFeatureAdoption(ctx context.Context, userID string, feature model.Feature, ts time.Time) error
	GetFeatureAdoption(ctx context.Context, userID string) (*model.FeatureAdoption, error)
}

// ActivityStore answers the user-activity questions behind DAU/WAU/MAU,
// cohort retention, and alert metric resolution.
type ActivityStore interface {
	DistinctUsers(ctx context.Context, start, end time.Time) ([]string, error)
	// EarliestEventTimes returns, per user, the timestamp of that user's
	// first-ever event. Users with no events are absent from the map.
	EarliestEventTimes(ctx context.Context, userIDs []string) (map[string]time.Time, error)
	CountUsersActiveBetween(ctx context.Context, userIDs []string, start, end time.Time) (int, error)
	AvgSessionDuration(ctx context.Context, start, end time.Time) (float64, error)
	CountEventsByCategory(ctx context.Context, start, end time.Time) (map[model.Category]int, error)
	AvgResponseTime(ctx context.Context, start, end time.Time) (float64, error)
	// ErrorRate returns failed events as a percentage of all events in
	// the window (zero when the window is empty).
	ErrorRate(ctx context.Context, start, end time.Time) (float64, error)
}

// SummaryStore persists and reads the aggregate tables.
type SummaryStore interface {
	UpsertDailyActive(ctx context.Context, row *model.DailyActive) error
	UpsertWeeklyActive(ctx context.Context, row *model.WeeklyActive) error
	UpsertMonthlyActive(ctx context.Context, row *model.MonthlyActive) error
	ListDailyActive(ctx context.Context, start, end time.Time) ([]*model.DailyActive, error)
	ListWeeklyActive(ctx context.Context, start, end time.Time) ([]*model.WeeklyActive, error)
	ListMonthlyActive(ctx context.Context, start, end time.Time) ([]*model.MonthlyActive, error)

	UpsertRetentionCohort(ctx context.Context, row *model.RetentionCohort) error
	ListRetentionCohorts(ctx context.Context, period model.PeriodType, since time.Time) ([]*model.RetentionCohort, error)
	// LatestRetentionCohort returns all offset rows of the most recently
	// dated cohort for the period, or an empty slice when none exist.
	LatestRetentionCohort(ctx context.Context, period model.PeriodType) ([]*model.RetentionCohort, error)

	InsertTimeSeriesPoint(ctx context.Context, point *model.TimeSeriesPoint) error
	ListTimeSeriesPoints(ctx context.Context, metric string, period model.PeriodType, start, end time.Time) ([]*model.TimeSeriesPoint, error)
	LatestTimeSeriesValue(ctx context.Context, metric string) (float64, bool, error)
}

// AlertStore persists alert rules and alert history.
type AlertStore interface {
	ListAlertRules(ctx context.Context, enabledOnly bool) ([]*model.AlertRule, error)
	// UpsertAlertRule inserts or updates a rule keyed by name.
	UpsertAlertRule(ctx context.Context, rule *model.AlertRule) error
	CreateAlertInstance(ctx context.Context, inst *model.AlertInstance) error
	UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus, at time.Time) error
	ListAlertInstances(ctx context.Context, status model.AlertStatus, limit int) ([]*model.AlertInstance, error)
	AlertStatistics(ctx context.Context, since time.Time) (*model.AlertStats, error)
}

// Queue exposes the durable-queue primitives. Read leases messages for
// the visibility timeout; a leased message that is not deleted before
// the lease expires becomes visible again for redelivery.
type Queue interface {
	Send(ctx context.Context, queue string, payload json.RawMessage) (int64, error)
	Read(ctx context.Context, queue string, vt time.Duration, limit int) ([]*model.QueueMessage, error)
	Delete(ctx context.Context, queue string, msgID int64) error
	// Archive moves a message to the dead-letter archive.
	Archive(ctx context.Context, queue string, msgID int64) error
	Metrics(ctx context.Context, queue string) (*model.QueueMetrics, error)
}

// Store is the full persistence interface of the pipeline.
type Store interface {
	EventStore
	ActivityStore
	SummaryStore
	AlertStore
	Queue

	Close() error
}
