// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/lumenlearn/pulse/internal/model"
	"github.com/lumenlearn/pulse/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
// All writes are idempotent upserts keyed by a stable business key, so
// overlapping writers converge instead of corrupting state; no explicit
// transactions are exposed.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Events

func (s *PostgresStore) UpsertEvent(ctx context.Context, event *model.Event) error {
	return queryUpsertEvent(ctx, s.db, event)
}

func (s *PostgresStore) MarkEventProcessed(ctx context.Context, eventID string, at time.Time) error {
	return queryMarkEventProcessed(ctx, s.db, eventID, at)
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, filter)
}

func (s *PostgresStore) CountEvents(ctx context.Context, filter model.EventFilter) (int, error) {
	return queryCountEvents(ctx, s.db, filter)
}

func (s *PostgresStore) TouchFeatureAdoption(ctx context.Context, userID string, feature model.Feature, ts time.Time) error {
	return queryTouchFeatureAdoption(ctx, s.db, userID, feature, ts)
}

func (s *PostgresStore) GetFeatureAdoption(ctx context.Context, userID string) (*model.FeatureAdoption, error) {
	return queryGetFeatureAdoption(ctx, s.db, userID)
}

// Activity

func (s *PostgresStore) DistinctUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	return queryDistinctUsers(ctx, s.db, start, end)
}

func (s *PostgresStore) EarliestEventTimes(ctx context.Context, userIDs []string) (map[string]time.Time, error) {
	return queryEarliestEventTimes(ctx, s.db, userIDs)
}

func (s *PostgresStore) CountUsersActiveBetween(ctx context.Context, userIDs []string, start, end time.Time) (int, error) {
	return queryCountUsersActiveBetween(ctx, s.db, userIDs, start, end)
}

func (s *PostgresStore) AvgSessionDuration(ctx context.Context, start, end time.Time) (float64, error) {
	return queryAvgSessionDuration(ctx, s.db, start, end)
}

func (s *PostgresStore) CountEventsByCategory(ctx context.Context, start, end time.Time) (map[model.Category]int, error) {
	return queryCountEventsByCategory(ctx, s.db, start, end)
}

func (s *PostgresStore) AvgResponseTime(ctx context.Context, start, end time.Time) (float64, error) {
	return queryAvgResponseTime(ctx, s.db, start, end)
}

func (s *PostgresStore) ErrorRate(ctx context.Context, start, end time.Time) (float64, error) {
	return queryErrorRate(ctx, s.db, start, end)
}

// Summaries

func (s *PostgresStore) UpsertDailyActive(ctx context.Context, row *model.DailyActive) error {
	return queryUpsertDailyActive(ctx, s.db, row)
}

func (s *PostgresStore) UpsertWeeklyActive(ctx context.Context, row *model.WeeklyActive) error {
	return queryUpsertWeeklyActive(ctx, s.db, row)
}

func (s *PostgresStore) UpsertMonthlyActive(ctx context.Context, row *model.MonthlyActive) error {
	return queryUpsertMonthlyActive(ctx, s.db, row)
}

func (s *PostgresStore) ListDailyActive(ctx context.Context, start, end time.Time) ([]*model.DailyActive, error) {
	return queryListDailyActive(ctx, s.db, start, end)
}

func (s *PostgresStore) ListWeeklyActive(ctx context.Context, start, end time.Time) ([]*model.WeeklyActive, error) {
	return queryListWeeklyActive(ctx, s.db, start, end)
}

func (s *PostgresStore) ListMonthlyActive(ctx context.Context, start, end time.Time) ([]*model.MonthlyActive, error) {
	return queryListMonthlyActive(ctx, s.db, start, end)
}

func (s *PostgresStore) UpsertRetentionCohort(ctx context.Context, row *model.RetentionCohort) error {
	return queryUpsertRetentionCohort(ctx, s.db, row)
}

func (s *PostgresStore) ListRetentionCohorts(ctx context.Context, period model.PeriodType, since time.Time) ([]*model.RetentionCohort, error) {
	return queryListRetentionCohorts(ctx, s.db, period, since)
}

func (s *PostgresStore) LatestRetentionCohort(ctx context.Context, period model.PeriodType) ([]*model.RetentionCohort, error) {
	return queryLatestRetentionCohort(ctx, s.db, period)
}

func (s *PostgresStore) InsertTimeSeriesPoint(ctx context.Context, point *model.TimeSeriesPoint) error {
	return queryInsertTimeSeriesPoint(ctx, s.db, point)
}

func (s *PostgresStore) ListTimeSeriesPoints(ctx context.Context, metric string, period model.PeriodType, start, end time.Time) ([]*model.TimeSeriesPoint, error) {
	return queryListTimeSeriesPoints(ctx, s.db, metric, period, start, end)
}

func (s *PostgresStore) LatestTimeSeriesValue(ctx context.Context, metric string) (float64, bool, error) {
	return queryLatestTimeSeriesValue(ctx, s.db, metric)
}

// Alerts

func (s *PostgresStore) ListAlertRules(ctx context.Context, enabledOnly bool) ([]*model.AlertRule, error) {
	return queryListAlertRules(ctx, s.db, enabledOnly)
}

func (s *PostgresStore) UpsertAlertRule(ctx context.Context, rule *model.AlertRule) error {
	return queryUpsertAlertRule(ctx, s.db, rule)
}

func (s *PostgresStore) CreateAlertInstance(ctx context.Context, inst *model.AlertInstance) error {
	return queryCreateAlertInstance(ctx, s.db, inst)
}

func (s *PostgresStore) UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus, at time.Time) error {
	return queryUpdateAlertStatus(ctx, s.db, id, status, at)
}

func (s *PostgresStore) ListAlertInstances(ctx context.Context, status model.AlertStatus, limit int) ([]*model.AlertInstance, error) {
	return queryListAlertInstances(ctx, s.db, status, limit)
}

func (s *PostgresStore) AlertStatistics(ctx context.Context, since time.Time) (*model.AlertStats, error) {
	return queryAlertStatistics(ctx, s.db, since)
}

// Queue

func (s *PostgresStore) Send(ctx context.Context, queue string, payload json.RawMessage) (int64, error) {
	return queryQueueSend(ctx, s.db, queue, payload)
}

func (s *PostgresStore) Read(ctx context.Context, queue string, vt time.Duration, limit int) ([]*model.QueueMessage, error) {
	return queryQueueRead(ctx, s.db, queue, vt, limit)
}

func (s *PostgresStore) Delete(ctx context.Context, queue string, msgID int64) error {
	return queryQueueDelete(ctx, s.db, queue, msgID)
}

func (s *PostgresStore) Archive(ctx context.Context, queue string, msgID int64) error {
	return queryQueueArchive(ctx, s.db, queue, msgID)
}

func (s *PostgresStore) Metrics(ctx context.Context, queue string) (*model.QueueMetrics, error) {
	return queryQueueMetrics(ctx, s.db, queue)
}
