// Package aggregate computes and persists point-in-time summaries from
// the event store: DAU/WAU/MAU rollups, retention cohorts, and append-only
// time-series metric points.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ammario/tlru"

	"github.com/lumenlearn/pulse/internal/model"
	"github.com/lumenlearn/pulse/internal/store"
)

// retentionOffsets lists the offsets computed per cohort, by period type.
var retentionOffsets = map[model.PeriodType][]int{
	model.PeriodDay:   {1, 3, 7, 14, 30},
	model.PeriodWeek:  {1, 2, 4, 8, 12},
	model.PeriodMonth: {1, 2, 4, 8, 12},
}

// Rollup metric names.
const (
	MetricTotalEvents        = "total_events"
	MetricUniqueUsers        = "unique_users"
	MetricAvgSessionDuration = "avg_session_duration"
	MetricEventsByCategory   = "events_by_category"
)

// dayRollupMetrics are the rollups RunDailyAggregations writes.
var dayRollupMetrics = []string{
	MetricTotalEvents,
	MetricUniqueUsers,
	MetricAvgSessionDuration,
	MetricEventsByCategory,
}

// Store is the slice of the persistence layer the service reads and writes.
type Store interface {
	store.ActivityStore
	store.SummaryStore
	CountEvents(ctx context.Context, filter model.EventFilter) (int, error)
}

// AggregatedMetrics is the read-only fan-out returned to reporting
// consumers.
type AggregatedMetrics struct {
	Days        int                                 `json:"days"`
	Daily       []*model.DailyActive                `json:"daily_active"`
	Weekly      []*model.WeeklyActive               `json:"weekly_active"`
	Monthly     []*model.MonthlyActive              `json:"monthly_active"`
	Retention   []*model.RetentionCohort            `json:"latest_retention"`
	TimeSeries  map[string][]*model.TimeSeriesPoint `json:"time_series"`
	GeneratedAt time.Time                           `json:"generated_at"`
}

const cacheTTL = 30 * time.Second

// Service computes aggregate rollups. Reads of the composite metrics view
// are cached with a short TTL; any write invalidates the whole cache
// rather than selective keys.
type Service struct {
	store Store
	log   *slog.Logger

	cacheMu sync.Mutex
	cache   *tlru.Cache[string, *AggregatedMetrics]
}

func NewService(s Store, log *slog.Logger) *Service {
	return &Service{
		store: s,
		log:   log,
		cache: newMetricsCache(),
	}
}

func newMetricsCache() *tlru.Cache[string, *AggregatedMetrics] {
	return tlru.New[string](tlru.ConstantCost[*AggregatedMetrics], 64)
}

// invalidate drops every cached metrics view. tlru has no flush, so the
// cache is swapped for a fresh one.
func (s *Service) invalidate() {
	s.cacheMu.Lock()
	s.cache = newMetricsCache()
	s.cacheMu.Unlock()
}

// CalculateDAU computes the daily-active rollup for the day containing
// date. A user whose first-ever event falls on that day counts as new,
// otherwise returning; new + returning always equals the total.
func (s *Service) CalculateDAU(ctx context.Context, date time.Time) error {
	start, end := dayBounds(date)

	users, err := s.store.DistinctUsers(ctx, start, end)
	if err != nil {
		return fmt.Errorf("dau %s: %w", start.Format("2006-01-02"), err)
	}

	earliest, err := s.store.EarliestEventTimes(ctx, users)
	if err != nil {
		return fmt.Errorf("dau %s: %w", start.Format("2006-01-02"), err)
	}

	newUsers := 0
	for _, u := range users {
		if first, ok := earliest[u]; ok && !first.Before(start) {
			newUsers++
		}
	}

	row := &model.DailyActive{
		Date:           start,
		UserCount:      len(users),
		NewUsers:       newUsers,
		ReturningUsers: len(users) - newUsers,
	}
	if err := s.store.UpsertDailyActive(ctx, row); err != nil {
		return fmt.Errorf("dau %s: %w", start.Format("2006-01-02"), err)
	}
	s.invalidate()
	return nil
}

// CalculateWAU computes the weekly-active rollup for the Monday-start
// week containing date.
func (s *Service) CalculateWAU(ctx context.Context, date time.Time) error {
	start := weekStart(date)
	end := start.AddDate(0, 0, 7)

	users, err := s.store.DistinctUsers(ctx, start, end)
	if err != nil {
		return fmt.Errorf("wau %s: %w", start.Format("2006-01-02"), err)
	}
	row := &model.WeeklyActive{WeekStart: start, UserCount: len(users)}
	if err := s.store.UpsertWeeklyActive(ctx, row); err != nil {
		return fmt.Errorf("wau %s: %w", start.Format("2006-01-02"), err)
	}
	s.invalidate()
	return nil
}

// CalculateMAU computes the monthly-active rollup for the calendar month
// containing date.
func (s *Service) CalculateMAU(ctx context.Context, date time.Time) error {
	start := monthStart(date)
	end := start.AddDate(0, 1, 0)

	users, err := s.store.DistinctUsers(ctx, start, end)
	if err != nil {
		return fmt.Errorf("mau %s: %w", start.Format("2006-01"), err)
	}
	row := &model.MonthlyActive{MonthStart: start, UserCount: len(users)}
	if err := s.store.UpsertMonthlyActive(ctx, row); err != nil {
		return fmt.Errorf("mau %s: %w", start.Format("2006-01"), err)
	}
	s.invalidate()
	return nil
}

// CalculateRetentionCohort computes retention rows for the cohort whose
// window starts the period containing cohortDate. The cohort is the set
// of users whose first-ever event falls inside that window; cohorts with
// no new users are skipped entirely.
func (s *Service) CalculateRetentionCohort(ctx context.Context, cohortDate time.Time, period model.PeriodType) error {
	start, end := periodWindow(period, cohortDate)

	active, err := s.store.DistinctUsers(ctx, start, end)
	if err != nil {
		return fmt.Errorf("retention cohort %s: %w", start.Format("2006-01-02"), err)
	}
	earliest, err := s.store.EarliestEventTimes(ctx, active)
	if err != nil {
		return fmt.Errorf("retention cohort %s: %w", start.Format("2006-01-02"), err)
	}

	var cohort []string
	for _, u := range active {
		if first, ok := earliest[u]; ok && !first.Before(start) {
			cohort = append(cohort, u)
		}
	}
	if len(cohort) == 0 {
		return nil
	}

	for _, offset := range retentionOffsets[period] {
		offsetStart := addPeriods(start, period, offset)
		offsetEnd := addPeriods(start, period, offset+1)

		retained, err := s.store.CountUsersActiveBetween(ctx, cohort, offsetStart, offsetEnd)
		if err != nil {
			return fmt.Errorf("retention cohort %s offset %d: %w", start.Format("2006-01-02"), offset, err)
		}
		row := &model.RetentionCohort{
			CohortDate:    start,
			Period:        period,
			Offset:        offset,
			CohortSize:    len(cohort),
			RetainedUsers: retained,
			RetentionRate: model.Rate(retained, len(cohort)),
		}
		if err := s.store.UpsertRetentionCohort(ctx, row); err != nil {
			return fmt.Errorf("retention cohort %s offset %d: %w", start.Format("2006-01-02"), offset, err)
		}
	}
	s.invalidate()
	return nil
}

// CreateTimeSeriesRollup computes one named metric over the period window
// containing anchor and appends a single point.
func (s *Service) CreateTimeSeriesRollup(ctx context.Context, metric string, period model.PeriodType, anchor time.Time) error {
	start, end := periodWindow(period, anchor)

	var (
		value float64
		dims  json.RawMessage
	)
	switch metric {
	case MetricTotalEvents:
		count, err := s.store.CountEvents(ctx, model.EventFilter{Start: start, End: end})
		if err != nil {
			return fmt.Errorf("rollup %s: %w", metric, err)
		}
		value = float64(count)
	case MetricUniqueUsers:
		users, err := s.store.DistinctUsers(ctx, start, end)
		if err != nil {
			return fmt.Errorf("rollup %s: %w", metric, err)
		}
		value = float64(len(users))
	case MetricAvgSessionDuration:
		avg, err := s.store.AvgSessionDuration(ctx, start, end)
		if err != nil {
			return fmt.Errorf("rollup %s: %w", metric, err)
		}
		value = avg
	case MetricEventsByCategory:
		counts, err := s.store.CountEventsByCategory(ctx, start, end)
		if err != nil {
			return fmt.Errorf("rollup %s: %w", metric, err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		value = float64(total)
		dims, err = json.Marshal(counts)
		if err != nil {
			return fmt.Errorf("rollup %s: %w", metric, err)
		}
	default:
		return fmt.Errorf("unknown rollup metric %q", metric)
	}

	point := &model.TimeSeriesPoint{
		Metric:     metric,
		Timestamp:  start,
		Period:     period,
		Value:      value,
		Dimensions: dims,
	}
	if err := s.store.InsertTimeSeriesPoint(ctx, point); err != nil {
		return fmt.Errorf("rollup %s: %w", metric, err)
	}
	s.invalidate()
	return nil
}

// RunDailyAggregations composes the full daily pass for one date: DAU
// always, WAU on Mondays, MAU on the 1st, retention for the previous
// day's cohort, and every day-granularity rollup. Individual failures
// are collected rather than aborting the rest.
func (s *Service) RunDailyAggregations(ctx context.Context, date time.Time) error {
	var errs []error

	if err := s.CalculateDAU(ctx, date); err != nil {
		errs = append(errs, err)
	}
	if date.UTC().Weekday() == time.Monday {
		if err := s.CalculateWAU(ctx, date); err != nil {
			errs = append(errs, err)
		}
	}
	if date.UTC().Day() == 1 {
		if err := s.CalculateMAU(ctx, date); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.CalculateRetentionCohort(ctx, date.AddDate(0, 0, -1), model.PeriodDay); err != nil {
		errs = append(errs, err)
	}
	for _, metric := range dayRollupMetrics {
		if err := s.CreateTimeSeriesRollup(ctx, metric, model.PeriodDay, date); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetAggregatedMetrics returns the DAU/WAU/MAU series, the latest
// retention cohort, and day-granularity time-series points for a lookback
// of the given number of days. Results are cached briefly.
func (s *Service) GetAggregatedMetrics(ctx context.Context, days int) (*AggregatedMetrics, error) {
	if days <= 0 {
		days = 30
	}
	key := fmt.Sprintf("aggregated:%d", days)

	s.cacheMu.Lock()
	cache := s.cache
	s.cacheMu.Unlock()
	if cached, _, ok := cache.Get(key); ok {
		return cached, nil
	}

	now := time.Now().UTC()
	since := dayStart(now).AddDate(0, 0, -days)

	daily, err := s.store.ListDailyActive(ctx, since, now)
	if err != nil {
		return nil, fmt.Errorf("aggregated metrics: %w", err)
	}
	weekly, err := s.store.ListWeeklyActive(ctx, since, now)
	if err != nil {
		return nil, fmt.Errorf("aggregated metrics: %w", err)
	}
	monthly, err := s.store.ListMonthlyActive(ctx, since.AddDate(0, 0, -31), now)
	if err != nil {
		return nil, fmt.Errorf("aggregated metrics: %w", err)
	}
	retention, err := s.store.LatestRetentionCohort(ctx, model.PeriodDay)
	if err != nil {
		return nil, fmt.Errorf("aggregated metrics: %w", err)
	}

	series := make(map[string][]*model.TimeSeriesPoint, len(dayRollupMetrics))
	for _, metric := range dayRollupMetrics {
		points, err := s.store.ListTimeSeriesPoints(ctx, metric, model.PeriodDay, since, now)
		if err != nil {
			return nil, fmt.Errorf("aggregated metrics: %w", err)
		}
		series[metric] = points
	}

	out := &AggregatedMetrics{
		Days:        days,
		Daily:       daily,
		Weekly:      weekly,
		Monthly:     monthly,
		Retention:   retention,
		TimeSeries:  series,
		GeneratedAt: now,
	}
	cache.Set(key, out, cacheTTL)
	return out, nil
}
