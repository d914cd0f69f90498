// Package schedule orchestrates the periodic aggregation work: a startup
// backfill, an hourly rollup job, the full daily aggregation at 02:00,
// and a five-minute refresh of the current day's active-user counts.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumenlearn/pulse/internal/aggregate"
	"github.com/lumenlearn/pulse/internal/model"
)

const initialBackfillDays = 7

// Aggregator is the slice of the aggregation service the scheduler drives.
type Aggregator interface {
	CalculateDAU(ctx context.Context, date time.Time) error
	CreateTimeSeriesRollup(ctx context.Context, metric string, period model.PeriodType, anchor time.Time) error
	RunDailyAggregations(ctx context.Context, date time.Time) error
}

// RetentionCalculator refreshes the retention cohort tables.
type RetentionCalculator interface {
	Recalculate(ctx context.Context, asOf time.Time) error
}

// Status reports whether the scheduler is running and when each job
// fires next.
type Status struct {
	Running     bool       `json:"running"`
	NextHourly  *time.Time `json:"next_hourly,omitempty"`
	NextDaily   *time.Time `json:"next_daily,omitempty"`
	NextRefresh *time.Time `json:"next_refresh,omitempty"`
}

// Scheduler runs the periodic jobs on real cron schedules rather than
// coarse interval checks, so a job fires at its wall-clock time even
// after process sleep or clock drift.
type Scheduler struct {
	agg Aggregator
	ret RetentionCalculator
	log *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cron    *cron.Cron
	running bool

	hourlyID  cron.EntryID
	dailyID   cron.EntryID
	refreshID cron.EntryID
}

func New(agg Aggregator, ret RetentionCalculator, log *slog.Logger) *Scheduler {
	return &Scheduler{agg: agg, ret: ret, log: log}
}

// Start installs the cron jobs and kicks off the startup backfill in the
// background. The backfill never blocks Start.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	c := cron.New()
	var err error
	if s.hourlyID, err = c.AddFunc("0 * * * *", func() { s.hourlyJob(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("installing hourly job: %w", err)
	}
	if s.dailyID, err = c.AddFunc("0 2 * * *", func() { s.dailyJob(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("installing daily job: %w", err)
	}
	if s.refreshID, err = c.AddFunc("*/5 * * * *", func() { s.refreshJob(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("installing refresh job: %w", err)
	}
	c.Start()
	s.cron = c
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runInitialAggregations(ctx)
	}()

	s.log.Info("scheduler started", "backfill_days", initialBackfillDays)
	return nil
}

// Stop halts the cron jobs, waits for any in-flight job to finish, and
// cancels the startup backfill if it is still running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.running = false
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Status reports the running flag and the next fire time of each job.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running}
	if s.cron == nil || !s.running {
		return st
	}
	if next := s.cron.Entry(s.hourlyID).Next; !next.IsZero() {
		st.NextHourly = &next
	}
	if next := s.cron.Entry(s.dailyID).Next; !next.IsZero() {
		st.NextDaily = &next
	}
	if next := s.cron.Entry(s.refreshID).Next; !next.IsZero() {
		st.NextRefresh = &next
	}
	return st
}

// runInitialAggregations backfills the last week of daily aggregations
// and refreshes the retention cohorts once.
func (s *Scheduler) runInitialAggregations(ctx context.Context) {
	now := time.Now().UTC()
	if err := s.Backfill(ctx, now.AddDate(0, 0, -initialBackfillDays), now); err != nil {
		s.log.Error("startup backfill incomplete", "err", err)
	}
	if err := s.ret.Recalculate(ctx, now); err != nil {
		s.log.Error("startup retention refresh failed", "err", err)
	}
}

// Backfill runs the full daily aggregation for every day in [start, end].
// A failing day is logged and skipped, never halting the loop.
func (s *Scheduler) Backfill(ctx context.Context, start, end time.Time) error {
	days, failed := 0, 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		days++
		if err := s.agg.RunDailyAggregations(ctx, day); err != nil {
			failed++
			s.log.Error("backfill day failed", "date", day.Format("2006-01-02"), "err", err)
		}
	}
	s.log.Info("backfill complete", "days", days, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d backfill days failed", failed, days)
	}
	return nil
}

func (s *Scheduler) hourlyJob(ctx context.Context) {
	now := time.Now().UTC()
	for _, metric := range []string{aggregate.MetricTotalEvents, aggregate.MetricUniqueUsers} {
		if err := s.agg.CreateTimeSeriesRollup(ctx, metric, model.PeriodHour, now); err != nil {
			s.log.Error("hourly rollup failed", "metric", metric, "err", err)
		}
	}
	if err := s.agg.CalculateDAU(ctx, now); err != nil {
		s.log.Error("hourly dau refresh failed", "err", err)
	}
}

func (s *Scheduler) dailyJob(ctx context.Context) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if err := s.agg.RunDailyAggregations(ctx, yesterday); err != nil {
		s.log.Error("daily aggregation failed", "date", yesterday.Format("2006-01-02"), "err", err)
	}
}

func (s *Scheduler) refreshJob(ctx context.Context) {
	if err := s.agg.CalculateDAU(ctx, time.Now().UTC()); err != nil {
		s.log.Error("dau refresh failed", "err", err)
	}
}
