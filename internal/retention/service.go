// Package retention recalculates cohort-retention tables over a rolling
// lookback window, independent of the daily aggregation pass.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
	"github.com/lumenlearn/pulse/internal/store"
)

// standardOffsets are the day offsets measured for every cohort.
var standardOffsets = []int{0, 1, 7, 14, 30, 60, 90}

// Options parameterizes the recalculation window.
type Options struct {
	LookbackDays int // how far back cohorts are rebuilt (default 90)
	CohortDays   int // days per cohort window (default 7, weekly cohorts)
}

// Store is the slice of the persistence layer the service needs.
type Store interface {
	DistinctUsers(ctx context.Context, start, end time.Time) ([]string, error)
	EarliestEventTimes(ctx context.Context, userIDs []string) (map[string]time.Time, error)
	CountUsersActiveBetween(ctx context.Context, userIDs []string, start, end time.Time) (int, error)
	UpsertRetentionCohort(ctx context.Context, row *model.RetentionCohort) error
}

var _ Store = (store.Store)(nil)

// Service rebuilds retention cohorts. Each cohort is the set of users
// whose first-ever activity falls inside its window; retention at offset
// k is the fraction active again on day cohort_start+k.
type Service struct {
	store Store
	opts  Options
	log   *slog.Logger
}

func NewService(s Store, opts Options, log *slog.Logger) *Service {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 90
	}
	if opts.CohortDays <= 0 {
		opts.CohortDays = 7
	}
	return &Service{store: s, opts: opts, log: log}
}

// Recalculate rebuilds every cohort window inside the lookback range,
// replacing prior rows. A failing cohort is logged and skipped; the
// remaining cohorts still run.
func (s *Service) Recalculate(ctx context.Context, asOf time.Time) error {
	asOf = asOf.UTC()
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	failures := 0
	for back := s.opts.LookbackDays; back > 0; back -= s.opts.CohortDays {
		cohortStart := today.AddDate(0, 0, -back)
		if err := s.recalculateCohort(ctx, cohortStart, today); err != nil {
			failures++
			s.log.Error("retention cohort recalculation failed",
				"cohort", cohortStart.Format("2006-01-02"), "err", err)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d retention cohorts failed", failures)
	}
	return nil
}

func (s *Service) recalculateCohort(ctx context.Context, cohortStart, today time.Time) error {
	cohortEnd := cohortStart.AddDate(0, 0, s.opts.CohortDays)

	active, err := s.store.DistinctUsers(ctx, cohortStart, cohortEnd)
	if err != nil {
		return fmt.Errorf("cohort users: %w", err)
	}
	earliest, err := s.store.EarliestEventTimes(ctx, active)
	if err != nil {
		return fmt.Errorf("earliest activity: %w", err)
	}

	var cohort []string
	for _, u := range active {
		if first, ok := earliest[u]; ok && !first.Before(cohortStart) {
			cohort = append(cohort, u)
		}
	}
	if len(cohort) == 0 {
		return nil
	}

	period := model.PeriodDay
	if s.opts.CohortDays >= 7 {
		period = model.PeriodWeek
	}

	for _, offset := range standardOffsets {
		offsetDay := cohortStart.AddDate(0, 0, offset)
		if offsetDay.After(today) {
			break
		}
		retained, err := s.store.CountUsersActiveBetween(ctx, cohort, offsetDay, offsetDay.AddDate(0, 0, 1))
		if err != nil {
			return fmt.Errorf("offset %d: %w", offset, err)
		}
		row := &model.RetentionCohort{
			CohortDate:    cohortStart,
			Period:        period,
			Offset:        offset,
			CohortSize:    len(cohort),
			RetainedUsers: retained,
			RetentionRate: model.Rate(retained, len(cohort)),
		}
		if err := s.store.UpsertRetentionCohort(ctx, row); err != nil {
			return fmt.Errorf("offset %d: %w", offset, err)
		}
	}
	return nil
}
