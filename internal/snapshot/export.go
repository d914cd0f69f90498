// Package snapshot periodically exports the aggregate tables as JSONL
// for downstream warehouses.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

// exportWindowDays bounds how far back a snapshot reaches.
const exportWindowDays = 90

// Source is the slice of the store a snapshot reads from.
type Source interface {
	ListDailyActive(ctx context.Context, start, end time.Time) ([]*model.DailyActive, error)
	ListWeeklyActive(ctx context.Context, start, end time.Time) ([]*model.WeeklyActive, error)
	ListMonthlyActive(ctx context.Context, start, end time.Time) ([]*model.MonthlyActive, error)
	ListRetentionCohorts(ctx context.Context, period model.PeriodType, since time.Time) ([]*model.RetentionCohort, error)
}

// header is the first JSONL record of an export.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	DailyCount   int       `json:"daily_count"`
	WeeklyCount  int       `json:"weekly_count"`
	MonthlyCount int       `json:"monthly_count"`
	CohortCount  int       `json:"cohort_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the last ninety days of rollups and retention
// cohorts from the store as JSONL to w.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -exportWindowDays)

	daily, err := src.ListDailyActive(ctx, since, now)
	if err != nil {
		return fmt.Errorf("list daily active: %w", err)
	}
	weekly, err := src.ListWeeklyActive(ctx, since, now)
	if err != nil {
		return fmt.Errorf("list weekly active: %w", err)
	}
	monthly, err := src.ListMonthlyActive(ctx, since, now)
	if err != nil {
		return fmt.Errorf("list monthly active: %w", err)
	}

	var cohorts []*model.RetentionCohort
	for _, period := range []model.PeriodType{model.PeriodDay, model.PeriodWeek, model.PeriodMonth} {
		rows, err := src.ListRetentionCohorts(ctx, period, since)
		if err != nil {
			return fmt.Errorf("list %s retention cohorts: %w", period, err)
		}
		cohorts = append(cohorts, rows...)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    now,
		DailyCount:   len(daily),
		WeeklyCount:  len(weekly),
		MonthlyCount: len(monthly),
		CohortCount:  len(cohorts),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, row := range daily {
		if err := enc.Encode(record{Type: "daily_active", Data: row}); err != nil {
			return fmt.Errorf("encode daily row: %w", err)
		}
	}
	for _, row := range weekly {
		if err := enc.Encode(record{Type: "weekly_active", Data: row}); err != nil {
			return fmt.Errorf("encode weekly row: %w", err)
		}
	}
	for _, row := range monthly {
		if err := enc.Encode(record{Type: "monthly_active", Data: row}); err != nil {
			return fmt.Errorf("encode monthly row: %w", err)
		}
	}
	for _, row := range cohorts {
		if err := enc.Encode(record{Type: "retention_cohort", Data: row}); err != nil {
			return fmt.Errorf("encode cohort row: %w", err)
		}
	}

	return nil
}
