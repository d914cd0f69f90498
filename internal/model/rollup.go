package model

import (
	"encoding/json"
	"time"
)

// PeriodType is the bucket size of a rollup or cohort.
type PeriodType string

const (
	PeriodHour  PeriodType = "hour"
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
)

// DailyActive is the active-user rollup for one calendar day (UTC).
// Recomputation overwrites the row for the same date.
// Invariant: NewUsers + ReturningUsers == UserCount.
type DailyActive struct {
	Date           time.Time `json:"date"`
	UserCount      int       `json:"user_count"`
	NewUsers       int       `json:"new_users"`
	ReturningUsers int       `json:"returning_users"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WeeklyActive is the active-user rollup for one Monday-start week.
type WeeklyActive struct {
	WeekStart time.Time `json:"week_start"`
	UserCount int       `json:"user_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MonthlyActive is the active-user rollup for one calendar month.
type MonthlyActive struct {
	MonthStart time.Time `json:"month_start"`
	UserCount  int       `json:"user_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TimeSeriesPoint is one append-only metric sample. One point is written
// per rollup run; points are never updated.
type TimeSeriesPoint struct {
	ID         int64           `json:"id"`
	Metric     string          `json:"metric"`
	Timestamp  time.Time       `json:"timestamp"`
	Period     PeriodType      `json:"period_type"`
	Value      float64         `json:"value"`
	Dimensions json.RawMessage `json:"dimensions,omitempty"`
}
