package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

func queryUpsertDailyActive(ctx context.Context, db executor, row *model.DailyActive) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO daily_active_users (date, user_count, new_users, returning_users, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (date) DO UPDATE SET
			user_count = EXCLUDED.user_count,
			new_users = EXCLUDED.new_users,
			returning_users = EXCLUDED.returning_users,
			updated_at = NOW()`,
		row.Date, row.UserCount, row.NewUsers, row.ReturningUsers)
	if err != nil {
		return fmt.Errorf("upsert daily active: %w", err)
	}
	return nil
}

func queryUpsertWeeklyActive(ctx context.Context, db executor, row *model.WeeklyActive) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO weekly_active_users (week_start, user_count, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (week_start) DO UPDATE SET
			user_count = EXCLUDED.user_count,
			updated_at = NOW()`,
		row.WeekStart, row.UserCount)
	if err != nil {
		return fmt.Errorf("upsert weekly active: %w", err)
	}
	return nil
}

func queryUpsertMonthlyActive(ctx context.Context, db executor, row *model.MonthlyActive) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO monthly_active_users (month_start, user_count, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (month_start) DO UPDATE SET
			user_count = EXCLUDED.user_count,
			updated_at = NOW()`,
		row.MonthStart, row.UserCount)
	if err != nil {
		return fmt.Errorf("upsert monthly active: %w", err)
	}
	return nil
}

func queryListDailyActive(ctx context.Context, db executor, start, end time.Time) ([]*model.DailyActive, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date, user_count, new_users, returning_users, updated_at
		FROM daily_active_users
		WHERE date >= $1 AND date <= $2 ORDER BY date`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("list daily active: %w", err)
	}
	defer rows.Close()

	var out []*model.DailyActive
	for rows.Next() {
		var d model.DailyActive
		if err := rows.Scan(&d.Date, &d.UserCount, &d.NewUsers, &d.ReturningUsers, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan daily active: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func queryListWeeklyActive(ctx context.Context, db executor, start, end time.Time) ([]*model.WeeklyActive, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT week_start, user_count, updated_at
		FROM weekly_active_users
		WHERE week_start >= $1 AND week_start <= $2 ORDER BY week_start`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("list weekly active: %w", err)
	}
	defer rows.Close()

	var out []*model.WeeklyActive
	for rows.Next() {
		var w model.WeeklyActive
		if err := rows.Scan(&w.WeekStart, &w.UserCount, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan weekly active: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func queryListMonthlyActive(ctx context.Context, db executor, start, end time.Time) ([]*model.MonthlyActive, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT month_start, user_count, updated_at
		FROM monthly_active_users
		WHERE month_start >= $1 AND month_start <= $2 ORDER BY month_start`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("list monthly active: %w", err)
	}
	defer rows.Close()

	var out []*model.MonthlyActive
	for rows.Next() {
		var m model.MonthlyActive
		if err := rows.Scan(&m.MonthStart, &m.UserCount, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan monthly active: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func queryUpsertRetentionCohort(ctx context.Context, db executor, row *model.RetentionCohort) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO retention_cohorts (cohort_date, period_type, period_offset, cohort_size, retained_users, retention_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (cohort_date, period_type, period_offset) DO UPDATE SET
			cohort_size = EXCLUDED.cohort_size,
			retained_users = EXCLUDED.retained_users,
			retention_rate = EXCLUDED.retention_rate,
			updated_at = NOW()`,
		row.CohortDate, string(row.Period), row.Offset, row.CohortSize, row.RetainedUsers, row.RetentionRate)
	if err != nil {
		return fmt.Errorf("upsert retention cohort: %w", err)
	}
	return nil
}

func scanRetentionCohort(row scannable) (*model.RetentionCohort, error) {
	var (
		rc     model.RetentionCohort
		period string
	)
	err := row.Scan(&rc.CohortDate, &period, &rc.Offset, &rc.CohortSize, &rc.RetainedUsers, &rc.RetentionRate, &rc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rc.Period = model.PeriodType(period)
	return &rc, nil
}

const retentionColumns = `cohort_date, period_type, period_offset, cohort_size, retained_users, retention_rate, updated_at`

func queryListRetentionCohorts(ctx context.Context, db executor, period model.PeriodType, since time.Time) ([]*model.RetentionCohort, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+retentionColumns+` FROM retention_cohorts
		WHERE period_type = $1 AND cohort_date >= $2
		ORDER BY cohort_date, period_offset`,
		string(period), since)
	if err != nil {
		return nil, fmt.Errorf("list retention cohorts: %w", err)
	}
	defer rows.Close()

	var out []*model.RetentionCohort
	for rows.Next() {
		rc, err := scanRetentionCohort(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retention cohort: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func queryLatestRetentionCohort(ctx context.Context, db executor, period model.PeriodType) ([]*model.RetentionCohort, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+retentionColumns+` FROM retention_cohorts
		WHERE period_type = $1 AND cohort_date = (
			SELECT MAX(cohort_date) FROM retention_cohorts WHERE period_type = $1
		)
		ORDER BY period_offset`,
		string(period))
	if err != nil {
		return nil, fmt.Errorf("latest retention cohort: %w", err)
	}
	defer rows.Close()

	var out []*model.RetentionCohort
	for rows.Next() {
		rc, err := scanRetentionCohort(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retention cohort: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func queryInsertTimeSeriesPoint(ctx context.Context, db executor, point *model.TimeSeriesPoint) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO time_series_metrics (metric, ts, period_type, value, dimensions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		point.Metric, point.Timestamp, string(point.Period), point.Value, jsonbBytes(point.Dimensions)).Scan(&point.ID)
	if err != nil {
		return fmt.Errorf("insert time series point: %w", err)
	}
	return nil
}

func queryListTimeSeriesPoints(ctx context.Context, db executor, metric string, period model.PeriodType, start, end time.Time) ([]*model.TimeSeriesPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, metric, ts, period_type, value, dimensions
		FROM time_series_metrics
		WHERE metric = $1 AND period_type = $2 AND ts >= $3 AND ts < $4
		ORDER BY ts`,
		metric, string(period), start, end)
	if err != nil {
		return nil, fmt.Errorf("list time series points: %w", err)
	}
	defer rows.Close()

	var out []*model.TimeSeriesPoint
	for rows.Next() {
		var (
			p          model.TimeSeriesPoint
			periodType string
			dims       []byte
		)
		if err := rows.Scan(&p.ID, &p.Metric, &p.Timestamp, &periodType, &p.Value, &dims); err != nil {
			return nil, fmt.Errorf("scan time series point: %w", err)
		}
		p.Period = model.PeriodType(periodType)
		p.Dimensions = dims
		out = append(out, &p)
	}
	return out, rows.Err()
}

func queryLatestTimeSeriesValue(ctx context.Context, db executor, metric string) (float64, bool, error) {
	var value float64
	err := db.QueryRowContext(ctx, `
		SELECT value FROM time_series_metrics
		WHERE metric = $1 ORDER BY ts DESC LIMIT 1`,
		metric).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest time series value: %w", err)
	}
	return value, true, nil
}
