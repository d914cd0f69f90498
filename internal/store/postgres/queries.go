package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/lumenlearn/pulse/internal/model"
)

const eventColumns = `event_id, event_type, category, user_id, session_id, timestamp, raw_data,
	lesson_id, file_name, cost, duration_secs, response_time_ms, processed, processed_at, created_at`

func queryUpsertEvent(ctx context.Context, db executor, event *model.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (event_id, event_type, category, user_id, session_id, timestamp, raw_data,
			lesson_id, file_name, cost, duration_secs, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.Type, string(event.Category),
		nullString(event.UserID), nullString(event.SessionID),
		event.Timestamp, jsonbBytes(event.RawData),
		nullString(event.LessonID), nullString(event.FileName),
		nullFloatPtr(event.Cost), nullFloatPtr(event.DurationSecs), nullFloatPtr(event.ResponseTimeMS))
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

func queryMarkEventProcessed(ctx context.Context, db executor, eventID string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE events SET processed = TRUE, processed_at = $2 WHERE event_id = $1`,
		eventID, at)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func scanEvent(row scannable) (*model.Event, error) {
	var (
		e                    model.Event
		category             string
		userID, sessionID    sql.NullString
		rawData              []byte
		lessonID, fileName   sql.NullString
		cost, durSecs, rtMS  sql.NullFloat64
		processedAt          sql.NullTime
	)
	err := row.Scan(&e.EventID, &e.Type, &category, &userID, &sessionID, &e.Timestamp, &rawData,
		&lessonID, &fileName, &cost, &durSecs, &rtMS, &e.Processed, &processedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Category = model.Category(category)
	e.UserID = userID.String
	e.SessionID = sessionID.String
	e.RawData = rawData
	e.LessonID = lessonID.String
	e.FileName = fileName.String
	e.Cost = floatPtr(cost)
	e.DurationSecs = floatPtr(durSecs)
	e.ResponseTimeMS = floatPtr(rtMS)
	e.ProcessedAt = timePtr(processedAt)
	return &e, nil
}

// eventFilterClause builds the WHERE clause shared by list and count.
func eventFilterClause(filter model.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !filter.Start.IsZero() {
		args = append(args, filter.Start)
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !filter.End.IsZero() {
		args = append(args, filter.End)
		conds = append(conds, fmt.Sprintf("timestamp < $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		args = append(args, pq.Array(filter.Types))
		conds = append(conds, fmt.Sprintf("event_type = ANY($%d)", len(args)))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.UserOnly {
		conds = append(conds, "user_id IS NOT NULL")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func queryListEvents(ctx context.Context, db executor, filter model.EventFilter) ([]*model.Event, error) {
	where, args := eventFilterClause(filter)
	query := "SELECT " + eventColumns + " FROM events" + where + " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func queryCountEvents(ctx context.Context, db executor, filter model.EventFilter) (int, error) {
	where, args := eventFilterClause(filter)
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func queryTouchFeatureAdoption(ctx context.Context, db executor, userID string, feature model.Feature, ts time.Time) error {
	col := string(feature)
	if !validFeatureColumn(col) {
		return fmt.Errorf("unknown adoption feature %q", col)
	}
	// COALESCE keeps the earliest sighting; later touches are no-ops.
	query := fmt.Sprintf(`
		INSERT INTO feature_adoption (user_id, %s, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			%s = COALESCE(feature_adoption.%s, EXCLUDED.%s),
			updated_at = NOW()`, col, col, col, col)
	if _, err := db.ExecContext(ctx, query, userID, ts); err != nil {
		return fmt.Errorf("touch feature adoption: %w", err)
	}
	return nil
}

func validFeatureColumn(col string) bool {
	for _, f := range model.Features() {
		if string(f) == col {
			return true
		}
	}
	return false
}

func queryGetFeatureAdoption(ctx context.Context, db executor, userID string) (*model.FeatureAdoption, error) {
	row := db.QueryRowContext(ctx, `
		SELECT user_id, first_lesson_date, first_voice_date, first_upload_date,
			first_quiz_date, first_integration_date, first_export_date, updated_at
		FROM feature_adoption WHERE user_id = $1`, userID)

	var (
		fa                        model.FeatureAdoption
		lesson, voice, upload     sql.NullTime
		quiz, integration, export sql.NullTime
	)
	err := row.Scan(&fa.UserID, &lesson, &voice, &upload, &quiz, &integration, &export, &fa.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feature adoption: %w", err)
	}
	fa.FirstLessonDate = timePtr(lesson)
	fa.FirstVoiceDate = timePtr(voice)
	fa.FirstUploadDate = timePtr(upload)
	fa.FirstQuizDate = timePtr(quiz)
	fa.FirstIntegrationDate = timePtr(integration)
	fa.FirstExportDate = timePtr(export)
	return &fa, nil
}

func queryDistinctUsers(ctx context.Context, db executor, start, end time.Time) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM events
		WHERE user_id IS NOT NULL AND timestamp >= $1 AND timestamp < $2`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("distinct users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func queryEarliestEventTimes(ctx context.Context, db executor, userIDs []string) (map[string]time.Time, error) {
	earliest := make(map[string]time.Time, len(userIDs))
	if len(userIDs) == 0 {
		return earliest, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT user_id, MIN(timestamp) FROM events
		WHERE user_id = ANY($1) GROUP BY user_id`,
		pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("earliest event times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u string
			t time.Time
		)
		if err := rows.Scan(&u, &t); err != nil {
			return nil, fmt.Errorf("scan earliest time: %w", err)
		}
		earliest[u] = t
	}
	return earliest, rows.Err()
}

func queryCountUsersActiveBetween(ctx context.Context, db executor, userIDs []string, start, end time.Time) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM events
		WHERE user_id = ANY($1) AND timestamp >= $2 AND timestamp < $3`,
		pq.Array(userIDs), start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return count, nil
}

func queryAvgSessionDuration(ctx context.Context, db executor, start, end time.Time) (float64, error) {
	var avg float64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(user_total), 0) FROM (
			SELECT user_id, SUM(duration_secs) AS user_total FROM events
			WHERE duration_secs IS NOT NULL AND user_id IS NOT NULL
				AND timestamp >= $1 AND timestamp < $2
			GROUP BY user_id
		) per_user`,
		start, end).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("avg session duration: %w", err)
	}
	return avg, nil
}

func queryCountEventsByCategory(ctx context.Context, db executor, start, end time.Time) (map[model.Category]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT category, COUNT(*) FROM events
		WHERE timestamp >= $1 AND timestamp < $2 GROUP BY category`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("count events by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Category]int)
	for rows.Next() {
		var (
			cat   string
			count int
		)
		if err := rows.Scan(&cat, &count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		counts[model.Category(cat)] = count
	}
	return counts, rows.Err()
}

func queryAvgResponseTime(ctx context.Context, db executor, start, end time.Time) (float64, error) {
	var avg float64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(response_time_ms), 0) FROM events
		WHERE response_time_ms IS NOT NULL AND timestamp >= $1 AND timestamp < $2`,
		start, end).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("avg response time: %w", err)
	}
	return avg, nil
}

func queryErrorRate(ctx context.Context, db executor, start, end time.Time) (float64, error) {
	var rate float64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(
			100.0 * COUNT(*) FILTER (
				WHERE category = 'critical_alert'
					OR event_type LIKE '%\_failed'
					OR event_type LIKE '%\_error'
			) / NULLIF(COUNT(*), 0),
		0) FROM events WHERE timestamp >= $1 AND timestamp < $2`,
		start, end).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("error rate: %w", err)
	}
	return rate, nil
}
