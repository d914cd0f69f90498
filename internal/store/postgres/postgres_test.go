package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lumenlearn/pulse/internal/model"
)

func newMockDB(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})
	return &PostgresStore{db: db}, mock
}

func TestUpsertEvent(t *testing.T) {
	s, mock := newMockDB(t)

	cost := 0.25
	event := &model.Event{
		EventID:   "ev-abc123",
		Type:      "lesson_completed",
		Category:  model.CategoryEngagement,
		UserID:    "user-1",
		SessionID: "sess-1",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RawData:   []byte(`{"event":"lesson_completed"}`),
		LessonID:  "lesson-9",
		Cost:      &cost,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs("ev-abc123", "lesson_completed", "learning_engagement",
			"user-1", "sess-1", event.Timestamp, []byte(`{"event":"lesson_completed"}`),
			"lesson-9", nil, 0.25, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpsertEvent(context.Background(), event); err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}
}

func TestUpsertEvent_DuplicateIsNoop(t *testing.T) {
	s, mock := newMockDB(t)

	event := &model.Event{
		EventID:   "ev-dup",
		Type:      "app_opened",
		Category:  model.CategoryLifecycle,
		Timestamp: time.Now(),
	}

	// ON CONFLICT DO NOTHING reports zero rows affected for a replay.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.UpsertEvent(context.Background(), event); err != nil {
		t.Fatalf("UpsertEvent on duplicate: %v", err)
	}
}

func TestMarkEventProcessed(t *testing.T) {
	s, mock := newMockDB(t)

	at := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET processed = TRUE")).
		WithArgs("ev-abc123", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkEventProcessed(context.Background(), "ev-abc123", at); err != nil {
		t.Fatalf("MarkEventProcessed: %v", err)
	}
}

func TestListEvents_Filters(t *testing.T) {
	s, mock := newMockDB(t)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	cols := []string{"event_id", "event_type", "category", "user_id", "session_id", "timestamp", "raw_data",
		"lesson_id", "file_name", "cost", "duration_secs", "response_time_ms", "processed", "processed_at", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT") + ".*" + regexp.QuoteMeta("FROM events WHERE timestamp >= $1 AND timestamp < $2 AND category = $3")).
		WithArgs(start, end, "voice_interaction").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("ev-1", "voice_session_started", "voice_interaction", "user-1", nil, start.Add(time.Hour), nil,
				nil, nil, nil, nil, nil, true, start.Add(time.Hour), start.Add(time.Hour)))

	events, err := s.ListEvents(context.Background(), model.EventFilter{
		Start:    start,
		End:      end,
		Category: model.CategoryVoice,
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ListEvents returned %d events, want 1", len(events))
	}
	if events[0].EventID != "ev-1" || events[0].Category != model.CategoryVoice {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if !events[0].Processed || events[0].ProcessedAt == nil {
		t.Errorf("expected processed event, got %+v", events[0])
	}
}

func TestCountEvents(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE event_type = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := s.CountEvents(context.Background(), model.EventFilter{Types: []string{"login_failed"}})
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 42 {
		t.Errorf("CountEvents = %d, want 42", count)
	}
}

func TestTouchFeatureAdoption(t *testing.T) {
	s, mock := newMockDB(t)

	ts := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO feature_adoption (user_id, first_voice_date, updated_at)")).
		WithArgs("user-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.TouchFeatureAdoption(context.Background(), "user-1", model.FeatureVoice, ts); err != nil {
		t.Fatalf("TouchFeatureAdoption: %v", err)
	}
}

func TestTouchFeatureAdoption_UnknownColumn(t *testing.T) {
	s, _ := newMockDB(t)

	err := s.TouchFeatureAdoption(context.Background(), "user-1", model.Feature("drop table"), time.Now())
	if err == nil {
		t.Fatal("expected error for unknown adoption feature")
	}
}

func TestGetFeatureAdoption(t *testing.T) {
	s, mock := newMockDB(t)

	lesson := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	voice := time.Date(2025, 6, 3, 14, 30, 0, 0, time.UTC)
	updated := time.Date(2025, 6, 3, 14, 30, 1, 0, time.UTC)

	cols := []string{
		"user_id", "first_lesson_date", "first_voice_date", "first_upload_date",
		"first_quiz_date", "first_integration_date", "first_export_date", "updated_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM feature_adoption WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("user-1", lesson, voice, nil, nil, nil, nil, updated))

	fa, err := s.GetFeatureAdoption(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetFeatureAdoption: %v", err)
	}
	if fa.UserID != "user-1" {
		t.Errorf("user = %q", fa.UserID)
	}
	if fa.FirstLessonDate == nil || !fa.FirstLessonDate.Equal(lesson) {
		t.Errorf("first lesson = %v, want %v", fa.FirstLessonDate, lesson)
	}
	if fa.FirstVoiceDate == nil || !fa.FirstVoiceDate.Equal(voice) {
		t.Errorf("first voice = %v, want %v", fa.FirstVoiceDate, voice)
	}
	if fa.FirstUploadDate != nil || fa.FirstQuizDate != nil ||
		fa.FirstIntegrationDate != nil || fa.FirstExportDate != nil {
		t.Errorf("untouched features should be nil, got %+v", fa)
	}
	if !fa.UpdatedAt.Equal(updated) {
		t.Errorf("updated_at = %v, want %v", fa.UpdatedAt, updated)
	}
}

func TestGetFeatureAdoption_NotFound(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM feature_adoption WHERE user_id = $1")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	fa, err := s.GetFeatureAdoption(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetFeatureAdoption: %v", err)
	}
	if fa != nil {
		t.Errorf("expected nil for missing user, got %+v", fa)
	}
}

func TestDistinctUsers(t *testing.T) {
	s, mock := newMockDB(t)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT user_id FROM events")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1").AddRow("user-2"))

	users, err := s.DistinctUsers(context.Background(), start, end)
	if err != nil {
		t.Fatalf("DistinctUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("DistinctUsers returned %d users, want 2", len(users))
	}
}

func TestEarliestEventTimes_Empty(t *testing.T) {
	s, _ := newMockDB(t)

	// No query is issued for an empty user set.
	earliest, err := s.EarliestEventTimes(context.Background(), nil)
	if err != nil {
		t.Fatalf("EarliestEventTimes: %v", err)
	}
	if len(earliest) != 0 {
		t.Errorf("expected empty map, got %v", earliest)
	}
}

func TestCountUsersActiveBetween_Empty(t *testing.T) {
	s, _ := newMockDB(t)

	count, err := s.CountUsersActiveBetween(context.Background(), nil, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("CountUsersActiveBetween: %v", err)
	}
	if count != 0 {
		t.Errorf("CountUsersActiveBetween = %d, want 0 for empty user set", count)
	}
}

func TestErrorRate_EmptyWindow(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"rate"}).AddRow(0.0))

	rate, err := s.ErrorRate(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("ErrorRate: %v", err)
	}
	if rate != 0 {
		t.Errorf("ErrorRate = %v, want 0 for empty window", rate)
	}
}

func TestCountEventsByCategory(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT category, COUNT(*) FROM events")).
		WillReturnRows(sqlmock.NewRows([]string{"category", "count"}).
			AddRow("learning_engagement", 10).
			AddRow("voice_interaction", 3))

	counts, err := s.CountEventsByCategory(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("CountEventsByCategory: %v", err)
	}
	if counts[model.CategoryEngagement] != 10 || counts[model.CategoryVoice] != 3 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestUpsertDailyActive(t *testing.T) {
	s, mock := newMockDB(t)

	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO daily_active_users")).
		WithArgs(date, 120, 15, 105).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertDailyActive(context.Background(), &model.DailyActive{
		Date:           date,
		UserCount:      120,
		NewUsers:       15,
		ReturningUsers: 105,
	})
	if err != nil {
		t.Fatalf("UpsertDailyActive: %v", err)
	}
}

func TestLatestTimeSeriesValue_Missing(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM time_series_metrics")).
		WithArgs("events_per_minute").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := s.LatestTimeSeriesValue(context.Background(), "events_per_minute")
	if err != nil {
		t.Fatalf("LatestTimeSeriesValue: %v", err)
	}
	if ok {
		t.Error("expected ok=false for metric with no points")
	}
}

func TestInsertTimeSeriesPoint_SetsID(t *testing.T) {
	s, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO time_series_metrics")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	point := &model.TimeSeriesPoint{
		Metric:    "total_events",
		Timestamp: time.Now(),
		Period:    model.PeriodDay,
		Value:     512,
	}
	if err := s.InsertTimeSeriesPoint(context.Background(), point); err != nil {
		t.Fatalf("InsertTimeSeriesPoint: %v", err)
	}
	if point.ID != 7 {
		t.Errorf("point.ID = %d, want 7", point.ID)
	}
}

func TestUpsertRetentionCohort(t *testing.T) {
	s, mock := newMockDB(t)

	cohort := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO retention_cohorts")).
		WithArgs(cohort, "day", 7, 40, 12, 30.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertRetentionCohort(context.Background(), &model.RetentionCohort{
		CohortDate:    cohort,
		Period:        model.PeriodDay,
		Offset:        7,
		CohortSize:    40,
		RetainedUsers: 12,
		RetentionRate: 30.0,
	})
	if err != nil {
		t.Fatalf("UpsertRetentionCohort: %v", err)
	}
}
