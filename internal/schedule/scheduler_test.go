package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

type fakeAggregator struct {
	mu          sync.Mutex
	dauDates    []time.Time
	rollups     []string
	dailyDates  []time.Time
	failOnDates map[string]bool
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{failOnDates: make(map[string]bool)}
}

func (f *fakeAggregator) CalculateDAU(ctx context.Context, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dauDates = append(f.dauDates, date)
	return nil
}

func (f *fakeAggregator) CreateTimeSeriesRollup(ctx context.Context, metric string, period model.PeriodType, anchor time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollups = append(f.rollups, metric+"/"+string(period))
	return nil
}

func (f *fakeAggregator) RunDailyAggregations(ctx context.Context, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyDates = append(f.dailyDates, date)
	if f.failOnDates[date.Format("2006-01-02")] {
		return errors.New("aggregation failed")
	}
	return nil
}

func (f *fakeAggregator) dailyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dailyDates)
}

type fakeRetention struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRetention) Recalculate(ctx context.Context, asOf time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeRetention) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackfill_DayByDay(t *testing.T) {
	agg := newFakeAggregator()
	s := New(agg, &fakeRetention{}, testLogger())

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)
	if err := s.Backfill(context.Background(), start, end); err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(agg.dailyDates) != 5 {
		t.Fatalf("ran %d days, want 5", len(agg.dailyDates))
	}
	if !agg.dailyDates[0].Equal(start) || !agg.dailyDates[4].Equal(end) {
		t.Errorf("range = %v..%v", agg.dailyDates[0], agg.dailyDates[4])
	}
}

func TestBackfill_FailingDayDoesNotHalt(t *testing.T) {
	agg := newFakeAggregator()
	agg.failOnDates["2024-04-02"] = true
	s := New(agg, &fakeRetention{}, testLogger())

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)
	err := s.Backfill(context.Background(), start, end)
	if err == nil {
		t.Fatal("expected error reporting the failed day")
	}
	if len(agg.dailyDates) != 3 {
		t.Errorf("ran %d days despite one failure, want all 3", len(agg.dailyDates))
	}
}

func TestBackfill_CancelledContext(t *testing.T) {
	agg := newFakeAggregator()
	s := New(agg, &fakeRetention{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Backfill(ctx, start, start.AddDate(0, 0, 10)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(agg.dailyDates) != 0 {
		t.Errorf("ran %d days after cancellation", len(agg.dailyDates))
	}
}

func TestHourlyJob(t *testing.T) {
	agg := newFakeAggregator()
	s := New(agg, &fakeRetention{}, testLogger())

	s.hourlyJob(context.Background())

	want := []string{"total_events/hour", "unique_users/hour"}
	if len(agg.rollups) != 2 || agg.rollups[0] != want[0] || agg.rollups[1] != want[1] {
		t.Errorf("rollups = %v, want %v", agg.rollups, want)
	}
	if len(agg.dauDates) != 1 {
		t.Errorf("dau refreshed %d times, want 1", len(agg.dauDates))
	}
}

func TestDailyJob_RunsYesterday(t *testing.T) {
	agg := newFakeAggregator()
	s := New(agg, &fakeRetention{}, testLogger())

	s.dailyJob(context.Background())

	if len(agg.dailyDates) != 1 {
		t.Fatalf("ran %d aggregations, want 1", len(agg.dailyDates))
	}
	wantDay := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	if got := agg.dailyDates[0].Format("2006-01-02"); got != wantDay {
		t.Errorf("aggregated %s, want %s", got, wantDay)
	}
}

func TestStartStop(t *testing.T) {
	agg := newFakeAggregator()
	ret := &fakeRetention{}
	s := New(agg, ret, testLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start did not fail")
	}

	st := s.Status()
	if !st.Running {
		t.Error("status not running after Start")
	}
	if st.NextHourly == nil || st.NextDaily == nil || st.NextRefresh == nil {
		t.Errorf("missing next-run times: %+v", st)
	}

	// The startup backfill covers the last week and refreshes retention.
	deadline := time.Now().Add(2 * time.Second)
	for (agg.dailyCount() < initialBackfillDays+1 || ret.callCount() < 1) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := agg.dailyCount(); got < initialBackfillDays+1 {
		t.Errorf("startup backfill ran %d days, want %d", got, initialBackfillDays+1)
	}
	if ret.callCount() != 1 {
		t.Errorf("retention refreshed %d times, want 1", ret.callCount())
	}

	s.Stop()
	if s.Status().Running {
		t.Error("status still running after Stop")
	}
}
