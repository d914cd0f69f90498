package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

// memEvent is the slice of an event the aggregate queries care about.
type memEvent struct {
	user     string
	ts       time.Time
	category model.Category
	duration float64
}

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu     sync.Mutex
	events []memEvent

	daily     map[time.Time]*model.DailyActive
	weekly    map[time.Time]*model.WeeklyActive
	monthly   map[time.Time]*model.MonthlyActive
	retention map[string]*model.RetentionCohort
	points    []*model.TimeSeriesPoint
}

func newMemStore() *memStore {
	return &memStore{
		daily:     make(map[time.Time]*model.DailyActive),
		weekly:    make(map[time.Time]*model.WeeklyActive),
		monthly:   make(map[time.Time]*model.MonthlyActive),
		retention: make(map[string]*model.RetentionCohort),
	}
}

func (m *memStore) addEvent(user string, ts time.Time, category model.Category, duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, memEvent{user: user, ts: ts, category: category, duration: duration})
}

func inWindow(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end)
}

func (m *memStore) DistinctUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for _, e := range m.events {
		if e.user != "" && inWindow(e.ts, start, end) {
			seen[e.user] = struct{}{}
		}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (m *memStore) EarliestEventTimes(ctx context.Context, userIDs []string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(userIDs))
	for _, u := range userIDs {
		want[u] = struct{}{}
	}
	earliest := make(map[string]time.Time)
	for _, e := range m.events {
		if _, ok := want[e.user]; !ok {
			continue
		}
		if first, ok := earliest[e.user]; !ok || e.ts.Before(first) {
			earliest[e.user] = e.ts
		}
	}
	return earliest, nil
}

func (m *memStore) CountUsersActiveBetween(ctx context.Context, userIDs []string, start, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(userIDs))
	for _, u := range userIDs {
		want[u] = struct{}{}
	}
	active := make(map[string]struct{})
	for _, e := range m.events {
		if _, ok := want[e.user]; ok && inWindow(e.ts, start, end) {
			active[e.user] = struct{}{}
		}
	}
	return len(active), nil
}

func (m *memStore) AvgSessionDuration(ctx context.Context, start, end time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[string]float64)
	for _, e := range m.events {
		if e.user != "" && e.duration > 0 && inWindow(e.ts, start, end) {
			totals[e.user] += e.duration
		}
	}
	if len(totals) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, d := range totals {
		sum += d
	}
	return sum / float64(len(totals)), nil
}

func (m *memStore) CountEventsByCategory(ctx context.Context, start, end time.Time) (map[model.Category]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.Category]int)
	for _, e := range m.events {
		if inWindow(e.ts, start, end) {
			counts[e.category]++
		}
	}
	return counts, nil
}

func (m *memStore) AvgResponseTime(ctx context.Context, start, end time.Time) (float64, error) {
	return 0, nil
}

func (m *memStore) ErrorRate(ctx context.Context, start, end time.Time) (float64, error) {
	return 0, nil
}

func (m *memStore) CountEvents(ctx context.Context, filter model.EventFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.events {
		if !filter.Start.IsZero() && e.ts.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && !e.ts.Before(filter.End) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *memStore) UpsertDailyActive(ctx context.Context, row *model.DailyActive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[row.Date] = row
	return nil
}

func (m *memStore) UpsertWeeklyActive(ctx context.Context, row *model.WeeklyActive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weekly[row.WeekStart] = row
	return nil
}

func (m *memStore) UpsertMonthlyActive(ctx context.Context, row *model.MonthlyActive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monthly[row.MonthStart] = row
	return nil
}

func (m *memStore) ListDailyActive(ctx context.Context, start, end time.Time) ([]*model.DailyActive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DailyActive
	for _, row := range m.daily {
		if !row.Date.Before(start) && !row.Date.After(end) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) ListWeeklyActive(ctx context.Context, start, end time.Time) ([]*model.WeeklyActive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WeeklyActive
	for _, row := range m.weekly {
		if !row.WeekStart.Before(start) && !row.WeekStart.After(end) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memStore) ListMonthlyActive(ctx context.Context, start, end time.Time) ([]*model.MonthlyActive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MonthlyActive
	for _, row := range m.monthly {
		if !row.MonthStart.Before(start) && !row.MonthStart.After(end) {
			out = append(out, row)
		}
	}
	return out, nil
}

func retentionKey(row *model.RetentionCohort) string {
	return fmt.Sprintf("%s/%s/%d", row.CohortDate.Format("2006-01-02"), row.Period, row.Offset)
}

func (m *memStore) UpsertRetentionCohort(ctx context.Context, row *model.RetentionCohort) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retention[retentionKey(row)] = row
	return nil
}

func (m *memStore) ListRetentionCohorts(ctx context.Context, period model.PeriodType, since time.Time) ([]*model.RetentionCohort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RetentionCohort
	for _, row := range m.retention {
		if row.Period == period && !row.CohortDate.Before(since) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memStore) LatestRetentionCohort(ctx context.Context, period model.PeriodType) ([]*model.RetentionCohort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	for _, row := range m.retention {
		if row.Period == period && row.CohortDate.After(latest) {
			latest = row.CohortDate
		}
	}
	var out []*model.RetentionCohort
	for _, row := range m.retention {
		if row.Period == period && row.CohortDate.Equal(latest) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

func (m *memStore) InsertTimeSeriesPoint(ctx context.Context, point *model.TimeSeriesPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	point.ID = int64(len(m.points) + 1)
	m.points = append(m.points, point)
	return nil
}

func (m *memStore) ListTimeSeriesPoints(ctx context.Context, metric string, period model.PeriodType, start, end time.Time) ([]*model.TimeSeriesPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.TimeSeriesPoint
	for _, p := range m.points {
		if p.Metric == metric && p.Period == period && inWindow(p.Timestamp, start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) LatestTimeSeriesValue(ctx context.Context, metric string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		found  bool
		latest time.Time
		value  float64
	)
	for _, p := range m.points {
		if p.Metric == metric && (!found || p.Timestamp.After(latest)) {
			found = true
			latest = p.Timestamp
			value = p.Value
		}
	}
	return value, found, nil
}
