package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

// Transform normalizes a raw queue payload into a canonical event record.
// Producers disagree on field names and nesting, so each field is resolved
// by ordered fallback lookups across the top level and the event/data/
// properties sub-objects. The original payload is preserved in RawData.
func Transform(payload json.RawMessage, now time.Time) (*model.Event, error) {
	var top map[string]any
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	// Lookup order: top level first, then nested producer variants.
	sources := []map[string]any{top}
	for _, key := range []string{"event", "data", "properties"} {
		if nested, ok := top[key].(map[string]any); ok {
			sources = append(sources, nested)
		}
	}

	eventType := lookupString(sources, "event_type", "type", "event_name", "name")
	if eventType == "" {
		return nil, fmt.Errorf("payload has no event type")
	}
	eventType = strings.ToLower(strings.TrimSpace(eventType))

	ts := lookupTime(sources, "timestamp", "ts", "created_at", "time")
	if ts.IsZero() {
		ts = now
	}

	eventID := lookupString(sources, "event_id", "id")
	if eventID == "" {
		eventID = fmt.Sprintf("%s-%d", eventType, ts.UnixNano())
	}

	event := &model.Event{
		EventID:        eventID,
		Type:           eventType,
		Category:       Categorize(eventType),
		UserID:         lookupString(sources, "user_id", "userId", "uid"),
		SessionID:      lookupString(sources, "session_id", "sessionId"),
		Timestamp:      ts,
		RawData:        payload,
		LessonID:       lookupString(sources, "lesson_id", "lessonId"),
		FileName:       lookupString(sources, "file_name", "filename"),
		Cost:           lookupFloat(sources, "cost", "cost_usd"),
		DurationSecs:   lookupFloat(sources, "duration_secs", "duration_seconds", "duration"),
		ResponseTimeMS: lookupFloat(sources, "response_time_ms", "response_time", "latency_ms"),
	}
	return event, nil
}

func lookupString(sources []map[string]any, keys ...string) string {
	for _, key := range keys {
		for _, src := range sources {
			if v, ok := src[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func lookupFloat(sources []map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		for _, src := range sources {
			v, ok := src[key]
			if !ok {
				continue
			}
			switch n := v.(type) {
			case float64:
				f := n
				return &f
			case string:
				if f, err := strconv.ParseFloat(n, 64); err == nil {
					return &f
				}
			}
		}
	}
	return nil
}

func lookupTime(sources []map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		for _, src := range sources {
			v, ok := src[key]
			if !ok {
				continue
			}
			switch t := v.(type) {
			case string:
				if parsed, err := time.Parse(time.RFC3339, t); err == nil {
					return parsed
				}
			case float64:
				// Unix seconds, with millisecond producers detected by magnitude.
				secs := t
				if secs > 1e12 {
					secs = secs / 1000
				}
				return time.Unix(int64(secs), 0).UTC()
			}
		}
	}
	return time.Time{}
}
