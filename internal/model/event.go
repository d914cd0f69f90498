package model

import (
	"encoding/json"
	"time"
)

// Event is the canonical, deduplicated form of an ingested queue message.
// At most one record exists per EventID; the upsert path enforces this.
// Records are never mutated after insert except to mark them processed.
type Event struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"event_type"`
	Category  Category        `json:"category"`
	UserID    string          `json:"user_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RawData   json.RawMessage `json:"raw_data,omitempty"`

	// Promoted scalar fields, extracted from the payload for fast filtering.
	LessonID       string   `json:"lesson_id,omitempty"`
	FileName       string   `json:"file_name,omitempty"`
	Cost           *float64 `json:"cost,omitempty"`
	DurationSecs   *float64 `json:"duration_secs,omitempty"`
	ResponseTimeMS *float64 `json:"response_time_ms,omitempty"`

	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EventFilter narrows event queries. Zero values are ignored.
type EventFilter struct {
	Start    time.Time
	End      time.Time
	Types    []string
	Category Category
	UserOnly bool // only events with a non-empty user id
	Limit    int
	Offset   int
}
