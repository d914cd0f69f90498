package model

import "time"

// FeatureAdoption is one row per user; each column records the first
// time that user used a feature. Columns are write-once: a non-null
// value is never overwritten.
type FeatureAdoption struct {
	UserID               string     `json:"user_id"`
	FirstLessonDate      *time.Time `json:"first_lesson_date,omitempty"`
	FirstVoiceDate       *time.Time `json:"first_voice_date,omitempty"`
	FirstUploadDate      *time.Time `json:"first_upload_date,omitempty"`
	FirstQuizDate        *time.Time `json:"first_quiz_date,omitempty"`
	FirstIntegrationDate *time.Time `json:"first_integration_date,omitempty"`
	FirstExportDate      *time.Time `json:"first_export_date,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
