package ingest

import (
	"testing"

	"github.com/lumenlearn/pulse/internal/model"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		eventType string
		want      model.Category
	}{
		{"lesson_completed", model.CategoryEngagement},
		{"LESSON_COMPLETED", model.CategoryEngagement},
		{"app_opened", model.CategoryLifecycle},
		{"voice_session_started", model.CategoryVoice},
		{"quiz_started", model.CategoryAssessment},
		{"payment_failed", model.CategorySubscription},
		{"app_crashed", model.CategoryCritical},
		{"something_nobody_sends", model.CategoryOther},
	}
	for _, tt := range tests {
		if got := Categorize(tt.eventType); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}

func TestAdoptionFeature(t *testing.T) {
	tests := []struct {
		eventType string
		want      model.Feature
		ok        bool
	}{
		{"lesson_generated", model.FeatureLesson, true},
		{"lesson_started", model.FeatureLesson, true},
		{"lesson_completed", "", false}, // completing is not adopting
		{"voice_session_started", model.FeatureVoice, true},
		{"file_uploaded", model.FeatureUpload, true},
		{"quiz_started", model.FeatureQuiz, true},
		{"calendar_connected", model.FeatureIntegration, true},
		{"export_completed", model.FeatureExport, true},
		{"app_opened", "", false},
	}
	for _, tt := range tests {
		got, ok := AdoptionFeature(tt.eventType)
		if ok != tt.ok || got != tt.want {
			t.Errorf("AdoptionFeature(%q) = (%q, %v), want (%q, %v)", tt.eventType, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTriggerSeverity(t *testing.T) {
	tests := []struct {
		eventType string
		trigger   bool
		severity  model.Severity
	}{
		{"app_crashed", true, model.SeverityCritical},
		{"fatal_error", true, model.SeverityCritical},
		{"payment_failed", true, model.SeverityHigh},
		{"processing_failed", true, model.SeverityMedium},
		{"voice_error", true, model.SeverityMedium},
		{"integration_error", true, model.SeverityMedium},
		{"lesson_completed", false, model.SeverityMedium},
	}
	for _, tt := range tests {
		if got := IsAlertTrigger(tt.eventType); got != tt.trigger {
			t.Errorf("IsAlertTrigger(%q) = %v, want %v", tt.eventType, got, tt.trigger)
		}
		if got := TriggerSeverity(tt.eventType); got != tt.severity {
			t.Errorf("TriggerSeverity(%q) = %q, want %q", tt.eventType, got, tt.severity)
		}
	}
}
