package ingest

import (
	"strings"

	"github.com/lumenlearn/pulse/internal/model"
)

// categoryByType maps normalized (lower-cased) event types to their
// category. Unknown types fall back to CategoryOther.
var categoryByType = map[string]model.Category{
	// lifecycle
	"app_opened":       model.CategoryLifecycle,
	"app_closed":       model.CategoryLifecycle,
	"app_backgrounded": model.CategoryLifecycle,
	"app_foregrounded": model.CategoryLifecycle,
	"session_started":  model.CategoryLifecycle,
	"session_ended":    model.CategoryLifecycle,
	"login_succeeded":  model.CategoryLifecycle,
	"login_failed":     model.CategoryLifecycle,

	// learning engagement
	"lesson_generated":   model.CategoryEngagement,
	"lesson_started":     model.CategoryEngagement,
	"lesson_completed":   model.CategoryEngagement,
	"lesson_paused":      model.CategoryEngagement,
	"lesson_resumed":     model.CategoryEngagement,
	"flashcard_reviewed": model.CategoryEngagement,
	"note_created":       model.CategoryEngagement,

	// content processing
	"file_uploaded":        model.CategoryProcessing,
	"file_processed":       model.CategoryProcessing,
	"processing_started":   model.CategoryProcessing,
	"processing_completed": model.CategoryProcessing,
	"processing_failed":    model.CategoryProcessing,
	"export_completed":     model.CategoryProcessing,

	// user interaction
	"button_clicked":   model.CategoryInteraction,
	"page_viewed":      model.CategoryInteraction,
	"search_performed": model.CategoryInteraction,
	"settings_changed": model.CategoryInteraction,

	// voice interaction
	"voice_session_started": model.CategoryVoice,
	"voice_session_ended":   model.CategoryVoice,
	"voice_error":           model.CategoryVoice,

	// integration
	"calendar_connected":    model.CategoryIntegration,
	"calendar_synced":       model.CategoryIntegration,
	"integration_connected": model.CategoryIntegration,
	"integration_error":     model.CategoryIntegration,

	// assessment
	"quiz_started":   model.CategoryAssessment,
	"quiz_answered":  model.CategoryAssessment,
	"quiz_completed": model.CategoryAssessment,

	// onboarding
	"onboarding_started":   model.CategoryOnboarding,
	"onboarding_completed": model.CategoryOnboarding,
	"onboarding_skipped":   model.CategoryOnboarding,

	// feedback
	"feedback_submitted": model.CategoryFeedback,
	"rating_given":       model.CategoryFeedback,

	// landing page
	"landing_page_viewed": model.CategoryLanding,
	"signup_clicked":      model.CategoryLanding,

	// performance
	"slow_query":     model.CategoryPerformance,
	"memory_warning": model.CategoryPerformance,

	// business intelligence
	"report_generated": model.CategoryBI,
	"dashboard_viewed": model.CategoryBI,

	// subscription
	"subscription_started":   model.CategorySubscription,
	"subscription_cancelled": model.CategorySubscription,
	"trial_started":          model.CategorySubscription,
	"payment_succeeded":      model.CategorySubscription,
	"payment_failed":         model.CategorySubscription,

	// critical alerts
	"app_crashed": model.CategoryCritical,
	"fatal_error": model.CategoryCritical,
}

// adoptionByType maps event types to the first-use column they set.
// lesson_completed deliberately maps to nothing; only generating or
// starting a lesson counts as adopting the feature.
var adoptionByType = map[string]model.Feature{
	"lesson_generated":      model.FeatureLesson,
	"lesson_started":        model.FeatureLesson,
	"voice_session_started": model.FeatureVoice,
	"file_uploaded":         model.FeatureUpload,
	"quiz_started":          model.FeatureQuiz,
	"calendar_connected":    model.FeatureIntegration,
	"export_completed":      model.FeatureExport,
}

// severityByTrigger lists event types that create an alert on sight.
var severityByTrigger = map[string]model.Severity{
	"app_crashed":       model.SeverityCritical,
	"fatal_error":       model.SeverityCritical,
	"payment_failed":    model.SeverityHigh,
	"processing_failed": model.SeverityMedium,
	"voice_error":       model.SeverityMedium,
	"integration_error": model.SeverityMedium,
}

// Categorize returns the category for an event type.
func Categorize(eventType string) model.Category {
	if c, ok := categoryByType[strings.ToLower(eventType)]; ok {
		return c
	}
	return model.CategoryOther
}

// AdoptionFeature returns the first-use column an event type maps to,
// or false when the type does not mark feature adoption.
func AdoptionFeature(eventType string) (model.Feature, bool) {
	f, ok := adoptionByType[strings.ToLower(eventType)]
	return f, ok
}

// IsAlertTrigger reports whether an event type creates an alert on arrival.
func IsAlertTrigger(eventType string) bool {
	_, ok := severityByTrigger[strings.ToLower(eventType)]
	return ok
}

// TriggerSeverity returns the severity of an alert-trigger event type,
// defaulting to medium for unlisted types.
func TriggerSeverity(eventType string) model.Severity {
	if s, ok := severityByTrigger[strings.ToLower(eventType)]; ok {
		return s
	}
	return model.SeverityMedium
}
