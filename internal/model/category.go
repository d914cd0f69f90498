package model

// Category classifies an event type into one of a fixed set of product
// areas. Unknown event types fall back to CategoryOther.
type Category string

const (
	CategoryLifecycle    Category = "lifecycle"
	CategoryEngagement   Category = "learning_engagement"
	CategoryProcessing   Category = "content_processing"
	CategoryInteraction  Category = "user_interaction"
	CategoryVoice        Category = "voice_interaction"
	CategoryIntegration  Category = "integration"
	CategoryAssessment   Category = "assessment"
	CategoryOnboarding   Category = "onboarding"
	CategoryFeedback     Category = "feedback"
	CategoryLanding      Category = "landing_page"
	CategoryPerformance  Category = "performance"
	CategoryBI           Category = "business_intelligence"
	CategorySubscription Category = "subscription"
	CategoryCritical     Category = "critical_alert"
	CategoryOther        Category = "other"
)

// Feature names a "first time the user did X" column on the
// feature_adoption table. Once set, a column never changes.
type Feature string

const (
	FeatureLesson      Feature = "first_lesson_date"
	FeatureVoice       Feature = "first_voice_date"
	FeatureUpload      Feature = "first_upload_date"
	FeatureQuiz        Feature = "first_quiz_date"
	FeatureIntegration Feature = "first_integration_date"
	FeatureExport      Feature = "first_export_date"
)

// Features lists every adoption column in table order.
func Features() []Feature {
	return []Feature{
		FeatureLesson,
		FeatureVoice,
		FeatureUpload,
		FeatureQuiz,
		FeatureIntegration,
		FeatureExport,
	}
}
