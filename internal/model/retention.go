package model

import "time"

// RetentionCohort is one (cohort, offset) cell of a retention table.
// The cohort is the set of users whose first-ever activity fell inside
// the cohort window; RetainedUsers counts those active again at the
// given offset. Keyed by (CohortDate, Period, Offset); recomputation
// overwrites all offset rows for a cohort.
type RetentionCohort struct {
	CohortDate    time.Time  `json:"cohort_date"`
	Period        PeriodType `json:"period_type"`
	Offset        int        `json:"period_offset"`
	CohortSize    int        `json:"cohort_size"`
	RetainedUsers int        `json:"retained_users"`
	RetentionRate float64    `json:"retention_rate"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Rate computes retained/size as a percentage, zero-safe.
func Rate(retained, size int) float64 {
	if size == 0 {
		return 0
	}
	return float64(retained) / float64(size) * 100
}
