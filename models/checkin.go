package models

import "time"

// Checkin records that an enrollment interacted during a period. One row per period, updated in place.
type Checkin struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EnrollmentID uint      `gorm:"not null;uniqueIndex:idx_checkin_period,priority:1" json:"enrollment_id"`
	PeriodKey    string    `gorm:"size:32;not null;uniqueIndex:idx_checkin_period,priority:2" json:"period_key"`
	ProofID      uint      `gorm:"not null" json:"proof_id"`
	Count        int       `gorm:"not null" json:"count"`
	CheckedAt    time.Time `gorm:"index;not null" json:"checked_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
