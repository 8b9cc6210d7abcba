package models

import (
	"strconv"
	"time"
)

// Proof is one versioned submission for an enrollment period. Rows are never deleted;
// a replaced proof keeps its row with IsActive=false.
type Proof struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EnrollmentID uint      `gorm:"not null;index;uniqueIndex:idx_proof_period_version,priority:1" json:"enrollment_id"`
	PeriodKey    string    `gorm:"size:32;not null;uniqueIndex:idx_proof_period_version,priority:2" json:"period_key"`
	Version      int       `gorm:"not null;uniqueIndex:idx_proof_period_version,priority:3" json:"version"`
	Type         ProofType `gorm:"size:16;not null" json:"type"`
	Text         string    `gorm:"type:text" json:"text,omitempty"`
	URL          string    `gorm:"size:1024" json:"url,omitempty"`
	IsActive     bool      `gorm:"not null;index" json:"is_active"`
	// ActiveSlot is set only while the proof is active; its unique index allows one active proof per period.
	ActiveSlot *string   `gorm:"size:96;uniqueIndex" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActiveSlotFor returns the ActiveSlot value for an enrollment period.
func ActiveSlotFor(enrollmentID uint, periodKey string) string {
	return strconv.FormatUint(uint64(enrollmentID), 10) + ":" + periodKey
}
