package models

import "time"

// Enrollment links one participant to one challenge.
type Enrollment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChallengeID uint      `gorm:"not null;uniqueIndex:idx_enrollment_challenge_user,priority:1" json:"challenge_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_enrollment_challenge_user,priority:2;index" json:"user_id"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`
}
