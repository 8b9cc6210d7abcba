package models

import (
	"time"

	"gorm.io/datatypes"
)

// RevenueShareStatus is the lifecycle state of a creator payout.
type RevenueShareStatus string

const (
	RevenueSharePending   RevenueShareStatus = "pending"
	RevenueShareCompleted RevenueShareStatus = "completed"
	RevenueShareRetry     RevenueShareStatus = "retry"
	RevenueShareFailed    RevenueShareStatus = "failed"
)

// Terminal reports whether no further transfer attempt is made for the status.
func (s RevenueShareStatus) Terminal() bool {
	return s == RevenueShareCompleted || s == RevenueShareFailed
}

// RevenueShare is the audit record of one creator payout for one payment. Never deleted.
type RevenueShare struct {
	ID                uint               `gorm:"primaryKey" json:"id"`
	PaymentID         string             `gorm:"size:128;not null;uniqueIndex:idx_revenue_payment_challenge,priority:1" json:"payment_id"`
	ChallengeID       uint               `gorm:"not null;index;uniqueIndex:idx_revenue_payment_challenge,priority:2" json:"challenge_id"`
	CreatorID         uint               `gorm:"not null;index" json:"creator_id"`
	ExternalCreatorID string             `gorm:"size:128;not null" json:"external_creator_id"`
	TotalAmount       int64              `gorm:"not null" json:"total_amount"`
	Amount            int64              `gorm:"not null" json:"amount"`
	PlatformFee       int64              `gorm:"not null" json:"platform_fee"`
	Currency          string             `gorm:"size:8;not null" json:"currency"`
	Status            RevenueShareStatus `gorm:"size:16;not null;index:idx_revenue_status_next,priority:1" json:"status"`
	RetryCount        int                `gorm:"not null" json:"retry_count"`
	IdempotenceKey    string             `gorm:"size:64;not null;uniqueIndex" json:"idempotence_key"`
	TransferID        *string            `gorm:"size:128" json:"transfer_id,omitempty"`
	ErrorMessage      string             `gorm:"type:text" json:"error_message,omitempty"`
	NextAttemptAt     time.Time          `gorm:"not null;index:idx_revenue_status_next,priority:2" json:"next_attempt_at"`
	ClaimedUntil      *time.Time         `json:"claimed_until,omitempty"`
	ProcessedAt       *time.Time         `json:"processed_at,omitempty"`
	Notes             datatypes.JSON     `json:"notes,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}
