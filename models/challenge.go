package models

import (
	"time"

	"github.com/cppla/challengehub/errutil"
)

// Cadence is the required submission frequency of a challenge.
type Cadence string

const (
	CadenceDaily          Cadence = "DAILY"
	CadenceEndOfChallenge Cadence = "END_OF_CHALLENGE"
)

// Valid reports whether c is one of the known cadences.
func (c Cadence) Valid() bool {
	return c == CadenceDaily || c == CadenceEndOfChallenge
}

// ProofType is the kind of evidence a challenge accepts.
type ProofType string

const (
	ProofText  ProofType = "TEXT"
	ProofPhoto ProofType = "PHOTO"
	ProofLink  ProofType = "LINK"
)

// Valid reports whether t is one of the known proof types.
func (t ProofType) Valid() bool {
	return t == ProofText || t == ProofPhoto || t == ProofLink
}

// DailyCadenceConfig tunes DAILY challenges.
type DailyCadenceConfig struct {
	// Timezone is an IANA location name used for day boundaries. Empty means the server default.
	Timezone string `json:"timezone,omitempty"`
	// IncludeEndDay keeps submissions open until the end of the calendar day containing EndAt.
	IncludeEndDay bool `json:"include_end_day,omitempty"`
}

// EndOfChallengeCadenceConfig tunes END_OF_CHALLENGE challenges.
type EndOfChallengeCadenceConfig struct {
	// GraceSeconds keeps submissions open after EndAt. Zero closes them at EndAt.
	GraceSeconds int `json:"grace_seconds,omitempty"`
}

// ChallengeRules carries the cadence-specific settings; at most the sub-record matching the cadence is set.
type ChallengeRules struct {
	Daily          *DailyCadenceConfig          `json:"daily,omitempty"`
	EndOfChallenge *EndOfChallengeCadenceConfig `json:"end_of_challenge,omitempty"`
}

// Challenge is a time-boxed group challenge.
type Challenge struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatorID uint           `gorm:"index;not null" json:"creator_id"`
	Title     string         `gorm:"size:255" json:"title"`
	StartAt   time.Time      `gorm:"not null" json:"start_at"`
	EndAt     time.Time      `gorm:"not null" json:"end_at"`
	Cadence   Cadence        `gorm:"size:32;not null" json:"cadence"`
	ProofType ProofType      `gorm:"size:16;not null" json:"proof_type"`
	Rules     ChallengeRules `gorm:"serializer:json;type:text" json:"rules"`
	EntryFee  int64          `gorm:"not null" json:"entry_fee"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Validate checks the challenge once at the creation boundary.
func (c *Challenge) Validate() error {
	if c.StartAt.IsZero() || c.EndAt.IsZero() {
		return errutil.Validation(errutil.ReasonInvalidChallenge, "start_at and end_at are required")
	}
	if !c.StartAt.Before(c.EndAt) {
		return errutil.Validation(errutil.ReasonInvalidChallenge, "start_at must be before end_at")
	}
	if !c.Cadence.Valid() {
		return errutil.UnknownCadence(string(c.Cadence))
	}
	if !c.ProofType.Valid() {
		return errutil.Validation(errutil.ReasonInvalidChallenge, "unknown proof type")
	}
	if c.EntryFee < 0 {
		return errutil.Validation(errutil.ReasonInvalidChallenge, "entry fee must not be negative")
	}

	switch c.Cadence {
	case CadenceDaily:
		if c.Rules.EndOfChallenge != nil {
			return errutil.Validation(errutil.ReasonInvalidChallenge, "end_of_challenge rules set on a DAILY challenge")
		}
		if c.Rules.Daily != nil && c.Rules.Daily.Timezone != "" {
			if _, err := time.LoadLocation(c.Rules.Daily.Timezone); err != nil {
				return errutil.Validation(errutil.ReasonInvalidChallenge, "unknown timezone "+c.Rules.Daily.Timezone)
			}
		}
	case CadenceEndOfChallenge:
		if c.Rules.Daily != nil {
			return errutil.Validation(errutil.ReasonInvalidChallenge, "daily rules set on an END_OF_CHALLENGE challenge")
		}
		if c.Rules.EndOfChallenge != nil && c.Rules.EndOfChallenge.GraceSeconds < 0 {
			return errutil.Validation(errutil.ReasonInvalidChallenge, "grace_seconds must not be negative")
		}
	}
	return nil
}
