package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
)

// CheckinStore keeps one in-place updated checkin row per enrollment period.
type CheckinStore struct {
	db *gorm.DB
}

func NewCheckinStore(db *gorm.DB) *CheckinStore {
	return &CheckinStore{db: db}
}

func (s *CheckinStore) WithTx(tx *gorm.DB) *CheckinStore {
	return &CheckinStore{db: tx}
}

// Touch finds or creates the period's checkin and points it at proofID.
func (s *CheckinStore) Touch(ctx context.Context, enrollmentID uint, periodKey string, proofID uint, at time.Time) (*models.Checkin, error) {
	db := s.db.WithContext(ctx)

	var checkin models.Checkin
	err := db.Where("enrollment_id = ? AND period_key = ?", enrollmentID, periodKey).First(&checkin).Error
	switch {
	case err == nil:
		checkin.ProofID = proofID
		checkin.Count++
		checkin.CheckedAt = at
		if err := db.Model(&checkin).Updates(map[string]any{
			"proof_id":   checkin.ProofID,
			"count":      checkin.Count,
			"checked_at": checkin.CheckedAt,
		}).Error; err != nil {
			return nil, err
		}
		return &checkin, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		checkin = models.Checkin{
			EnrollmentID: enrollmentID,
			PeriodKey:    periodKey,
			ProofID:      proofID,
			Count:        1,
			CheckedAt:    at,
		}
		if err := db.Create(&checkin).Error; err != nil {
			if IsDuplicate(err) {
				return nil, errutil.Conflict("checkin created concurrently", err)
			}
			return nil, err
		}
		return &checkin, nil
	default:
		return nil, err
	}
}

// ForEnrollments returns the checkins of the given enrollments.
func (s *CheckinStore) ForEnrollments(ctx context.Context, enrollmentIDs []uint) ([]models.Checkin, error) {
	if len(enrollmentIDs) == 0 {
		return nil, nil
	}
	var checkins []models.Checkin
	err := s.db.WithContext(ctx).
		Where("enrollment_id IN ?", enrollmentIDs).
		Order("enrollment_id ASC, period_key ASC").
		Find(&checkins).Error
	return checkins, err
}
