package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
)

// ProofStore owns the append-only, versioned proof log.
type ProofStore struct {
	db *gorm.DB
}

func NewProofStore(db *gorm.DB) *ProofStore {
	return &ProofStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *ProofStore) WithTx(tx *gorm.DB) *ProofStore {
	return &ProofStore{db: tx}
}

// Active returns the active proof of an enrollment period, or nil when the period is empty.
func (s *ProofStore) Active(ctx context.Context, enrollmentID uint, periodKey string) (*models.Proof, error) {
	var proof models.Proof
	err := s.db.WithContext(ctx).
		Where("enrollment_id = ? AND period_key = ? AND is_active = ?", enrollmentID, periodKey, true).
		First(&proof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proof, nil
}

// Supersede deactivates current if it is still the active version.
func (s *ProofStore) Supersede(ctx context.Context, current *models.Proof) error {
	res := s.db.WithContext(ctx).
		Model(&models.Proof{}).
		Where("id = ? AND is_active = ? AND version = ?", current.ID, true, current.Version).
		Updates(map[string]any{"is_active": false, "active_slot": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("proof was superseded concurrently", nil)
	}
	current.IsActive = false
	current.ActiveSlot = nil
	return nil
}

// Append inserts proof as the active version of its period.
func (s *ProofStore) Append(ctx context.Context, proof *models.Proof) error {
	slot := models.ActiveSlotFor(proof.EnrollmentID, proof.PeriodKey)
	proof.IsActive = true
	proof.ActiveSlot = &slot
	if err := s.db.WithContext(ctx).Create(proof).Error; err != nil {
		if IsDuplicate(err) {
			return errutil.Conflict("active proof already exists for period", err)
		}
		return err
	}
	return nil
}

// ActiveForEnrollments returns the active proofs of the given enrollments.
func (s *ProofStore) ActiveForEnrollments(ctx context.Context, enrollmentIDs []uint) ([]models.Proof, error) {
	if len(enrollmentIDs) == 0 {
		return nil, nil
	}
	var proofs []models.Proof
	err := s.db.WithContext(ctx).
		Where("enrollment_id IN ? AND is_active = ?", enrollmentIDs, true).
		Order("enrollment_id ASC, period_key ASC").
		Find(&proofs).Error
	return proofs, err
}

// History returns every version of every period for an enrollment, newest first.
func (s *ProofStore) History(ctx context.Context, enrollmentID uint) ([]models.Proof, error) {
	var proofs []models.Proof
	err := s.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("period_key DESC, version DESC").
		Find(&proofs).Error
	return proofs, err
}

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
