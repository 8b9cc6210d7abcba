package progress

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/store"
)

// Cache stores ranked leaderboards per challenge under a generation that Invalidate bumps.
// A board computed under an older generation must never be served once Invalidate has run.
type Cache interface {
	// Get returns the board of the current generation, and that generation on a miss.
	Get(ctx context.Context, challengeID uint) (entries []Entry, gen int64, ok bool)
	// Set stores entries computed under gen.
	Set(ctx context.Context, challengeID uint, gen int64, entries []Entry)
	Invalidate(ctx context.Context, challengeID uint)
}

// Service serves progress and leaderboards from the proof and checkin stores.
type Service struct {
	db       *gorm.DB
	proofs   *store.ProofStore
	checkins *store.CheckinStore
	cache    Cache
}

// NewService creates a progress service. cache may be nil.
func NewService(db *gorm.DB, cache Cache) *Service {
	return &Service{
		db:       db,
		proofs:   store.NewProofStore(db),
		checkins: store.NewCheckinStore(db),
		cache:    cache,
	}
}

// Invalidate drops the cached leaderboard of a challenge.
func (s *Service) Invalidate(ctx context.Context, challengeID uint) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, challengeID)
	}
}

// GetProgress computes the progress of one enrollment.
func (s *Service) GetProgress(ctx context.Context, enrollmentID uint) (Progress, error) {
	var enrollment models.Enrollment
	if err := s.db.WithContext(ctx).First(&enrollment, enrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Progress{}, errutil.NotFound("enrollment_not_found", "enrollment not found")
		}
		return Progress{}, errutil.Internal("load enrollment", err)
	}
	ch, err := s.challenge(ctx, enrollment.ChallengeID)
	if err != nil {
		return Progress{}, err
	}

	ids := []uint{enrollment.ID}
	proofs, err := s.proofs.ActiveForEnrollments(ctx, ids)
	if err != nil {
		return Progress{}, errutil.Internal("load proofs", err)
	}
	checkins, err := s.checkins.ForEnrollments(ctx, ids)
	if err != nil {
		return Progress{}, errutil.Internal("load checkins", err)
	}

	pr, err := Calculate(ch, proofs, checkins)
	if err != nil {
		return Progress{}, err
	}
	pr.EnrollmentID = enrollment.ID
	return pr, nil
}

// GetLeaderboard ranks every enrollment of a challenge.
func (s *Service) GetLeaderboard(ctx context.Context, challengeID uint) ([]Entry, error) {
	var gen int64
	if s.cache != nil {
		entries, g, ok := s.cache.Get(ctx, challengeID)
		if ok {
			return entries, nil
		}
		gen = g
	}

	ch, err := s.challenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	var enrollments []models.Enrollment
	if err := s.db.WithContext(ctx).Where("challenge_id = ?", challengeID).Order("id ASC").Find(&enrollments).Error; err != nil {
		return nil, errutil.Internal("load enrollments", err)
	}
	ids := make([]uint, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.ID)
	}

	proofs, err := s.proofs.ActiveForEnrollments(ctx, ids)
	if err != nil {
		return nil, errutil.Internal("load proofs", err)
	}
	checkins, err := s.checkins.ForEnrollments(ctx, ids)
	if err != nil {
		return nil, errutil.Internal("load checkins", err)
	}

	proofsBy := make(map[uint][]models.Proof, len(ids))
	for _, p := range proofs {
		proofsBy[p.EnrollmentID] = append(proofsBy[p.EnrollmentID], p)
	}
	checkinsBy := make(map[uint][]models.Checkin, len(ids))
	for _, c := range checkins {
		checkinsBy[c.EnrollmentID] = append(checkinsBy[c.EnrollmentID], c)
	}

	entries := make([]Entry, 0, len(enrollments))
	for _, e := range enrollments {
		pr, err := Calculate(ch, proofsBy[e.ID], checkinsBy[e.ID])
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			EnrollmentID:   e.ID,
			UserID:         e.UserID,
			JoinedAt:       e.JoinedAt,
			CompletionRate: pr.CompletionRate,
			CompletedCount: pr.CompletedCount,
			IsEligible:     pr.IsEligible,
			Reason:         pr.Reason,
		})
	}
	entries = Rank(entries)

	if s.cache != nil {
		s.cache.Set(ctx, challengeID, gen, entries)
	}
	return entries, nil
}

// EligibleEnrollments returns the ranked entries that qualify for winner selection, keeping leaderboard rank.
func (s *Service) EligibleEnrollments(ctx context.Context, challengeID uint) ([]Entry, error) {
	entries, err := s.GetLeaderboard(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	eligible := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsEligible {
			eligible = append(eligible, e)
		}
	}
	return eligible, nil
}

func (s *Service) challenge(ctx context.Context, id uint) (*models.Challenge, error) {
	var ch models.Challenge
	if err := s.db.WithContext(ctx).First(&ch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("challenge_not_found", "challenge not found")
		}
		return nil, errutil.Internal("load challenge", err)
	}
	return &ch, nil
}
