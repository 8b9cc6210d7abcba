package submission

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/metrics"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/store"
	"github.com/cppla/challengehub/utils"
)

// Payload is the content of a proof submission.
type Payload struct {
	Type models.ProofType `json:"type"`
	Text string           `json:"text"`
	URL  string           `json:"url"`
}

// Result describes an accepted submission.
type Result struct {
	ProofID   uint              `json:"proof_id"`
	CheckinID uint              `json:"checkin_id"`
	PeriodKey cadence.PeriodKey `json:"period_key"`
	Version   int               `json:"version"`
	Replaced  bool              `json:"replaced"`
}

// Invalidator drops derived views of a challenge after its proofs change.
type Invalidator interface {
	Invalidate(ctx context.Context, challengeID uint)
}

// Service accepts proof submissions.
type Service struct {
	db          *gorm.DB
	policy      *cadence.Policy
	proofs      *store.ProofStore
	checkins    *store.CheckinStore
	invalidator Invalidator
}

// NewService creates a submission service. invalidator may be nil.
func NewService(db *gorm.DB, policy *cadence.Policy, invalidator Invalidator) *Service {
	return &Service{
		db:          db,
		policy:      policy,
		proofs:      store.NewProofStore(db),
		checkins:    store.NewCheckinStore(db),
		invalidator: invalidator,
	}
}

// Submit records a proof for the enrollment's current period at the given instant,
// superseding the period's active proof if there is one.
func (s *Service) Submit(ctx context.Context, enrollmentID uint, payload Payload, at time.Time) (Result, error) {
	started := time.Now()
	res, err := s.submit(ctx, enrollmentID, payload, at)
	metrics.RecordSubmission(resultLabel(res, err), time.Since(started))
	return res, err
}

func (s *Service) submit(ctx context.Context, enrollmentID uint, payload Payload, at time.Time) (Result, error) {
	var enrollment models.Enrollment
	if err := s.db.WithContext(ctx).First(&enrollment, enrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, errutil.NotEnrolled()
		}
		return Result{}, errutil.Internal("load enrollment", err)
	}

	var challenge models.Challenge
	if err := s.db.WithContext(ctx).First(&challenge, enrollment.ChallengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, errutil.NotEnrolled()
		}
		return Result{}, errutil.Internal("load challenge", err)
	}

	period, err := s.policy.Admit(&challenge, at)
	if err != nil {
		return Result{}, err
	}

	content, err := normalize(challenge.ProofType, payload)
	if err != nil {
		return Result{}, err
	}

	res, err := s.record(ctx, enrollment.ID, period, content, at)
	if errutil.IsKind(err, errutil.KindConflict) {
		zap.L().Info("submission conflict, retrying once",
			zap.Uint("enrollment_id", enrollment.ID),
			zap.String("period", string(period)),
			zap.Error(err))
		res, err = s.record(ctx, enrollment.ID, period, content, at)
	}
	if err != nil {
		return Result{}, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, challenge.ID)
	}
	return res, nil
}

// record runs the supersede/append/checkin unit in one transaction holding the enrollment row lock.
func (s *Service) record(ctx context.Context, enrollmentID uint, period cadence.PeriodKey, content Payload, at time.Time) (Result, error) {
	var res Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Enrollment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, enrollmentID).Error; err != nil {
			return err
		}

		proofs := s.proofs.WithTx(tx)
		current, err := proofs.Active(ctx, enrollmentID, string(period))
		if err != nil {
			return err
		}

		version := 1
		if current != nil {
			if err := proofs.Supersede(ctx, current); err != nil {
				return err
			}
			version = current.Version + 1
		}

		proof := &models.Proof{
			EnrollmentID: enrollmentID,
			PeriodKey:    string(period),
			Version:      version,
			Type:         content.Type,
			Text:         content.Text,
			URL:          content.URL,
			CreatedAt:    at,
		}
		if err := proofs.Append(ctx, proof); err != nil {
			return err
		}

		checkin, err := s.checkins.WithTx(tx).Touch(ctx, enrollmentID, string(period), proof.ID, at)
		if err != nil {
			return err
		}

		res = Result{
			ProofID:   proof.ID,
			CheckinID: checkin.ID,
			PeriodKey: period,
			Version:   version,
			Replaced:  current != nil,
		}
		return nil
	})
	if err != nil {
		if _, ok := errutil.As(err); ok {
			return Result{}, err
		}
		if store.IsDuplicate(err) {
			return Result{}, errutil.Conflict("concurrent submission", err)
		}
		return Result{}, errutil.Internal("record submission", err)
	}
	return res, nil
}

// History returns all proof versions of an enrollment, newest first.
func (s *Service) History(ctx context.Context, enrollmentID uint) ([]models.Proof, error) {
	proofs, err := s.proofs.History(ctx, enrollmentID)
	if err != nil {
		return nil, errutil.Internal("load proof history", err)
	}
	return proofs, nil
}

func normalize(expected models.ProofType, p Payload) (Payload, error) {
	if p.Type == "" {
		p.Type = expected
	}
	if !p.Type.Valid() {
		return Payload{}, errutil.Validation(errutil.ReasonInvalidContent, "unsupported proof type")
	}

	switch p.Type {
	case models.ProofText:
		text := utils.SanitizeText(p.Text)
		if text == "" {
			return Payload{}, errutil.Validation(errutil.ReasonMissingContent, "missing content")
		}
		return Payload{Type: p.Type, Text: text}, nil
	default:
		raw := strings.TrimSpace(p.URL)
		if raw == "" {
			return Payload{}, errutil.Validation(errutil.ReasonMissingContent, "missing content")
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Payload{}, errutil.Validation(errutil.ReasonInvalidContent, "url must be an absolute http(s) url")
		}
		return Payload{Type: p.Type, URL: u.String()}, nil
	}
}

func resultLabel(res Result, err error) string {
	if err != nil {
		return string(errutil.KindOf(err))
	}
	if res.Replaced {
		return "replaced"
	}
	return "created"
}
