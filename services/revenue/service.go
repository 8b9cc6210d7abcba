package revenue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/metrics"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/payout"
	"github.com/cppla/challengehub/services/store"
)

var idempotenceNamespace = uuid.MustParse("4f6b2c1e-9d3a-5e7f-8b0c-2a1d3e5f7c9b")

// IdempotenceKey derives the payout idempotence key of a (payment, challenge) pair.
func IdempotenceKey(paymentID string, challengeID uint) string {
	name := fmt.Sprintf("payment:%s|challenge:%d", paymentID, challengeID)
	return uuid.NewSHA1(idempotenceNamespace, []byte(name)).String()
}

// Distribution is a creator payout with a split already computed by the caller.
type Distribution struct {
	ChallengeID       uint
	CreatorID         uint
	ExternalCreatorID string
	PaymentID         string
	TotalAmount       int64
	CreatorAmount     int64
	PlatformAmount    int64
}

// PaymentEvent is a succeeded payment for a paid challenge.
type PaymentEvent struct {
	ChallengeID       uint
	CreatorID         uint
	ExternalCreatorID string
	PaymentID         string
	TotalAmount       int64
	// SplitBps overrides the policy's creator share when positive.
	SplitBps int
}

// Result is the outcome of one distribution call. Err carries the classified transfer failure, if any.
type Result struct {
	ShareID    uint                      `json:"share_id"`
	Status     models.RevenueShareStatus `json:"status"`
	TransferID string                    `json:"transfer_id,omitempty"`
	RetryCount int                       `json:"retry_count"`
	Duplicate  bool                      `json:"duplicate"`
	Err        error                     `json:"-"`
}

// Service persists revenue shares and drives their payout transfers.
type Service struct {
	db         *gorm.DB
	transferer payout.Transferer
	policy     Policy
	clock      cadence.Clock
}

func NewService(db *gorm.DB, transferer payout.Transferer, policy Policy, clock cadence.Clock) *Service {
	if clock == nil {
		clock = cadence.SystemClock{}
	}
	return &Service{db: db, transferer: transferer, policy: policy.normalized(), clock: clock}
}

// Policy returns the effective settlement policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// OnPaymentSucceeded splits a payment and distributes the creator share.
func (s *Service) OnPaymentSucceeded(ctx context.Context, ev PaymentEvent) (Result, error) {
	bps := s.policy.CreatorShareBps
	if ev.SplitBps > 0 {
		bps = ev.SplitBps
	}
	creator, platform, err := Split(ev.TotalAmount, bps)
	if err != nil {
		return Result{}, err
	}
	return s.Distribute(ctx, Distribution{
		ChallengeID:       ev.ChallengeID,
		CreatorID:         ev.CreatorID,
		ExternalCreatorID: ev.ExternalCreatorID,
		PaymentID:         ev.PaymentID,
		TotalAmount:       ev.TotalAmount,
		CreatorAmount:     creator,
		PlatformAmount:    platform,
	})
}

// Distribute persists a pending share for the payment, transfers the creator amount and records the outcome.
// A share that already exists for the (payment, challenge) pair is returned as a duplicate without a transfer.
func (s *Service) Distribute(ctx context.Context, d Distribution) (Result, error) {
	if err := checkConservation(d); err != nil {
		zap.L().Error("revenue split rejected", zap.String("payment_id", d.PaymentID), zap.Uint("challenge_id", d.ChallengeID), zap.Error(err))
		return Result{}, err
	}
	if d.PaymentID == "" {
		return Result{}, errutil.Validation("missing_payment", "payment id is required")
	}
	if d.ExternalCreatorID == "" {
		return Result{}, errutil.Validation("missing_destination", "creator payout account is required")
	}

	existing, err := s.find(ctx, d.PaymentID, d.ChallengeID)
	if err != nil {
		return Result{}, errutil.Internal("load revenue share", err)
	}
	if existing != nil {
		return s.duplicate(existing, d), nil
	}

	notes, _ := json.Marshal(map[string]string{
		"challenge_id": strconv.FormatUint(uint64(d.ChallengeID), 10),
		"creator_id":   strconv.FormatUint(uint64(d.CreatorID), 10),
		"payment_id":   d.PaymentID,
	})
	now := s.clock.Now().UTC()
	// The first attempt holds a lease so the sweep never races the in-flight transfer.
	leaseUntil := now.Add(s.policy.LeaseDuration)
	share := &models.RevenueShare{
		PaymentID:         d.PaymentID,
		ChallengeID:       d.ChallengeID,
		CreatorID:         d.CreatorID,
		ExternalCreatorID: d.ExternalCreatorID,
		TotalAmount:       d.TotalAmount,
		Amount:            d.CreatorAmount,
		PlatformFee:       d.PlatformAmount,
		Currency:          s.policy.Currency,
		Status:            models.RevenueSharePending,
		IdempotenceKey:    IdempotenceKey(d.PaymentID, d.ChallengeID),
		NextAttemptAt:     now.Add(s.policy.PendingStaleAfter),
		ClaimedUntil:      &leaseUntil,
		Notes:             datatypes.JSON(notes),
	}
	if err := s.db.WithContext(ctx).Create(share).Error; err != nil {
		if store.IsDuplicate(err) {
			existing, ferr := s.find(ctx, d.PaymentID, d.ChallengeID)
			if ferr == nil && existing != nil {
				return s.duplicate(existing, d), nil
			}
		}
		return Result{}, errutil.Internal("create revenue share", err)
	}
	metrics.RecordTransition(string(models.RevenueSharePending))

	return s.attempt(ctx, share), nil
}

func checkConservation(d Distribution) error {
	if d.TotalAmount <= 0 || d.CreatorAmount < 0 || d.PlatformAmount < 0 {
		return errutil.Invariant(errutil.ReasonSplitMismatch,
			fmt.Sprintf("invalid amounts total=%d creator=%d platform=%d", d.TotalAmount, d.CreatorAmount, d.PlatformAmount))
	}
	if d.CreatorAmount+d.PlatformAmount != d.TotalAmount {
		return errutil.Invariant(errutil.ReasonSplitMismatch,
			fmt.Sprintf("creator %d + platform %d != total %d", d.CreatorAmount, d.PlatformAmount, d.TotalAmount))
	}
	return nil
}

func (s *Service) duplicate(existing *models.RevenueShare, d Distribution) Result {
	if existing.Amount != d.CreatorAmount || existing.PlatformFee != d.PlatformAmount {
		zap.L().Warn("redelivered payment with different split",
			zap.String("payment_id", d.PaymentID),
			zap.Uint("challenge_id", d.ChallengeID),
			zap.Int64("stored_amount", existing.Amount),
			zap.Int64("requested_amount", d.CreatorAmount))
	}
	res := resultOf(existing)
	res.Duplicate = true
	return res
}

// attempt transfers outside any transaction and persists the outcome.
func (s *Service) attempt(ctx context.Context, share *models.RevenueShare) Result {
	ctx = context.WithoutCancel(ctx)

	var notes map[string]string
	if len(share.Notes) > 0 {
		_ = json.Unmarshal(share.Notes, &notes)
	}
	req := payout.TransferRequest{
		Amount:         share.Amount,
		Currency:       share.Currency,
		DestinationID:  share.ExternalCreatorID,
		IdempotenceKey: share.IdempotenceKey,
		Reason:         fmt.Sprintf("challenge %d revenue share", share.ChallengeID),
		Notes:          notes,
	}

	tctx, cancel := context.WithTimeout(ctx, s.policy.TransferTimeout)
	started := time.Now()
	receipt, err := s.transferer.Transfer(tctx, req)
	cancel()

	if err == nil {
		metrics.RecordTransfer("success", time.Since(started))
		return s.complete(ctx, share, receipt)
	}

	classified := classify(err)
	if errutil.IsKind(classified, errutil.KindPermanentExternal) {
		metrics.RecordTransfer("rejected", time.Since(started))
	} else {
		metrics.RecordTransfer("error", time.Since(started))
	}
	return s.fail(ctx, share, classified)
}

func (s *Service) complete(ctx context.Context, share *models.RevenueShare, receipt payout.Receipt) Result {
	now := s.clock.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.RevenueShare{}).
		Where("id = ? AND status IN ?", share.ID, []models.RevenueShareStatus{models.RevenueSharePending, models.RevenueShareRetry}).
		Updates(map[string]any{
			"status":        models.RevenueShareCompleted,
			"transfer_id":   receipt.TransferID,
			"processed_at":  now,
			"error_message": "",
			"claimed_until": nil,
		})
	if res.Error != nil {
		zap.L().Error("persist completed revenue share failed",
			zap.Uint("share_id", share.ID), zap.String("transfer_id", receipt.TransferID), zap.Error(res.Error))
		out := resultOf(share)
		out.Err = errutil.Internal("persist completed revenue share", res.Error)
		return out
	}
	if res.RowsAffected == 0 {
		return s.reload(ctx, share)
	}

	metrics.RecordTransition(string(models.RevenueShareCompleted))
	zap.L().Info("revenue share completed",
		zap.Uint("share_id", share.ID), zap.String("payment_id", share.PaymentID), zap.String("transfer_id", receipt.TransferID))

	share.Status = models.RevenueShareCompleted
	share.TransferID = &receipt.TransferID
	share.ProcessedAt = &now
	share.ErrorMessage = ""
	share.ClaimedUntil = nil
	return resultOf(share)
}

func (s *Service) fail(ctx context.Context, share *models.RevenueShare, cause *errutil.Error) Result {
	now := s.clock.Now().UTC()
	updates := map[string]any{
		"error_message": cause.Error(),
		"claimed_until": nil,
	}
	status := models.RevenueShareRetry
	retryCount := share.RetryCount
	if cause.Kind == errutil.KindPermanentExternal {
		status = models.RevenueShareFailed
	} else {
		retryCount++
		updates["retry_count"] = retryCount
		updates["next_attempt_at"] = now.Add(s.policy.Backoff(retryCount))
	}
	updates["status"] = status

	res := s.db.WithContext(ctx).Model(&models.RevenueShare{}).
		Where("id = ? AND status IN ? AND retry_count = ?", share.ID,
			[]models.RevenueShareStatus{models.RevenueSharePending, models.RevenueShareRetry}, share.RetryCount).
		Updates(updates)
	if res.Error != nil {
		zap.L().Error("persist failed revenue share failed", zap.Uint("share_id", share.ID), zap.Error(res.Error))
		out := resultOf(share)
		out.Err = cause
		return out
	}
	if res.RowsAffected == 0 {
		out := s.reload(ctx, share)
		out.Err = cause
		return out
	}

	metrics.RecordTransition(string(status))
	zap.L().Warn("revenue share transfer failed",
		zap.Uint("share_id", share.ID),
		zap.String("payment_id", share.PaymentID),
		zap.String("status", string(status)),
		zap.Int("retry_count", retryCount),
		zap.Error(cause))

	share.Status = status
	share.RetryCount = retryCount
	share.ErrorMessage = cause.Error()
	share.ClaimedUntil = nil
	if t, ok := updates["next_attempt_at"].(time.Time); ok {
		share.NextAttemptAt = t
	}
	out := resultOf(share)
	out.Err = cause
	return out
}

// classify maps a transfer error onto the external error kinds.
func classify(err error) *errutil.Error {
	var perr *payout.Error
	if errors.As(err, &perr) && perr.Permanent() {
		return errutil.Wrap(errutil.KindPermanentExternal, perr.Code, "payout rejected", err)
	}
	reason := "transfer_failed"
	if perr != nil {
		reason = perr.Code
	} else if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	return errutil.Wrap(errutil.KindTransientExternal, reason, "payout failed", err)
}

func (s *Service) reload(ctx context.Context, share *models.RevenueShare) Result {
	var fresh models.RevenueShare
	if err := s.db.WithContext(ctx).First(&fresh, share.ID).Error; err != nil {
		return resultOf(share)
	}
	*share = fresh
	return resultOf(share)
}

func (s *Service) find(ctx context.Context, paymentID string, challengeID uint) (*models.RevenueShare, error) {
	var share models.RevenueShare
	err := s.db.WithContext(ctx).Where("payment_id = ? AND challenge_id = ?", paymentID, challengeID).First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &share, nil
}

func resultOf(share *models.RevenueShare) Result {
	res := Result{ShareID: share.ID, Status: share.Status, RetryCount: share.RetryCount}
	if share.TransferID != nil {
		res.TransferID = *share.TransferID
	}
	return res
}

// List returns shares in the given status, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, status models.RevenueShareStatus, limit int) ([]models.RevenueShare, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var shares []models.RevenueShare
	if err := q.Find(&shares).Error; err != nil {
		return nil, errutil.Internal("list revenue shares", err)
	}
	return shares, nil
}

// NeedsAttention returns shares whose retries are exhausted but were never permanently rejected.
func (s *Service) NeedsAttention(ctx context.Context) ([]models.RevenueShare, error) {
	var shares []models.RevenueShare
	err := s.db.WithContext(ctx).
		Where("status = ? AND retry_count >= ?", models.RevenueShareRetry, s.policy.MaxRetries).
		Order("id ASC").
		Find(&shares).Error
	if err != nil {
		return nil, errutil.Internal("list exhausted revenue shares", err)
	}
	return shares, nil
}
