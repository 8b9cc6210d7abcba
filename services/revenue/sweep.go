package revenue

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
)

// SweepResult summarizes one retry sweep.
type SweepResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`
}

// RetryPending claims due shares and retries their transfers one by one, paced by the batch delay.
// Due means retry or stale pending, under the retry cap, past next_attempt_at and not leased by another sweeper.
func (s *Service) RetryPending(ctx context.Context, maxBatch int) (SweepResult, error) {
	var out SweepResult
	if maxBatch <= 0 {
		maxBatch = 50
	}

	shares, err := s.claim(ctx, maxBatch)
	if err != nil {
		return out, err
	}
	if len(shares) == 0 {
		return out, nil
	}

	var limiter *rate.Limiter
	if s.policy.BatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.policy.BatchDelay), 1)
	}

	for i := range shares {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				zap.L().Info("revenue sweep interrupted", zap.Int("attempted", out.Attempted), zap.Error(err))
				return out, nil
			}
		} else if ctx.Err() != nil {
			return out, nil
		}

		res := s.attempt(ctx, &shares[i])
		out.Attempted++
		switch {
		case res.Status == models.RevenueShareCompleted:
			out.Succeeded++
		case res.Status == models.RevenueShareFailed:
			out.Rejected++
		default:
			out.Failed++
		}
	}

	zap.L().Info("revenue sweep finished",
		zap.Int("attempted", out.Attempted),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
		zap.Int("rejected", out.Rejected))
	return out, nil
}

// claim leases due rows in a short transaction so concurrent sweepers skip them.
func (s *Service) claim(ctx context.Context, limit int) ([]models.RevenueShare, error) {
	now := s.clock.Now().UTC()
	leaseUntil := now.Add(s.policy.LeaseDuration)

	var claimed []models.RevenueShare
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []models.RevenueShare
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ?", []models.RevenueShareStatus{models.RevenueSharePending, models.RevenueShareRetry}).
			Where("retry_count < ?", s.policy.MaxRetries).
			Where("next_attempt_at <= ?", now).
			Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
			Order("next_attempt_at ASC").
			Limit(limit).
			Find(&due).Error
		if err != nil {
			return err
		}

		for i := range due {
			res := tx.Model(&models.RevenueShare{}).
				Where("id = ? AND (claimed_until IS NULL OR claimed_until <= ?)", due[i].ID, now).
				Update("claimed_until", leaseUntil)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			due[i].ClaimedUntil = &leaseUntil
			claimed = append(claimed, due[i])
		}
		return nil
	})
	if err != nil {
		return nil, errutil.Internal("claim revenue shares", err)
	}
	return claimed, nil
}
