package controllers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/revenue"
	"github.com/cppla/challengehub/utils"
)

// WebhookSecretHeader carries the shared secret on payment webhooks.
const WebhookSecretHeader = "X-Webhook-Secret"

// PaymentController receives payment events from the billing provider.
type PaymentController struct {
	db      *gorm.DB
	revenue *revenue.Service
	secret  string
}

// NewPaymentController creates a new PaymentController instance.
func NewPaymentController(db *gorm.DB, revenueSvc *revenue.Service, secret string) *PaymentController {
	return &PaymentController{db: db, revenue: revenueSvc, secret: secret}
}

type paymentEventRequest struct {
	PaymentID         string `json:"payment_id" binding:"required"`
	ChallengeID       uint   `json:"challenge_id" binding:"required"`
	Amount            int64  `json:"amount" binding:"required"`
	Status            string `json:"status" binding:"required"`
	ExternalCreatorID string `json:"external_creator_id"`
	SplitBps          int    `json:"split_bps"`
}

// PaymentWebhook distributes the creator share of a succeeded payment.
// Redelivered events answer with the existing share and never transfer twice.
func (p *PaymentController) PaymentWebhook(ctx *gin.Context) {
	if p.secret == "" {
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "payment webhook disabled")
		return
	}
	got := ctx.GetHeader(WebhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(p.secret)) != 1 {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "invalid webhook secret")
		return
	}

	var req paymentEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	if !strings.EqualFold(req.Status, "succeeded") {
		utils.Success(ctx, gin.H{"ignored": true, "status": req.Status})
		return
	}

	reqCtx := ctx.Request.Context()
	var challenge models.Challenge
	if err := p.db.WithContext(reqCtx).First(&challenge, req.ChallengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(ctx, errutil.NotFound("challenge_not_found", "challenge not found"))
			return
		}
		utils.RespondError(ctx, errutil.Internal("load challenge", err))
		return
	}

	destination := req.ExternalCreatorID
	if destination == "" {
		var creator models.User
		if err := p.db.WithContext(reqCtx).First(&creator, challenge.CreatorID).Error; err == nil {
			destination = creator.PayoutAccountID
		}
	}

	res, err := p.revenue.OnPaymentSucceeded(reqCtx, revenue.PaymentEvent{
		ChallengeID:       challenge.ID,
		CreatorID:         challenge.CreatorID,
		ExternalCreatorID: destination,
		PaymentID:         req.PaymentID,
		TotalAmount:       req.Amount,
		SplitBps:          req.SplitBps,
	})
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	if res.Err != nil {
		// The share is persisted; the sweep or an operator takes it from here.
		zap.L().Warn("payout deferred", zap.Uint("share_id", res.ShareID), zap.String("status", string(res.Status)), zap.Error(res.Err))
	}
	utils.Success(ctx, res)
}
