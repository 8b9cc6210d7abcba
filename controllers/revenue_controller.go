package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/revenue"
	"github.com/cppla/challengehub/utils"
)

// RevenueController exposes revenue shares and the retry sweep to operators.
type RevenueController struct {
	revenue    *revenue.Service
	sweepBatch int
}

// NewRevenueController creates a new RevenueController instance.
func NewRevenueController(revenueSvc *revenue.Service, sweepBatch int) *RevenueController {
	return &RevenueController{revenue: revenueSvc, sweepBatch: sweepBatch}
}

// RetryPending runs one retry sweep synchronously.
func (r *RevenueController) RetryPending(ctx *gin.Context) {
	batch := r.sweepBatch
	if v, err := strconv.Atoi(ctx.Query("batch")); err == nil && v > 0 {
		batch = v
	}
	res, err := r.revenue.RetryPending(ctx.Request.Context(), batch)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// ListShares lists revenue shares, optionally filtered by status.
func (r *RevenueController) ListShares(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	shares, err := r.revenue.List(ctx.Request.Context(), models.RevenueShareStatus(ctx.Query("status")), limit)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"shares": shares})
}

// NeedsAttention lists shares whose automatic retries are exhausted.
func (r *RevenueController) NeedsAttention(ctx *gin.Context) {
	shares, err := r.revenue.NeedsAttention(ctx.Request.Context())
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"shares": shares})
}
