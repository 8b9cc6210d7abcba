package controllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/utils"
)

// StatsController provides engine statistics such as counts and payout totals.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

type statusTotal struct {
	Status models.RevenueShareStatus `json:"status"`
	Count  int64                     `json:"count"`
	Amount int64                     `json:"amount"`
}

// GetStats returns aggregate statistics.
func (s *StatsController) GetStats(ctx *gin.Context) {
	db := s.db.WithContext(ctx.Request.Context())
	var challengeCount, enrollmentCount, proofCount int64

	if err := db.Model(&models.Challenge{}).Count(&challengeCount).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		challengeCount = 0
	}
	if err := db.Model(&models.Enrollment{}).Count(&enrollmentCount).Error; err != nil {
		enrollmentCount = 0
	}
	if err := db.Model(&models.Proof{}).Where("is_active = ?", true).Count(&proofCount).Error; err != nil {
		proofCount = 0
	}

	var totals []statusTotal
	if err := db.Model(&models.RevenueShare{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount),0) AS amount").
		Group("status").
		Scan(&totals).Error; err != nil {
		totals = nil
	}

	utils.Success(ctx, gin.H{
		"challenge_count":  challengeCount,
		"enrollment_count": enrollmentCount,
		"active_proofs":    proofCount,
		"revenue_shares":   totals,
	})
}
