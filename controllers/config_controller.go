package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/revenue"
	"github.com/cppla/challengehub/utils"
)

// ConfigController serves the public engine settings clients need to build forms.
type ConfigController struct {
	timezone string
	policy   revenue.Policy
}

func NewConfigController(timezone string, policy revenue.Policy) *ConfigController {
	return &ConfigController{timezone: timezone, policy: policy}
}

// GetPolicy returns the accepted enums and settlement parameters.
func (c *ConfigController) GetPolicy(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"cadences":          []models.Cadence{models.CadenceDaily, models.CadenceEndOfChallenge},
		"proof_types":       []models.ProofType{models.ProofText, models.ProofPhoto, models.ProofLink},
		"default_timezone":  c.timezone,
		"creator_share_bps": c.policy.CreatorShareBps,
		"currency":          c.policy.Currency,
		"max_retries":       c.policy.MaxRetries,
	})
}
