package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/progress"
	"github.com/cppla/challengehub/services/store"
	"github.com/cppla/challengehub/utils"
)

// ChallengeController manages challenges, enrollments and their standings.
type ChallengeController struct {
	db       *gorm.DB
	progress *progress.Service
	clock    cadence.Clock
}

// NewChallengeController creates a new ChallengeController instance.
func NewChallengeController(db *gorm.DB, progressSvc *progress.Service, clock cadence.Clock) *ChallengeController {
	if clock == nil {
		clock = cadence.SystemClock{}
	}
	return &ChallengeController{db: db, progress: progressSvc, clock: clock}
}

type createChallengeRequest struct {
	Title     string                `json:"title" binding:"required,min=1"`
	StartAt   time.Time             `json:"start_at" binding:"required"`
	EndAt     time.Time             `json:"end_at" binding:"required"`
	Cadence   models.Cadence        `json:"cadence" binding:"required"`
	ProofType models.ProofType      `json:"proof_type" binding:"required"`
	Rules     models.ChallengeRules `json:"rules"`
	EntryFee  int64                 `json:"entry_fee"`
}

// CreateChallenge creates a challenge owned by the caller.
func (c *ChallengeController) CreateChallenge(ctx *gin.Context) {
	userID, ok := requireUserID(ctx)
	if !ok {
		return
	}

	var req createChallengeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	title := utils.SanitizeText(req.Title)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title cannot be empty")
		return
	}

	challenge := models.Challenge{
		CreatorID: userID,
		Title:     title,
		StartAt:   req.StartAt.UTC(),
		EndAt:     req.EndAt.UTC(),
		Cadence:   models.Cadence(strings.ToUpper(string(req.Cadence))),
		ProofType: models.ProofType(strings.ToUpper(string(req.ProofType))),
		Rules:     req.Rules,
		EntryFee:  req.EntryFee,
	}
	if err := challenge.Validate(); err != nil {
		utils.RespondError(ctx, err)
		return
	}

	if err := c.db.WithContext(ctx.Request.Context()).Create(&challenge).Error; err != nil {
		utils.RespondError(ctx, errutil.Internal("create challenge", err))
		return
	}

	ctx.JSON(http.StatusCreated, utils.JSONResponse{Code: 0, Message: "success", Data: challenge})
}

// GetChallenge returns a challenge with its required submission count.
func (c *ChallengeController) GetChallenge(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	challenge, err := c.load(ctx, id)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}

	required, err := cadence.RequiredPeriods(challenge)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	var enrolled int64
	c.db.WithContext(ctx.Request.Context()).Model(&models.Enrollment{}).Where("challenge_id = ?", id).Count(&enrolled)

	utils.Success(ctx, gin.H{
		"challenge":      challenge,
		"required_count": required,
		"enrolled_count": enrolled,
	})
}

// Enroll joins the caller to a challenge. Enrolling twice returns the existing enrollment.
func (c *ChallengeController) Enroll(ctx *gin.Context) {
	userID, ok := requireUserID(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	challenge, err := c.load(ctx, id)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}

	now := c.clock.Now()
	if cadence.WindowOf(challenge).Ended(now) {
		utils.RespondError(ctx, errutil.State(errutil.ReasonChallengeEnded, cadence.ReasonChallengeEnded))
		return
	}

	reqCtx := ctx.Request.Context()
	enrollment := models.Enrollment{ChallengeID: id, UserID: userID, JoinedAt: now.UTC()}
	created := true
	if err := c.db.WithContext(reqCtx).Create(&enrollment).Error; err != nil {
		if !store.IsDuplicate(err) {
			utils.RespondError(ctx, errutil.Internal("create enrollment", err))
			return
		}
		created = false
		if err := c.db.WithContext(reqCtx).Where("challenge_id = ? AND user_id = ?", id, userID).First(&enrollment).Error; err != nil {
			utils.RespondError(ctx, errutil.Internal("load enrollment", err))
			return
		}
	}

	if created {
		c.progress.Invalidate(reqCtx, id)
	}
	utils.Success(ctx, gin.H{"enrollment": enrollment, "created": created})
}

// Leaderboard ranks every enrollment of a challenge.
func (c *ChallengeController) Leaderboard(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	entries, err := c.progress.GetLeaderboard(ctx.Request.Context(), id)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"entries": entries})
}

// Eligible lists the enrollments currently eligible for rewards.
func (c *ChallengeController) Eligible(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	entries, err := c.progress.EligibleEnrollments(ctx.Request.Context(), id)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"entries": entries})
}

func (c *ChallengeController) load(ctx *gin.Context, id uint) (*models.Challenge, error) {
	var challenge models.Challenge
	if err := c.db.WithContext(ctx.Request.Context()).First(&challenge, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("challenge_not_found", "challenge not found")
		}
		return nil, errutil.Internal("load challenge", err)
	}
	return &challenge, nil
}
