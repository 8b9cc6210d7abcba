package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/progress"
	"github.com/cppla/challengehub/services/submission"
	"github.com/cppla/challengehub/utils"
)

// ProofController accepts proof submissions and reports participant progress.
type ProofController struct {
	db          *gorm.DB
	submissions *submission.Service
	progress    *progress.Service
	clock       cadence.Clock
}

// NewProofController creates a new ProofController instance.
func NewProofController(db *gorm.DB, submissions *submission.Service, progressSvc *progress.Service, clock cadence.Clock) *ProofController {
	if clock == nil {
		clock = cadence.SystemClock{}
	}
	return &ProofController{db: db, submissions: submissions, progress: progressSvc, clock: clock}
}

// SubmitProof records a proof for the caller's enrollment in the current period.
func (p *ProofController) SubmitProof(ctx *gin.Context) {
	enrollment, ok := p.ownEnrollment(ctx)
	if !ok {
		return
	}

	var payload submission.Payload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	res, err := p.submissions.Submit(ctx.Request.Context(), enrollment.ID, payload, p.clock.Now())
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, utils.JSONResponse{Code: 0, Message: "success", Data: res})
}

// ListProofs returns every proof version of the caller's enrollment.
func (p *ProofController) ListProofs(ctx *gin.Context) {
	enrollment, ok := p.ownEnrollment(ctx)
	if !ok {
		return
	}

	proofs, err := p.submissions.History(ctx.Request.Context(), enrollment.ID)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"proofs": proofs})
}

// GetProgress reports completion and eligibility of the caller's enrollment.
func (p *ProofController) GetProgress(ctx *gin.Context) {
	enrollment, ok := p.ownEnrollment(ctx)
	if !ok {
		return
	}

	pr, err := p.progress.GetProgress(ctx.Request.Context(), enrollment.ID)
	if err != nil {
		utils.RespondError(ctx, err)
		return
	}
	utils.Success(ctx, pr)
}

// ownEnrollment loads the :id enrollment and checks it belongs to the caller.
func (p *ProofController) ownEnrollment(ctx *gin.Context) (*models.Enrollment, bool) {
	userID, ok := requireUserID(ctx)
	if !ok {
		return nil, false
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return nil, false
	}

	var enrollment models.Enrollment
	if err := p.db.WithContext(ctx.Request.Context()).First(&enrollment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(ctx, errutil.NotEnrolled())
			return nil, false
		}
		utils.RespondError(ctx, errutil.Internal("load enrollment", err))
		return nil, false
	}
	if enrollment.UserID != userID {
		utils.Error(ctx, http.StatusForbidden, 40310, "enrollment belongs to another user")
		return nil, false
	}
	return &enrollment, true
}
