package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/challengehub/middleware"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/payout"
	"github.com/cppla/challengehub/services/progress"
	"github.com/cppla/challengehub/services/revenue"
	"github.com/cppla/challengehub/services/submission"
	"github.com/cppla/challengehub/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

const testUserHeader = "X-Test-User"

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type countingTransferer struct {
	mu   sync.Mutex
	reqs []payout.TransferRequest
}

func (c *countingTransferer) Transfer(_ context.Context, req payout.TransferRequest) (payout.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return payout.Receipt{TransferID: "tr_" + strconv.Itoa(len(c.reqs))}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	db          *gorm.DB
	router      *gin.Engine
	now         time.Time
	transferer  *countingTransferer
	revenueSvc  *revenue.Service
	challengeID uint
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{db: testutil.NewTestDB(t), now: day0.Add(time.Hour), transferer: &countingTransferer{}}
	clock := cadence.ClockFunc(func() time.Time { return h.now })

	progressSvc := progress.NewService(h.db, nil)
	submissionSvc := submission.NewService(h.db, cadence.NewPolicy(time.UTC), progressSvc)
	h.revenueSvc = revenue.NewService(h.db, h.transferer, revenue.DefaultPolicy(), clock)

	challenges := NewChallengeController(h.db, progressSvc, clock)
	proofs := NewProofController(h.db, submissionSvc, progressSvc, clock)
	payments := NewPaymentController(h.db, h.revenueSvc, "whsec")
	revenues := NewRevenueController(h.revenueSvc, 10)

	r := gin.New()
	withUser := func(c *gin.Context) {
		if v := c.GetHeader(testUserHeader); v != "" {
			id, _ := strconv.Atoi(v)
			c.Set(middleware.ContextUserIDKey, uint(id))
		}
		c.Next()
	}
	api := r.Group("/api/v1", withUser)
	api.POST("/challenges", challenges.CreateChallenge)
	api.GET("/challenges/:id", challenges.GetChallenge)
	api.POST("/challenges/:id/enroll", challenges.Enroll)
	api.GET("/challenges/:id/leaderboard", challenges.Leaderboard)
	api.GET("/challenges/:id/eligible", challenges.Eligible)
	api.POST("/enrollments/:id/proofs", proofs.SubmitProof)
	api.GET("/enrollments/:id/proofs", proofs.ListProofs)
	api.GET("/enrollments/:id/progress", proofs.GetProgress)
	api.POST("/webhooks/payments", payments.PaymentWebhook)
	api.GET("/admin/revenue", revenues.ListShares)
	api.POST("/admin/revenue/retry", revenues.RetryPending)
	h.router = r

	creator := models.User{Username: "creator", PayoutAccountID: "acct_creator"}
	require.NoError(t, h.db.Create(&creator).Error)
	ch := models.Challenge{
		CreatorID: creator.ID,
		Title:     "Daily run",
		StartAt:   day0,
		EndAt:     day0.Add(48 * time.Hour),
		Cadence:   models.CadenceDaily,
		ProofType: models.ProofText,
		EntryFee:  10000,
	}
	require.NoError(t, h.db.Create(&ch).Error)
	h.challengeID = ch.ID
	return h
}

func (h *harness) do(t *testing.T, method, path string, user uint, body any, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set(testUserHeader, strconv.Itoa(int(user)))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (h *harness) enroll(t *testing.T, user uint) uint {
	t.Helper()
	status, env := h.do(t, http.MethodPost, "/api/v1/challenges/"+strconv.Itoa(int(h.challengeID))+"/enroll", user, nil)
	require.Equal(t, http.StatusOK, status, string(env.Data))
	var out struct {
		Enrollment models.Enrollment `json:"enrollment"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.Enrollment.ID
}

func TestCreateChallenge(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, http.MethodPost, "/api/v1/challenges", 7, gin.H{
		"title":      "  <b>Read</b> daily ",
		"start_at":   day0.Format(time.RFC3339),
		"end_at":     day0.Add(72 * time.Hour).Format(time.RFC3339),
		"cadence":    "daily",
		"proof_type": "TEXT",
		"rules":      gin.H{"daily": gin.H{"timezone": "UTC"}},
	})
	require.Equal(t, http.StatusCreated, status)
	var ch models.Challenge
	require.NoError(t, json.Unmarshal(env.Data, &ch))
	assert.Equal(t, uint(7), ch.CreatorID)
	assert.Equal(t, "Read daily", ch.Title)
	assert.Equal(t, models.CadenceDaily, ch.Cadence)

	status, env = h.do(t, http.MethodPost, "/api/v1/challenges", 7, gin.H{
		"title":      "bad",
		"start_at":   day0.Format(time.RFC3339),
		"end_at":     day0.Add(time.Hour).Format(time.RFC3339),
		"cadence":    "WEEKLY",
		"proof_type": "TEXT",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40020, env.Code)

	status, _ = h.do(t, http.MethodPost, "/api/v1/challenges", 0, gin.H{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGetChallenge(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, http.MethodGet, "/api/v1/challenges/"+strconv.Itoa(int(h.challengeID)), 0, nil)
	require.Equal(t, http.StatusOK, status)
	var out struct {
		RequiredCount int `json:"required_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 3, out.RequiredCount)

	status, _ = h.do(t, http.MethodGet, "/api/v1/challenges/999", 0, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.do(t, http.MethodGet, "/api/v1/challenges/abc", 0, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEnrollIsIdempotentAndClosesAtEnd(t *testing.T) {
	h := newHarness(t)

	first := h.enroll(t, 42)
	second := h.enroll(t, 42)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, h.db.Model(&models.Enrollment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	h.now = day0.Add(48 * time.Hour)
	status, env := h.do(t, http.MethodPost, "/api/v1/challenges/"+strconv.Itoa(int(h.challengeID))+"/enroll", 43, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "challenge has ended", env.Message)
}

func TestSubmitProofAndProgress(t *testing.T) {
	h := newHarness(t)
	enrollmentID := h.enroll(t, 42)
	proofsPath := "/api/v1/enrollments/" + strconv.Itoa(int(enrollmentID)) + "/proofs"

	status, env := h.do(t, http.MethodPost, proofsPath, 42, gin.H{"text": "ran 5k"})
	require.Equal(t, http.StatusCreated, status, string(env.Data))
	var res submission.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, cadence.PeriodKey("2026-03-01"), res.PeriodKey)

	status, env = h.do(t, http.MethodPost, proofsPath, 42, gin.H{"text": "ran 6k"})
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Version)
	assert.True(t, res.Replaced)

	// Someone else's enrollment.
	status, _ = h.do(t, http.MethodPost, proofsPath, 99, gin.H{"text": "mine now"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = h.do(t, http.MethodPost, proofsPath, 42, gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "missing content", env.Message)

	status, env = h.do(t, http.MethodGet, proofsPath, 42, nil)
	require.Equal(t, http.StatusOK, status)
	var history struct {
		Proofs []models.Proof `json:"proofs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history.Proofs, 2)

	status, env = h.do(t, http.MethodGet, "/api/v1/enrollments/"+strconv.Itoa(int(enrollmentID))+"/progress", 42, nil)
	require.Equal(t, http.StatusOK, status)
	var pr progress.Progress
	require.NoError(t, json.Unmarshal(env.Data, &pr))
	assert.Equal(t, 1, pr.CompletedCount)
	assert.Equal(t, 3, pr.RequiredCount)
	assert.False(t, pr.IsEligible)
}

func TestSubmitAfterEndIsRejected(t *testing.T) {
	h := newHarness(t)
	enrollmentID := h.enroll(t, 42)

	h.now = day0.Add(48 * time.Hour)
	status, env := h.do(t, http.MethodPost, "/api/v1/enrollments/"+strconv.Itoa(int(enrollmentID))+"/proofs", 42, gin.H{"text": "late"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "challenge has ended", env.Message)

	var proofs int64
	require.NoError(t, h.db.Model(&models.Proof{}).Count(&proofs).Error)
	assert.Zero(t, proofs)
}

func TestLeaderboardEndpoint(t *testing.T) {
	h := newHarness(t)
	busy := h.enroll(t, 1)
	h.enroll(t, 2)

	status, _ := h.do(t, http.MethodPost, "/api/v1/enrollments/"+strconv.Itoa(int(busy))+"/proofs", 1, gin.H{"text": "day one"})
	require.Equal(t, http.StatusCreated, status)

	status, env := h.do(t, http.MethodGet, "/api/v1/challenges/"+strconv.Itoa(int(h.challengeID))+"/leaderboard", 0, nil)
	require.Equal(t, http.StatusOK, status)
	var board struct {
		Entries []progress.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.Len(t, board.Entries, 2)
	assert.Equal(t, busy, board.Entries[0].EnrollmentID)
	assert.Equal(t, 1, board.Entries[0].Rank)

	status, env = h.do(t, http.MethodGet, "/api/v1/challenges/"+strconv.Itoa(int(h.challengeID))+"/eligible", 0, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &board))
	assert.Empty(t, board.Entries)
}

func TestPaymentWebhook(t *testing.T) {
	h := newHarness(t)
	event := gin.H{
		"payment_id":   "pay_1",
		"challenge_id": h.challengeID,
		"amount":       10000,
		"status":       "succeeded",
	}

	status, _ := h.do(t, http.MethodPost, "/api/v1/webhooks/payments", 0, event, WebhookSecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := h.do(t, http.MethodPost, "/api/v1/webhooks/payments", 0, event, WebhookSecretHeader, "whsec")
	require.Equal(t, http.StatusOK, status, string(env.Data))
	var res revenue.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.RevenueShareCompleted, res.Status)
	assert.Equal(t, "tr_1", res.TransferID)
	require.Len(t, h.transferer.reqs, 1)
	assert.Equal(t, "acct_creator", h.transferer.reqs[0].DestinationID)
	assert.Equal(t, int64(9000), h.transferer.reqs[0].Amount)

	// Redelivery.
	status, env = h.do(t, http.MethodPost, "/api/v1/webhooks/payments", 0, event, WebhookSecretHeader, "whsec")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Duplicate)
	assert.Len(t, h.transferer.reqs, 1)

	event["payment_id"] = "pay_2"
	event["status"] = "failed"
	status, env = h.do(t, http.MethodPost, "/api/v1/webhooks/payments", 0, event, WebhookSecretHeader, "whsec")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ignored":true,"status":"failed"}`, string(env.Data))

	status, env = h.do(t, http.MethodGet, "/api/v1/admin/revenue?status=completed", 1, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Shares []models.RevenueShare `json:"shares"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Shares, 1)
	assert.Equal(t, "pay_1", list.Shares[0].PaymentID)

	status, env = h.do(t, http.MethodPost, "/api/v1/admin/revenue/retry", 1, nil)
	require.Equal(t, http.StatusOK, status)
	var sweep revenue.SweepResult
	require.NoError(t, json.Unmarshal(env.Data, &sweep))
	assert.Zero(t, sweep.Attempted)
}

func TestStatsAndPolicy(t *testing.T) {
	h := newHarness(t)
	h.router.GET("/api/v1/stats", NewStatsController(h.db).GetStats)
	h.router.GET("/api/v1/config/policy", NewConfigController("UTC", h.revenueSvc.Policy()).GetPolicy)

	enrollmentID := h.enroll(t, 42)
	status, _ := h.do(t, http.MethodPost, "/api/v1/enrollments/"+strconv.Itoa(int(enrollmentID))+"/proofs", 42, gin.H{"text": "done"})
	require.Equal(t, http.StatusCreated, status)

	status, env := h.do(t, http.MethodGet, "/api/v1/stats", 0, nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		ChallengeCount  int64 `json:"challenge_count"`
		EnrollmentCount int64 `json:"enrollment_count"`
		ActiveProofs    int64 `json:"active_proofs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.ChallengeCount)
	assert.Equal(t, int64(1), stats.EnrollmentCount)
	assert.Equal(t, int64(1), stats.ActiveProofs)

	status, env = h.do(t, http.MethodGet, "/api/v1/config/policy", 0, nil)
	require.Equal(t, http.StatusOK, status)
	var policy struct {
		CreatorShareBps int    `json:"creator_share_bps"`
		DefaultTimezone string `json:"default_timezone"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &policy))
	assert.Equal(t, 9000, policy.CreatorShareBps)
	assert.Equal(t, "UTC", policy.DefaultTimezone)
}
