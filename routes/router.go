package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/cppla/challengehub/config"
	"github.com/cppla/challengehub/controllers"
	"github.com/cppla/challengehub/middleware"
	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/progress"
	"github.com/cppla/challengehub/services/revenue"
	"github.com/cppla/challengehub/services/submission"
	"github.com/cppla/challengehub/utils"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	DB          *gorm.DB
	Submissions *submission.Service
	Progress    *progress.Service
	Revenue     *revenue.Service
	Clock       cadence.Clock
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Dependencies) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", controllers.WebhookSecretHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.RequestMetrics())

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	challengeController := controllers.NewChallengeController(deps.DB, deps.Progress, deps.Clock)
	proofController := controllers.NewProofController(deps.DB, deps.Submissions, deps.Progress, deps.Clock)
	paymentController := controllers.NewPaymentController(deps.DB, deps.Revenue, cfg.WebhookSecret)
	revenueController := controllers.NewRevenueController(deps.Revenue, cfg.SweepBatch)
	statsController := controllers.NewStatsController(deps.DB)
	configController := controllers.NewConfigController(cfg.Timezone, deps.Revenue.Policy())

	api := r.Group("/api/v1")

	// Public endpoints
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/policy", configController.GetPolicy)
	api.GET("/challenges/:id", challengeController.GetChallenge)
	api.GET("/challenges/:id/leaderboard", middleware.RateLimitMiddleware(), challengeController.Leaderboard)
	api.GET("/challenges/:id/eligible", challengeController.Eligible)

	// Machine-to-machine, authenticated by shared secret
	api.POST("/webhooks/payments", paymentController.PaymentWebhook)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	protected.POST("/challenges", challengeController.CreateChallenge)
	protected.POST("/challenges/:id/enroll", challengeController.Enroll)
	protected.POST("/enrollments/:id/proofs", middleware.RateLimit("submit", cfg.SubmitRateLimitPerMinute), proofController.SubmitProof)
	protected.GET("/enrollments/:id/proofs", proofController.ListProofs)
	protected.GET("/enrollments/:id/progress", proofController.GetProgress)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired(cfg.AdminUsernames))
	admin.POST("/revenue/retry", revenueController.RetryPending)
	admin.GET("/revenue", revenueController.ListShares)
	admin.GET("/revenue/attention", revenueController.NeedsAttention)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
