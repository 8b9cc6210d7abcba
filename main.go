package main

import (
	"context"
	"time"

	"github.com/cppla/challengehub/config"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/routes"
	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/payout"
	"github.com/cppla/challengehub/services/progress"
	"github.com/cppla/challengehub/services/revenue"
	"github.com/cppla/challengehub/services/submission"
	"github.com/cppla/challengehub/tasks"
	"github.com/cppla/challengehub/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		utils.NewZapGormLogger(utils.Logger, config.ToGormLogLevel(cfg.LogLevel)),
		models.All()...,
	)

	clock := cadence.SystemClock{}
	rc := utils.GetRedis()
	cache := progress.NewRedisCache(rc, cfg.LeaderboardTTL())
	// Cached leaderboards from a previous run may predate schema or ranking changes.
	cache.Flush(context.Background())

	progressSvc := progress.NewService(db, cache)
	submissionSvc := submission.NewService(db, cfg.EnginePolicy(), progressSvc)
	revenueSvc := revenue.NewService(db, payout.NewHTTPClient(cfg.PayoutConfig()), cfg.RevenuePolicy(), clock)

	r := routes.SetupRouter(routes.Dependencies{
		DB:          db,
		Submissions: submissionSvc,
		Progress:    progressSvc,
		Revenue:     revenueSvc,
		Clock:       clock,
	})

	var hooks []func(ctx context.Context)
	if cfg.SweepEnabled {
		runner, err := tasks.NewRunner(utils.AsynqRedisOpt(), cfg.SweepCron, revenueSvc, cfg.SweepBatch)
		if err != nil {
			utils.Sugar.Fatalf("configure task runner: %v", err)
		}
		if err := runner.Start(); err != nil {
			utils.Sugar.Fatalf("start task runner: %v", err)
		}
		hooks = append(hooks, func(context.Context) { runner.Shutdown() })
	}
	hooks = append(hooks, func(context.Context) {
		_ = rc.Close()
		_ = utils.Logger.Sync()
	})

	utils.Sugar.Infof("Starting server on port %s (graceful), sweep enabled=%v, started at %s",
		cfg.AppPort, cfg.SweepEnabled, time.Now().Format(time.RFC3339))
	if err := utils.GraceServer(":"+cfg.AppPort, r, hooks...); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
