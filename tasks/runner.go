package tasks

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Runner owns the asynq server and the cron scheduler that enqueues sweeps.
type Runner struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

// NewRunner registers the sweep on cronSpec and the task handlers on a fresh mux.
func NewRunner(opt asynq.RedisConnOpt, cronSpec string, sweeper Sweeper, batch int) (*Runner, error) {
	mux := asynq.NewServeMux()
	RegisterHandlers(mux, sweeper, batch)

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency:    1,
		RetryDelayFunc: asynq.DefaultRetryDelayFunc,
		Queues: map[string]int{
			"default": 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			zap.L().Error("asynq task failed", zap.String("task_type", task.Type()), zap.Error(err))
		}),
	})

	scheduler := asynq.NewScheduler(opt, nil)
	task, err := NewRetrySweepTask(batch)
	if err != nil {
		return nil, err
	}
	entryID, err := scheduler.Register(cronSpec, task)
	if err != nil {
		return nil, err
	}
	zap.L().Info("revenue retry sweep scheduled", zap.String("cron", cronSpec), zap.String("entry_id", entryID))

	return &Runner{server: server, scheduler: scheduler, mux: mux}, nil
}

func (r *Runner) Start() error {
	if err := r.server.Start(r.mux); err != nil {
		return err
	}
	if err := r.scheduler.Start(); err != nil {
		r.server.Shutdown()
		return err
	}
	zap.L().Info("[Asynq] task runner started")
	return nil
}

func (r *Runner) Shutdown() {
	r.scheduler.Shutdown()
	r.server.Shutdown()
}
