package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/cppla/challengehub/services/revenue"
)

// TypeRetrySweep re-attempts due revenue share payouts.
const TypeRetrySweep = "revenue:retry_sweep"

// RetrySweepPayload is the payload of a TypeRetrySweep task.
type RetrySweepPayload struct {
	MaxBatch int `json:"max_batch"`
}

// Sweeper is the part of the revenue service the sweep task drives.
type Sweeper interface {
	RetryPending(ctx context.Context, maxBatch int) (revenue.SweepResult, error)
}

// NewRetrySweepTask builds a sweep task; a non-positive maxBatch falls back to the handler default.
func NewRetrySweepTask(maxBatch int) (*asynq.Task, error) {
	payload, err := json.Marshal(RetrySweepPayload{MaxBatch: maxBatch})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRetrySweep, payload, asynq.MaxRetry(0)), nil
}

func HandleRetrySweep(sweeper Sweeper, defaultBatch int) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RetrySweepPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
			}
		}
		batch := payload.MaxBatch
		if batch <= 0 {
			batch = defaultBatch
		}

		log := zap.L().With(zap.String("task_type", t.Type()), zap.Int("max_batch", batch))
		res, err := sweeper.RetryPending(ctx, batch)
		if err != nil {
			log.Error("revenue retry sweep failed", zap.Error(err))
			return err
		}
		log.Info("revenue retry sweep done",
			zap.Int("attempted", res.Attempted),
			zap.Int("succeeded", res.Succeeded),
			zap.Int("failed", res.Failed),
			zap.Int("rejected", res.Rejected))
		return nil
	}
}

// RegisterHandlers wires every task handler onto mux.
func RegisterHandlers(mux *asynq.ServeMux, sweeper Sweeper, defaultBatch int) {
	mux.HandleFunc(TypeRetrySweep, HandleRetrySweep(sweeper, defaultBatch))
}
