package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/challengehub/services/revenue"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type sweeperFunc func(ctx context.Context, maxBatch int) (revenue.SweepResult, error)

func (f sweeperFunc) RetryPending(ctx context.Context, maxBatch int) (revenue.SweepResult, error) {
	return f(ctx, maxBatch)
}

func TestNewRetrySweepTask(t *testing.T) {
	task, err := NewRetrySweepTask(25)
	require.NoError(t, err)
	require.Equal(t, TypeRetrySweep, task.Type())

	var payload RetrySweepPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, 25, payload.MaxBatch)
}

func TestHandleRetrySweepUsesDefaultBatch(t *testing.T) {
	var got int
	h := HandleRetrySweep(sweeperFunc(func(_ context.Context, maxBatch int) (revenue.SweepResult, error) {
		got = maxBatch
		return revenue.SweepResult{Attempted: 1, Succeeded: 1}, nil
	}), 40)

	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(TypeRetrySweep, nil)))
	require.Equal(t, 40, got)

	task, err := NewRetrySweepTask(5)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, 5, got)
}

func TestHandleRetrySweepErrors(t *testing.T) {
	boom := errors.New("db down")
	h := HandleRetrySweep(sweeperFunc(func(context.Context, int) (revenue.SweepResult, error) {
		return revenue.SweepResult{}, boom
	}), 10)
	require.ErrorIs(t, h.ProcessTask(context.Background(), asynq.NewTask(TypeRetrySweep, nil)), boom)

	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeRetrySweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRegisterHandlers(t *testing.T) {
	called := false
	mux := asynq.NewServeMux()
	RegisterHandlers(mux, sweeperFunc(func(context.Context, int) (revenue.SweepResult, error) {
		called = true
		return revenue.SweepResult{}, nil
	}), 10)

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeRetrySweep, nil)))
	require.True(t, called)
}
