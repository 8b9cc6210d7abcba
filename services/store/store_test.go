package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/testutil"
)

func TestAppendRejectsSecondActiveProof(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	proofs := NewProofStore(db)

	first := &models.Proof{EnrollmentID: 1, PeriodKey: "2026-03-01", Version: 1, Type: models.ProofText, Text: "a"}
	require.NoError(t, proofs.Append(ctx, first))

	second := &models.Proof{EnrollmentID: 1, PeriodKey: "2026-03-01", Version: 2, Type: models.ProofText, Text: "b"}
	err := proofs.Append(ctx, second)
	require.True(t, errutil.IsKind(err, errutil.KindConflict))

	active, err := proofs.Active(ctx, 1, "2026-03-01")
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)
}

func TestSupersedeIsCompareAndSwap(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	proofs := NewProofStore(db)

	p := &models.Proof{EnrollmentID: 1, PeriodKey: "challenge", Version: 1, Type: models.ProofPhoto, URL: "https://img.example/1.jpg"}
	require.NoError(t, proofs.Append(ctx, p))

	stale := *p
	require.NoError(t, proofs.Supersede(ctx, p))
	require.False(t, p.IsActive)

	err := proofs.Supersede(ctx, &stale)
	require.True(t, errutil.IsKind(err, errutil.KindConflict))

	active, err := proofs.Active(ctx, 1, "challenge")
	require.NoError(t, err)
	require.Nil(t, active)

	// the slot is free again once superseded
	next := &models.Proof{EnrollmentID: 1, PeriodKey: "challenge", Version: 2, Type: models.ProofPhoto, URL: "https://img.example/2.jpg"}
	require.NoError(t, proofs.Append(ctx, next))

	history, err := proofs.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 2, history[0].Version)
	require.True(t, history[0].IsActive)
	require.False(t, history[1].IsActive)
}

func TestTouchUpdatesCheckinInPlace(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	checkins := NewCheckinStore(db)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first, err := checkins.Touch(ctx, 7, "challenge", 10, at)
	require.NoError(t, err)
	require.Equal(t, 1, first.Count)

	second, err := checkins.Touch(ctx, 7, "challenge", 11, at.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 2, second.Count)
	require.Equal(t, uint(11), second.ProofID)

	rows, err := checkins.ForEnrollments(ctx, []uint{7})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint(11), rows[0].ProofID)
}

func TestForEnrollmentsEmpty(t *testing.T) {
	db := testutil.NewTestDB(t)

	proofs, err := NewProofStore(db).ActiveForEnrollments(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, proofs)

	checkins, err := NewCheckinStore(db).ForEnrollments(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, checkins)
}
