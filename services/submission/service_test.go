package submission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/challengehub/errutil"
	"github.com/cppla/challengehub/models"
	"github.com/cppla/challengehub/services/cadence"
	"github.com/cppla/challengehub/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []uint
}

func (r *recordingInvalidator) Invalidate(_ context.Context, challengeID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, challengeID)
}

type fixture struct {
	db          *gorm.DB
	svc         *Service
	invalidator *recordingInvalidator
	challenge   models.Challenge
	enrollment  models.Enrollment
}

func newFixture(t *testing.T, cadenceKind models.Cadence, proofType models.ProofType) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)

	ch := models.Challenge{
		CreatorID: 1,
		StartAt:   day0,
		EndAt:     day0.Add(48 * time.Hour),
		Cadence:   cadenceKind,
		ProofType: proofType,
	}
	require.NoError(t, db.Create(&ch).Error)
	en := models.Enrollment{ChallengeID: ch.ID, UserID: 42, JoinedAt: day0}
	require.NoError(t, db.Create(&en).Error)

	inv := &recordingInvalidator{}
	return &fixture{
		db:          db,
		svc:         NewService(db, cadence.NewPolicy(time.UTC), inv),
		invalidator: inv,
		challenge:   ch,
		enrollment:  en,
	}
}

func (f *fixture) activeProofs(t *testing.T, period string) []models.Proof {
	t.Helper()
	var proofs []models.Proof
	require.NoError(t, f.db.Where("enrollment_id = ? AND period_key = ? AND is_active = ?", f.enrollment.ID, period, true).Find(&proofs).Error)
	return proofs
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func text(s string) Payload {
	return Payload{Type: models.ProofText, Text: s}
}

func TestSubmitFreshThenReplaceSameDay(t *testing.T) {
	f := newFixture(t, models.CadenceDaily, models.ProofText)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, f.enrollment.ID, text("ran 5km"), day0.Add(8*time.Hour))
	require.NoError(t, err)
	require.False(t, first.Replaced)
	require.Equal(t, 1, first.Version)
	require.Equal(t, cadence.PeriodKey("2026-03-01"), first.PeriodKey)

	second, err := f.svc.Submit(ctx, f.enrollment.ID, text("ran 6km"), day0.Add(20*time.Hour))
	require.NoError(t, err)
	require.True(t, second.Replaced)
	require.Equal(t, 2, second.Version)
	require.Equal(t, first.CheckinID, second.CheckinID)

	active := f.activeProofs(t, "2026-03-01")
	require.Len(t, active, 1)
	require.Equal(t, second.ProofID, active[0].ID)
	require.Equal(t, "ran 6km", active[0].Text)

	var old models.Proof
	require.NoError(t, f.db.First(&old, first.ProofID).Error)
	require.False(t, old.IsActive)
	require.Nil(t, old.ActiveSlot)

	var checkin models.Checkin
	require.NoError(t, f.db.First(&checkin, second.CheckinID).Error)
	require.Equal(t, 2, checkin.Count)
	require.Equal(t, second.ProofID, checkin.ProofID)
	require.EqualValues(t, 1, f.count(t, &models.Checkin{}))

	require.Equal(t, []uint{f.challenge.ID, f.challenge.ID}, f.invalidator.ids)
}

func TestSubmitNTimesYieldsVersionN(t *testing.T) {
	f := newFixture(t, models.CadenceEndOfChallenge, models.ProofLink)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		res, err := f.svc.Submit(ctx, f.enrollment.ID, Payload{URL: "https://example.com/run"}, day0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.Equal(t, i+1, res.Version)
		require.Equal(t, cadence.WholeChallenge, res.PeriodKey)
	}

	active := f.activeProofs(t, string(cadence.WholeChallenge))
	require.Len(t, active, 1)
	require.Equal(t, n, active[0].Version)
	require.Equal(t, models.ProofLink, active[0].Type)

	history, err := f.svc.History(ctx, f.enrollment.ID)
	require.NoError(t, err)
	require.Len(t, history, n)
	inactive := 0
	for _, p := range history {
		if !p.IsActive {
			inactive++
		}
	}
	require.Equal(t, n-1, inactive)
	require.EqualValues(t, 1, f.count(t, &models.Checkin{}))
}

func TestConcurrentSubmissionsKeepOneActive(t *testing.T) {
	f := newFixture(t, models.CadenceDaily, models.ProofText)
	ctx := context.Background()
	at := day0.Add(10 * time.Hour)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, f.enrollment.ID, text("double click"), at)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errutil.IsKind(err, errutil.KindConflict), "unexpected error: %v", err)
	}

	active := f.activeProofs(t, "2026-03-01")
	require.Len(t, active, 1)
	require.Equal(t, succeeded, active[0].Version)
	require.EqualValues(t, succeeded, f.count(t, &models.Proof{}))
	require.EqualValues(t, 1, f.count(t, &models.Checkin{}))
}

// failProofCreates makes the next n proof inserts fail with a unique violation, as a racing writer would.
func failProofCreates(t *testing.T, db *gorm.DB, n int32) *atomic.Int32 {
	t.Helper()
	remaining := &atomic.Int32{}
	remaining.Store(n)
	err := db.Callback().Create().Before("gorm:create").Register("test:proof_conflict", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.Proof); !ok {
			return
		}
		if remaining.Add(-1) >= 0 {
			_ = tx.AddError(gorm.ErrDuplicatedKey)
		}
	})
	require.NoError(t, err)
	return remaining
}

func TestSubmitRetriesOnceAfterConflict(t *testing.T) {
	f := newFixture(t, models.CadenceDaily, models.ProofText)
	remaining := failProofCreates(t, f.db, 1)

	res, err := f.svc.Submit(context.Background(), f.enrollment.ID, text("first try loses"), day0.Add(time.Hour))
	require.NoError(t, err)
	require.LessOrEqual(t, remaining.Load(), int32(0))
	require.Equal(t, 1, res.Version)
	require.False(t, res.Replaced)

	active := f.activeProofs(t, "2026-03-01")
	require.Len(t, active, 1)
	require.Equal(t, res.ProofID, active[0].ID)
	require.EqualValues(t, 1, f.count(t, &models.Proof{}))
	require.EqualValues(t, 1, f.count(t, &models.Checkin{}))
	require.Equal(t, []uint{f.challenge.ID}, f.invalidator.ids)
}

func TestSubmitReportsRepeatedConflict(t *testing.T) {
	f := newFixture(t, models.CadenceDaily, models.ProofText)
	failProofCreates(t, f.db, 2)

	_, err := f.svc.Submit(context.Background(), f.enrollment.ID, text("never lands"), day0.Add(time.Hour))
	require.Error(t, err)
	require.True(t, errutil.IsKind(err, errutil.KindConflict), "unexpected error: %v", err)

	require.Zero(t, f.count(t, &models.Proof{}))
	require.Zero(t, f.count(t, &models.Checkin{}))
	require.Empty(t, f.invalidator.ids)
}

func TestSubmitOutsideWindowWritesNothing(t *testing.T) {
	for _, kind := range []models.Cadence{models.CadenceDaily, models.CadenceEndOfChallenge} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t, kind, models.ProofText)
			ctx := context.Background()

			_, err := f.svc.Submit(ctx, f.enrollment.ID, text("early"), day0.Add(-time.Millisecond))
			require.True(t, errutil.IsKind(err, errutil.KindState))
			require.EqualError(t, err, "challenge has not started")

			for _, at := range []time.Time{f.challenge.EndAt, f.challenge.EndAt.Add(time.Millisecond)} {
				_, err = f.svc.Submit(ctx, f.enrollment.ID, text("late"), at)
				require.True(t, errutil.IsKind(err, errutil.KindState))
				require.EqualError(t, err, "challenge has ended")
			}

			require.Zero(t, f.count(t, &models.Proof{}))
			require.Zero(t, f.count(t, &models.Checkin{}))
			require.Empty(t, f.invalidator.ids)
		})
	}
}

func TestSubmitNotEnrolled(t *testing.T) {
	f := newFixture(t, models.CadenceDaily, models.ProofText)

	_, err := f.svc.Submit(context.Background(), f.enrollment.ID+100, text("hi"), day0.Add(time.Hour))
	require.True(t, errutil.HasReason(err, errutil.ReasonNotEnrolled))
	require.True(t, errutil.IsKind(err, errutil.KindState))
}

func TestSubmitValidatesContent(t *testing.T) {
	f := newFixture(t, models.CadenceDaily, models.ProofPhoto)
	ctx := context.Background()
	at := day0.Add(time.Hour)

	cases := []struct {
		name    string
		payload Payload
		reason  string
	}{
		{name: "empty photo", payload: Payload{}, reason: errutil.ReasonMissingContent},
		{name: "blank text", payload: Payload{Type: models.ProofText, Text: "   "}, reason: errutil.ReasonMissingContent},
		{name: "markup only text", payload: Payload{Type: models.ProofText, Text: "<script></script>"}, reason: errutil.ReasonMissingContent},
		{name: "relative url", payload: Payload{URL: "/img/1.jpg"}, reason: errutil.ReasonInvalidContent},
		{name: "ftp url", payload: Payload{URL: "ftp://example.com/1.jpg"}, reason: errutil.ReasonInvalidContent},
		{name: "unknown type", payload: Payload{Type: "VIDEO", URL: "https://example.com/v.mp4"}, reason: errutil.ReasonInvalidContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, f.enrollment.ID, tc.payload, at)
			require.True(t, errutil.IsKind(err, errutil.KindValidation))
			require.True(t, errutil.HasReason(err, tc.reason))
		})
	}

	_, err := f.svc.Submit(ctx, f.enrollment.ID, Payload{}, at)
	require.EqualError(t, err, "missing content")
	require.Zero(t, f.count(t, &models.Proof{}))
}

func TestSubmitSanitizesText(t *testing.T) {
	f := newFixture(t, models.CadenceDaily, models.ProofText)

	res, err := f.svc.Submit(context.Background(), f.enrollment.ID, text(" <b>done</b><script>alert(1)</script> "), day0.Add(time.Hour))
	require.NoError(t, err)

	var proof models.Proof
	require.NoError(t, f.db.First(&proof, res.ProofID).Error)
	require.Equal(t, "done", proof.Text)
	require.Empty(t, proof.URL)
}

func TestSubmitKeepsDeclaredTypeForMismatch(t *testing.T) {
	f := newFixture(t, models.CadenceEndOfChallenge, models.ProofPhoto)

	res, err := f.svc.Submit(context.Background(), f.enrollment.ID, text("no photo, sorry"), day0.Add(time.Hour))
	require.NoError(t, err)

	var proof models.Proof
	require.NoError(t, f.db.First(&proof, res.ProofID).Error)
	require.Equal(t, models.ProofText, proof.Type)
}
