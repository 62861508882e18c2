// internal/registration/session_test.go
package registration

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
	"github.com/xkilldash9x/slotrunner/internal/mocks"
	"github.com/xkilldash9x/slotrunner/internal/roster"
)

const e2eLine = "Nguyen Van A|1|1|2000|0900000000|a@example.com|123456789012"

func testOptions() Options {
	cfg := config.NewDefaultConfig()
	cfg.Session.NavigationTimeout = 2 * time.Second
	cfg.Session.ConfirmationTimeout = time.Second
	cfg.Session.SettleTimeout = time.Second
	return Options{
		EntryURL: "https://forms.example.com/register",
		Form:     cfg.Form,
		Session:  cfg.Session,
		Rand:     rand.New(rand.NewPCG(1, 2)),
	}
}

func testProfile() schemas.Profile {
	p := roster.ParseLine(e2eLine)
	p.Line = 1
	return p
}

func runSession(t *testing.T, page *fakePage, solver schemas.ChallengeSolver, snaps schemas.SnapshotWriter, opts Options) schemas.SessionResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s := New(testProfile(), page, solver, snaps, opts, zaptest.NewLogger(t))
	return s.Run(ctx)
}

func outcomeSlots(outcomes []schemas.SlotOutcome) []string {
	out := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.Slot.Value)
	}
	return out
}

func TestSession_EndToEndTwoSlots(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form, "d1", "d2")

	solver := new(mocks.MockSolver)
	solver.On("Solve", mock.Anything, mock.Anything).Return("X7k2", nil).Twice()
	snaps := new(mocks.MockSnapshotWriter)

	res := runSession(t, page, solver, snaps, opts)

	assert.Equal(t, schemas.StatusDone, res.Status)
	assert.NoError(t, res.Err)
	want := []schemas.SlotOutcome{
		{Slot: schemas.Option{Value: "d1", Label: "Label d1"}, SubSlot: "1", Result: schemas.SlotSuccess},
		{Slot: schemas.Option{Value: "d2", Label: "Label d2"}, SubSlot: "1", Result: schemas.SlotSuccess},
	}
	if diff := cmp.Diff(want, res.Slots); diff != "" {
		t.Errorf("slot outcomes mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 2, page.submits)
	assert.Equal(t, 1, page.reloads)
	assert.Equal(t, 1, page.closes)
	assert.Equal(t, []string{"Nguyen Van A", "Nguyen Van A"}, page.fills[opts.Form.Name])
	assert.Equal(t, []string{"123456789012", "123456789012"}, page.fills[opts.Form.NationalID])
	assert.Equal(t, []string{"X7k2", "X7k2"}, page.fills[opts.Form.ChallengeAnswer])
	assert.Equal(t, testProfile(), res.Profile)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
	solver.AssertExpectations(t)
	snaps.AssertNotCalled(t, "WriteSnapshot", mock.Anything, mock.Anything)
}

func TestSession_EndToEndSolverFailureSkipsSlot(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form, "d1")

	solver := new(mocks.MockSolver)
	solver.On("Solve", mock.Anything, mock.Anything).Return("", errors.New("model returned nothing")).Once()
	snaps := new(mocks.MockSnapshotWriter)

	res := runSession(t, page, solver, snaps, opts)

	assert.Equal(t, schemas.StatusDone, res.Status)
	assert.NoError(t, res.Err)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, "d1", res.Slots[0].Slot.Value)
	assert.Equal(t, schemas.SlotSkipped, res.Slots[0].Result)
	assert.Contains(t, res.Slots[0].Reason, "model returned nothing")
	assert.Zero(t, page.submits)
	assert.Equal(t, 1, page.reloads, "a failed challenge always resets the form")
	snaps.AssertNotCalled(t, "WriteSnapshot", mock.Anything, mock.Anything)
}

func TestSession_SolverFailureMidLoopContinues(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form, "d1", "d2", "d3")
	solver := &scriptedSolver{failOn: map[string]bool{"d2": true}}

	res := runSession(t, page, solver, nil, opts)

	assert.Equal(t, schemas.StatusDone, res.Status)
	results := make([]schemas.SlotResult, 0, len(res.Slots))
	for _, o := range res.Slots {
		results = append(results, o.Result)
	}
	assert.Equal(t, []schemas.SlotResult{schemas.SlotSuccess, schemas.SlotSkipped, schemas.SlotSuccess}, results)
	assert.Equal(t, 2, page.submits)
	assert.Equal(t, 2, page.reloads, "the challenge reset replaces the advance reload")
	assert.Equal(t, 3, solver.calls)
}

func TestSession_SolverFailureOnLastSlotResetsForm(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form, "d1", "d2", "d3")
	solver := &scriptedSolver{failOn: map[string]bool{"d3": true}}

	res := runSession(t, page, solver, nil, opts)

	assert.Equal(t, schemas.StatusDone, res.Status)
	require.Len(t, res.Slots, 3)
	assert.Equal(t, schemas.SlotSkipped, res.Slots[2].Result)
	assert.Equal(t, 2, page.submits)
	assert.Equal(t, 3, page.reloads)
}

func TestSession_ResetFailureAfterSolverFailureIsFatal(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form, "d1")
	page.reloadErr = errors.New("target crashed")
	solver := &scriptedSolver{failOn: map[string]bool{"d1": true}}

	res := runSession(t, page, solver, nil, opts)

	assert.Equal(t, schemas.StatusFailed, res.Status)
	var fatal *FatalSessionError
	require.ErrorAs(t, res.Err, &fatal)
	assert.Equal(t, StateSlotAdvance, fatal.State)
	assert.Contains(t, res.Error, "target crashed")
	require.Len(t, res.Slots, 1, "the skipped slot is still reported")
	assert.Equal(t, schemas.SlotSkipped, res.Slots[0].Result)
	assert.Equal(t, 1, page.reloads)
}

func TestSession_SlotExhaustion(t *testing.T) {
	for _, k := range []int{1, 2, 4, 7} {
		opts := testOptions()
		slots := make([]string, k)
		for i := range slots {
			slots[i] = string(rune('a'+i)) + "-day"
		}
		page := newFakePage(opts.Form, slots...)

		res := runSession(t, page, &scriptedSolver{}, nil, opts)

		assert.Equal(t, schemas.StatusDone, res.Status, "k=%d", k)
		assert.Len(t, res.Slots, k)
		assert.Equal(t, k, page.submits, "one submit per slot")
		assert.Equal(t, k, page.profileFill, "one form fill per slot")
		assert.Equal(t, k-1, page.reloads, "reload only between attempts when every challenge is solved")
		assert.Equal(t, slots, outcomeSlots(res.Slots), "sequential order follows the page")
	}
}

func TestSession_VacuousSuccess(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form)
	solver := new(mocks.MockSolver)

	core, logs := observer.New(zap.InfoLevel)
	ctx := context.Background()
	res := New(testProfile(), page, solver, nil, opts, zap.New(core)).Run(ctx)

	assert.Equal(t, schemas.StatusDone, res.Status)
	assert.Empty(t, res.Slots)
	assert.Zero(t, page.profileFill)
	assert.Zero(t, page.submits)
	assert.Zero(t, page.reloads)
	solver.AssertNotCalled(t, "Solve", mock.Anything, mock.Anything)
	assert.Equal(t, 1, logs.FilterMessage("Nothing to attempt.").Len())
}

func TestSession_ConfirmationTimeoutMarksSlotFailed(t *testing.T) {
	opts := testOptions()
	opts.Session.ConfirmationTimeout = 30 * time.Millisecond
	page := newFakePage(opts.Form, "d1", "d2")
	page.unconfirmed = map[string]bool{"d1": true}

	res := runSession(t, page, &scriptedSolver{}, nil, opts)

	assert.Equal(t, schemas.StatusDone, res.Status)
	require.Len(t, res.Slots, 2)
	assert.Equal(t, schemas.SlotFailed, res.Slots[0].Result)
	assert.Equal(t, ErrSubmissionTimeout.Error(), res.Slots[0].Reason)
	assert.Equal(t, schemas.SlotSuccess, res.Slots[1].Result)
	assert.Equal(t, 1, res.Count(schemas.SlotFailed))
}

func TestSession_NavigationFailure(t *testing.T) {
	opts := testOptions()
	opts.Session.NavigationTimeout = 30 * time.Millisecond
	page := newFakePage(opts.Form, "d1")
	page.blockReady = true

	snaps := new(mocks.MockSnapshotWriter)
	snaps.On("WriteSnapshot", "Nguyen Van A", []byte("full-page")).Return("error_Nguyen_Van_A.png", nil).Once()

	res := runSession(t, page, &scriptedSolver{}, snaps, opts)

	assert.Equal(t, schemas.StatusFailed, res.Status)
	var navErr *NavigationError
	require.ErrorAs(t, res.Err, &navErr)
	assert.Equal(t, opts.EntryURL, navErr.URL)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, res.Err.Error(), res.Error)
	assert.Equal(t, "error_Nguyen_Van_A.png", res.SnapshotPath)
	assert.Empty(t, res.Slots)
	assert.Equal(t, 1, page.closes)
	snaps.AssertExpectations(t)
}

func TestSession_FatalPageError(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form, "d1", "d2")
	page.fillErr = map[string]error{opts.Form.Email: errors.New("node detached")}

	snaps := new(mocks.MockSnapshotWriter)
	snaps.On("WriteSnapshot", "Nguyen Van A", mock.Anything).Return("", errors.New("disk full")).Once()

	res := runSession(t, page, &scriptedSolver{}, snaps, opts)

	assert.Equal(t, schemas.StatusFailed, res.Status)
	var fatal *FatalSessionError
	require.ErrorAs(t, res.Err, &fatal)
	assert.Equal(t, StateFilling, fatal.State)
	assert.Equal(t, "d1", fatal.Slot)
	assert.Contains(t, res.Error, "node detached")
	assert.Empty(t, res.SnapshotPath, "a failed write leaves no path")
	assert.Equal(t, 1, page.snapshots)
	snaps.AssertExpectations(t)
}

func TestSession_ReloadFailureIsFatal(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form, "d1", "d2")
	page.reloadErr = errors.New("target crashed")

	res := runSession(t, page, &scriptedSolver{}, nil, opts)

	assert.Equal(t, schemas.StatusFailed, res.Status)
	var fatal *FatalSessionError
	require.ErrorAs(t, res.Err, &fatal)
	assert.Equal(t, StateSlotAdvance, fatal.State)
	require.Len(t, res.Slots, 1, "outcomes recorded before the failure are kept")
	assert.Equal(t, schemas.SlotSuccess, res.Slots[0].Result)
}

func TestSession_PanicBecomesFatal(t *testing.T) {
	opts := testOptions()
	page := newFakePage(opts.Form, "d1")
	page.panicOnFill = opts.Form.Phone

	snaps := new(mocks.MockSnapshotWriter)
	snaps.On("WriteSnapshot", "Nguyen Van A", mock.Anything).Return("error_Nguyen_Van_A.png", nil).Once()

	var res schemas.SessionResult
	require.NotPanics(t, func() {
		res = runSession(t, page, &scriptedSolver{}, snaps, opts)
	})

	assert.Equal(t, schemas.StatusFailed, res.Status)
	var fatal *FatalSessionError
	require.ErrorAs(t, res.Err, &fatal)
	assert.Equal(t, StateFilling, fatal.State)
	assert.Contains(t, res.Error, "renderer crashed")
	assert.Equal(t, 1, page.closes)
	assert.False(t, res.FinishedAt.IsZero())
	snaps.AssertExpectations(t)
}

func TestSession_CancellationSkipsSnapshot(t *testing.T) {
	opts := testOptions()
	opts.Session.ConfirmationTimeout = 5 * time.Second
	page := newFakePage(opts.Form, "d1", "d2")
	page.unconfirmed = map[string]bool{"d1": true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	page.onConfirmWait = cancel

	snaps := new(mocks.MockSnapshotWriter)
	s := New(testProfile(), page, &scriptedSolver{}, snaps, opts, zaptest.NewLogger(t))
	res := s.Run(ctx)

	assert.Equal(t, schemas.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, StateFailed, s.State())
	assert.Empty(t, res.SnapshotPath)
	assert.Zero(t, page.snapshots)
	assert.Equal(t, 1, page.closes, "page is released even after cancellation")
	snaps.AssertNotCalled(t, "WriteSnapshot", mock.Anything, mock.Anything)
}

func TestSession_CleanupPolicy(t *testing.T) {
	tests := []struct {
		name       string
		policy     config.CleanupPolicy
		wantCloses int
	}{
		{"close", config.CleanupClose, 1},
		{"keep open", config.CleanupKeepOpen, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.Session.Cleanup = tt.policy
			page := newFakePage(opts.Form, "d1")

			res := runSession(t, page, &scriptedSolver{}, nil, opts)

			assert.Equal(t, schemas.StatusDone, res.Status)
			assert.Equal(t, tt.wantCloses, page.closes)
		})
	}
}

func TestSession_RandomOrderVisitsEverySlotOnce(t *testing.T) {
	all := []string{"d1", "d2", "d3", "d4", "d5", "d6"}
	sawNonSequential := false
	for seed := uint64(0); seed < 20; seed++ {
		opts := testOptions()
		opts.Session.SlotOrder = config.SlotOrderRandom
		opts.Rand = rand.New(rand.NewPCG(seed, seed+1))
		page := newFakePage(opts.Form, all...)

		res := runSession(t, page, &scriptedSolver{}, nil, opts)

		got := outcomeSlots(res.Slots)
		if !cmp.Equal(all, got) {
			sawNonSequential = true
		}
		sorted := append([]string(nil), got...)
		sort.Strings(sorted)
		assert.Equal(t, all, sorted, "seed %d", seed)
		assert.Equal(t, len(all)-1, page.reloads)
	}
	assert.True(t, sawNonSequential, "random order should not always match page order")
}

func TestSession_SubSlotUnavailableSkipsSlot(t *testing.T) {
	opts := testOptions()
	opts.Session.Settle = config.SettleDelay
	opts.Session.SettleDelay = time.Millisecond
	opts.Session.SubSlotValue = "9"
	page := newFakePage(opts.Form, "d1", "d2")
	solver := &scriptedSolver{}

	res := runSession(t, page, solver, nil, opts)

	assert.Equal(t, schemas.StatusDone, res.Status)
	require.Len(t, res.Slots, 2)
	for _, o := range res.Slots {
		assert.Equal(t, schemas.SlotSkipped, o.Result)
		assert.Contains(t, o.Reason, ErrSubSlotUnavailable.Error())
	}
	assert.Zero(t, solver.calls)
	assert.Zero(t, page.submits)
	assert.Equal(t, 1, page.reloads)
}
