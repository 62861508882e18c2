// internal/registration/session.go
package registration

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
	"github.com/xkilldash9x/slotrunner/internal/observability"
)

// State is a node of the registration state machine.
type State string

const (
	StateStart         State = "start"
	StateFormReady     State = "form_ready"
	StateFilling       State = "filling"
	StateSlotSelecting State = "slot_selecting"
	StateSolving       State = "solving"
	StateSubmitting    State = "submitting"
	StateVerifying     State = "verifying"
	StateSlotAdvance   State = "slot_advance"
	StateDone          State = "session_done"
	StateFailed        State = "session_failed"
)

// cleanupTimeout bounds page release and the diagnostic snapshot, which run
// even after the session's own context is gone.
const cleanupTimeout = 15 * time.Second

// Options carries everything a session needs besides its collaborators.
type Options struct {
	EntryURL string
	Form     config.FormConfig
	Session  config.SessionConfig
	// Rand drives random slot order and sub-slot choice. Nil seeds a fresh source.
	Rand *rand.Rand
}

// Session drives one profile through every offered slot on its own page.
// It is not safe for concurrent use; each session runs on a single goroutine.
type Session struct {
	id        string
	profile   schemas.Profile
	page      schemas.Page
	solver    schemas.ChallengeSolver
	snapshots schemas.SnapshotWriter
	opts      Options
	logger    *zap.Logger
	rng       *rand.Rand

	state    State
	slot     string
	outcomes []schemas.SlotOutcome
}

// New creates a session. snapshots may be nil to disable diagnostic images.
func New(profile schemas.Profile, page schemas.Page, solver schemas.ChallengeSolver, snapshots schemas.SnapshotWriter, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	id := uuid.NewString()
	return &Session{
		id:        id,
		profile:   profile,
		page:      page,
		solver:    solver,
		snapshots: snapshots,
		opts:      opts,
		logger:    observability.ForSession(logger.Named("session"), id, profile),
		rng:       rng,
		state:     StateStart,
	}
}

// ID returns the session identifier used in logs and reports.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Run drives the state machine to a terminal state and reports the result.
// It never panics and never returns an error: failures are part of the result.
func (s *Session) Run(ctx context.Context) (res schemas.SessionResult) {
	res = schemas.SessionResult{
		SessionID: s.id,
		Profile:   s.profile,
		StartedAt: time.Now(),
	}

	defer s.release(ctx)
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, &res, &FatalSessionError{State: s.state, Slot: s.slot, Err: fmt.Errorf("panic: %v", r)})
		}
		res.Slots = append([]schemas.SlotOutcome(nil), s.outcomes...)
		res.FinishedAt = time.Now()
	}()

	if err := s.drive(ctx); err != nil {
		s.fail(ctx, &res, err)
		return res
	}
	s.transition(StateDone)
	res.Status = schemas.StatusDone
	summary := schemas.SessionResult{Slots: s.outcomes}
	s.logger.Info("Session done.",
		zap.Int("success", summary.Count(schemas.SlotSuccess)),
		zap.Int("failed", summary.Count(schemas.SlotFailed)),
		zap.Int("skipped", summary.Count(schemas.SlotSkipped)),
	)
	return res
}

func (s *Session) drive(ctx context.Context) error {
	if err := s.openForm(ctx); err != nil {
		return err
	}

	s.transition(StateFormReady)
	slots, err := s.page.Options(ctx, s.opts.Form.Date)
	if err != nil {
		return s.fatal(ctx, fmt.Errorf("enumerate slots: %w", err))
	}
	if len(slots) == 0 {
		s.logger.Info("Nothing to attempt.", zap.Error(ErrNoSlots))
		return nil
	}

	order := orderSlots(slots, s.opts.Session.SlotOrder, s.rng)
	s.logger.Info("Slots discovered.", zap.Int("count", len(order)), zap.String("order", string(s.opts.Session.SlotOrder)))

	for i, slot := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.slot = slot.Value

		outcome, reloaded, err := s.attempt(ctx, slot)
		if outcome.Result != "" {
			s.record(outcome)
		}
		if err != nil {
			return err
		}

		if !reloaded && i < len(order)-1 {
			if err := s.resetForm(ctx); err != nil {
				return err
			}
		}
	}
	s.slot = ""
	return nil
}

// openForm navigates to the entry point and waits for the date control. The
// wait spans any automatic redirect from a countdown page to the form.
func (s *Session) openForm(ctx context.Context) error {
	timeout := s.opts.Session.NavigationTimeout

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.page.Navigate(navCtx, s.opts.EntryURL)
	if err == nil {
		err = s.page.WaitReady(navCtx, s.opts.Form.Date)
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &NavigationError{URL: s.opts.EntryURL, Timeout: timeout, Err: err}
}

// resetForm reloads the page so the next attempt starts from an empty form.
func (s *Session) resetForm(ctx context.Context) error {
	s.transition(StateSlotAdvance)
	if err := s.page.Reload(ctx); err != nil {
		return s.fatal(ctx, fmt.Errorf("reload form: %w", err))
	}
	return nil
}

// attempt runs one pass of Filling through Verifying. Recoverable problems come
// back as an outcome; the error return is reserved for session-ending failures.
// reloaded reports that the form was already reset during the attempt.
func (s *Session) attempt(ctx context.Context, slot schemas.SlotOption) (outcome schemas.SlotOutcome, reloaded bool, err error) {
	form := s.opts.Form
	outcome = schemas.SlotOutcome{Slot: slot}

	s.transition(StateFilling)
	values := s.profile.Fields()
	for i, sel := range form.ProfileSelectors() {
		if err := s.page.Fill(ctx, sel, values[i]); err != nil {
			return outcome, false, s.fatal(ctx, fmt.Errorf("fill %s: %w", sel, err))
		}
	}

	s.transition(StateSlotSelecting)
	if err := s.page.Select(ctx, form.Date, slot.Value); err != nil {
		return outcome, false, s.fatal(ctx, fmt.Errorf("select date: %w", err))
	}
	sub, err := s.awaitSubSlot(ctx)
	if err != nil {
		if errors.Is(err, ErrSubSlotUnavailable) {
			outcome.Result = schemas.SlotSkipped
			outcome.Reason = err.Error()
			return outcome, false, nil
		}
		return outcome, false, s.fatal(ctx, fmt.Errorf("read sub-slots: %w", err))
	}
	outcome.SubSlot = sub
	if err := s.page.Select(ctx, form.SubSlot, sub); err != nil {
		return outcome, false, s.fatal(ctx, fmt.Errorf("select sub-slot: %w", err))
	}

	s.transition(StateSolving)
	answer, err := s.solver.Solve(ctx, s.page)
	if err != nil {
		if ctx.Err() != nil {
			return outcome, false, ctx.Err()
		}
		outcome.Result = schemas.SlotSkipped
		outcome.Reason = err.Error()
		return outcome, true, s.resetForm(ctx)
	}

	s.transition(StateSubmitting)
	if err := s.page.Fill(ctx, form.ChallengeAnswer, answer); err != nil {
		return outcome, false, s.fatal(ctx, fmt.Errorf("enter challenge answer: %w", err))
	}
	if err := s.page.Click(ctx, form.Consent); err != nil {
		return outcome, false, s.fatal(ctx, fmt.Errorf("tick consent: %w", err))
	}
	if err := s.page.Click(ctx, form.Submit); err != nil {
		return outcome, false, s.fatal(ctx, fmt.Errorf("submit: %w", err))
	}

	s.transition(StateVerifying)
	confirmCtx, cancel := context.WithTimeout(ctx, s.opts.Session.ConfirmationTimeout)
	defer cancel()
	if err := s.page.WaitVisible(confirmCtx, form.Success); err != nil {
		if ctx.Err() != nil {
			return outcome, false, ctx.Err()
		}
		if confirmCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			outcome.Result = schemas.SlotFailed
			outcome.Reason = ErrSubmissionTimeout.Error()
			return outcome, false, nil
		}
		return outcome, false, s.fatal(ctx, fmt.Errorf("wait for confirmation: %w", err))
	}
	outcome.Result = schemas.SlotSuccess
	return outcome, false, nil
}

// fatal wraps err as a FatalSessionError unless the run was cancelled.
func (s *Session) fatal(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &FatalSessionError{State: s.state, Slot: s.slot, Err: err}
}

func (s *Session) record(o schemas.SlotOutcome) {
	s.outcomes = append(s.outcomes, o)
	fields := []zap.Field{
		zap.String("slot", o.Slot.Value),
		zap.String("label", o.Slot.Label),
		zap.String("sub_slot", o.SubSlot),
		zap.String("result", string(o.Result)),
	}
	switch o.Result {
	case schemas.SlotSuccess:
		s.logger.Info("Slot registered.", fields...)
	default:
		s.logger.Warn("Slot not registered.", append(fields, zap.String("reason", o.Reason))...)
	}
}

// fail moves the session to SessionFailed and, unless the run was cancelled,
// stores a full-page snapshot keyed by the profile name.
func (s *Session) fail(ctx context.Context, res *schemas.SessionResult, err error) {
	s.transition(StateFailed)
	res.Status = schemas.StatusFailed
	res.Err = err
	res.Error = err.Error()

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		s.logger.Warn("Session cancelled.", zap.Error(err))
		return
	}
	s.logger.Error("Session failed.", zap.Error(err))

	if s.snapshots == nil {
		return
	}
	snapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	png, snapErr := s.page.Snapshot(snapCtx)
	if snapErr != nil {
		s.logger.Warn("Could not capture diagnostic snapshot.", zap.Error(snapErr))
		return
	}
	path, writeErr := s.snapshots.WriteSnapshot(s.profile.Name, png)
	if writeErr != nil {
		s.logger.Warn("Could not write diagnostic snapshot.", zap.Error(writeErr))
		return
	}
	res.SnapshotPath = path
	s.logger.Info("Diagnostic snapshot saved.", zap.String("path", path))
}

// release hands the page back according to the cleanup policy.
func (s *Session) release(ctx context.Context) {
	if s.opts.Session.Cleanup == config.CleanupKeepOpen {
		s.logger.Info("Leaving page open.")
		return
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.page.Close(closeCtx); err != nil {
		s.logger.Warn("Failed to close page.", zap.Error(err))
	}
}

func (s *Session) transition(next State) {
	s.logger.Debug("State transition.",
		zap.String("from", string(s.state)),
		zap.String("to", string(next)),
		zap.String("slot", s.slot),
	)
	s.state = next
}
