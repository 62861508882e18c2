// File: internal/orchestrator/orchestrator.go
// Description: Fans a roster out over a bounded pool of registration sessions,
// each on its own page, and folds their results into one batch report.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
	"github.com/xkilldash9x/slotrunner/internal/registration"
)

// SessionFunc runs one profile to completion on the given page.
type SessionFunc func(ctx context.Context, profile schemas.Profile, page schemas.Page) schemas.SessionResult

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSessionFunc replaces the registration session, mostly for tests.
func WithSessionFunc(fn SessionFunc) Option {
	return func(o *Orchestrator) { o.session = fn }
}

// Orchestrator runs registration sessions concurrently.
type Orchestrator struct {
	logger      *zap.Logger
	pages       schemas.PageFactory
	solver      schemas.ChallengeSolver
	snapshots   schemas.SnapshotWriter
	opts        registration.Options
	maxSessions int
	session     SessionFunc
}

// New wires an Orchestrator from configuration and its collaborators.
// snapshots may be nil.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	pages schemas.PageFactory,
	solver schemas.ChallengeSolver,
	snapshots schemas.SnapshotWriter,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || pages == nil || solver == nil {
		return nil, errors.New("cannot initialize orchestrator with nil dependencies")
	}
	entry, err := cfg.Target.EntryURL()
	if err != nil {
		return nil, fmt.Errorf("resolve target url: %w", err)
	}

	o := &Orchestrator{
		logger:      logger.Named("orchestrator"),
		pages:       pages,
		solver:      solver,
		snapshots:   snapshots,
		maxSessions: cfg.Engine.MaxSessions,
		opts: registration.Options{
			EntryURL: entry,
			Form:     cfg.Form,
			Session:  cfg.Session,
		},
	}
	o.session = o.runRegistration
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run registers every profile and waits for all sessions to finish. A failing
// session never affects its siblings. The returned error is non-nil only when
// ctx ends before the batch does; the partial report is returned with it.
func (o *Orchestrator) Run(ctx context.Context, profiles []schemas.Profile) (*schemas.BatchReport, error) {
	report := &schemas.BatchReport{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	logger := o.logger.With(zap.String("run_id", report.RunID))

	workers := o.maxSessions
	if workers <= 0 || workers > len(profiles) {
		workers = len(profiles)
	}
	logger.Info("Starting registration run.", zap.Int("profiles", len(profiles)), zap.Int("workers", workers))

	tasks := make(chan schemas.Profile)
	results := make(chan schemas.SessionResult, len(profiles))

	// Workers always return nil so one session can never cancel the others.
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for p := range tasks {
				results <- o.runOne(ctx, p)
			}
			return nil
		})
	}

	dispatched := 0
dispatch:
	for _, p := range profiles {
		select {
		case tasks <- p:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(tasks)
	_ = g.Wait()

	for _, p := range profiles[dispatched:] {
		results <- notStarted(p, ctx.Err())
	}
	close(results)

	for res := range results {
		report.Sessions = append(report.Sessions, res)
		if res.Status == schemas.StatusDone {
			report.Done++
		} else {
			report.Failed++
		}
	}
	sort.SliceStable(report.Sessions, func(i, j int) bool {
		return report.Sessions[i].Profile.Line < report.Sessions[j].Profile.Line
	})
	report.Finished = time.Now()

	logger.Info("Registration run finished.",
		zap.Int("done", report.Done),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run %s interrupted: %w", report.RunID, err)
	}
	return report, nil
}

// runOne acquires a page and runs a session on it.
func (o *Orchestrator) runOne(ctx context.Context, p schemas.Profile) (res schemas.SessionResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic in session.", zap.String("profile", p.Name), zap.Any("panic", r))
			res = failed(p, started, &registration.FatalSessionError{State: registration.StateStart, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(p, started, err)
	}
	page, err := o.pages.NewPage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return failed(p, started, ctx.Err())
		}
		o.logger.Error("Could not acquire a page.", zap.String("profile", p.Name), zap.Error(err))
		return failed(p, started, &registration.FatalSessionError{
			State: registration.StateStart,
			Err:   fmt.Errorf("acquire page: %w", err),
		})
	}
	return o.session(ctx, p, page)
}

func (o *Orchestrator) runRegistration(ctx context.Context, p schemas.Profile, page schemas.Page) schemas.SessionResult {
	s := registration.New(p, page, o.solver, o.snapshots, o.opts, o.logger)
	o.logger.Debug("Session started.", zap.String("session_id", s.ID()), zap.Int("line", p.Line))
	res := s.Run(ctx)
	o.logger.Debug("Session ended.",
		zap.String("session_id", s.ID()),
		zap.Int("line", p.Line),
		zap.String("state", string(s.State())),
	)
	return res
}

func failed(p schemas.Profile, started time.Time, err error) schemas.SessionResult {
	return schemas.SessionResult{
		SessionID:  uuid.NewString(),
		Profile:    p,
		Status:     schemas.StatusFailed,
		Err:        err,
		Error:      err.Error(),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
}

func notStarted(p schemas.Profile, cause error) schemas.SessionResult {
	if cause == nil {
		cause = context.Canceled
	}
	now := time.Now()
	return failed(p, now, fmt.Errorf("session not started: %w", cause))
}
