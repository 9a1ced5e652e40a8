// Package engine implements the convergence protocol: every trigger funnels
// into one lock-guarded cycle of git synchronization, publishing and
// fingerprint persistence. Fingerprints are checked optimistically outside
// the lock and double-checked inside it so racing triggers collapse into a
// single cycle per actual state change.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/redpen/contentsyncd/internal/config"
	"git.home.luguber.info/redpen/contentsyncd/internal/fingerprint"
	"git.home.luguber.info/redpen/contentsyncd/internal/gitrepo"
	"git.home.luguber.info/redpen/contentsyncd/internal/history"
	"git.home.luguber.info/redpen/contentsyncd/internal/locker"
	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
	"git.home.luguber.info/redpen/contentsyncd/internal/metrics"
)

// Cycle outcomes recorded in metrics and history.
const (
	OutcomeNoChange      = "no-change"
	OutcomePublished     = "published"
	OutcomePartial       = "partial"
	OutcomeFatal         = "fatal"
	OutcomePublishFailed = "publish-failed"
)

// Syncer reconciles the repositories and reports per-step results.
type Syncer interface {
	Sync() gitrepo.Report
}

// Publisher mirrors the synchronized tree into the public root.
type Publisher interface {
	Publish() error
}

// Notifier is told about finished cycles. Implementations must not block the
// cycle for long; failures are logged, never propagated.
type Notifier interface {
	CycleFinished(cycleID, trigger, outcome string)
}

// Engine owns one lock-guarded sync+publish pipeline.
type Engine struct {
	cfg      config.Config
	lock     *locker.Lock
	prints   *fingerprint.Engine
	store    *fingerprint.Store
	syncer   Syncer
	pipeline Publisher
	recorder metrics.Recorder
	history  *history.Store // optional
	notifier Notifier       // optional
}

// New assembles an engine. history and notifier may be nil.
func New(cfg config.Config, lock *locker.Lock, prints *fingerprint.Engine, store *fingerprint.Store,
	syncer Syncer, pipeline Publisher, recorder metrics.Recorder) *Engine {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Engine{
		cfg:      cfg,
		lock:     lock,
		prints:   prints,
		store:    store,
		syncer:   syncer,
		pipeline: pipeline,
		recorder: recorder,
	}
}

// WithHistory attaches a cycle history store.
func (e *Engine) WithHistory(h *history.Store) *Engine {
	e.history = h
	return e
}

// WithNotifier attaches a cycle notifier.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// Trigger acquires the lock and runs one full cycle unconditionally. prelude,
// when non-nil, runs under the lock before synchronization (watchers use it
// to copy edits into the submodule working copy); a prelude error aborts the
// cycle.
func (e *Engine) Trigger(trigger metrics.TriggerLabel, prelude func() error) (string, error) {
	var outcome string
	lockStart := time.Now()
	err := e.lock.With(func() error {
		e.recorder.SetLockWait(time.Since(lockStart))
		var runErr error
		outcome, runErr = e.runLocked(trigger, prelude)
		return runErr
	})
	return outcome, err
}

// TriggerIfChanged computes the repository fingerprint outside the lock and
// runs a cycle only when it differs from the persisted baseline, re-checking
// under the lock in case another trigger already handled the change.
func (e *Engine) TriggerIfChanged(trigger metrics.TriggerLabel) (string, error) {
	if e.prints.Repo(e.cfg.RepoDir, e.cfg.GitRef) == e.store.Load() {
		return OutcomeNoChange, nil
	}

	var outcome string
	lockStart := time.Now()
	err := e.lock.With(func() error {
		e.recorder.SetLockWait(time.Since(lockStart))

		// Double-check: a racing trigger may have completed this cycle while
		// we waited on the lock.
		if e.prints.Repo(e.cfg.RepoDir, e.cfg.GitRef) == e.store.Load() {
			outcome = OutcomeNoChange
			return nil
		}

		var runErr error
		outcome, runErr = e.runLocked(trigger, nil)
		return runErr
	})
	return outcome, err
}

// runLocked executes one cycle body. Callers must hold the lock.
func (e *Engine) runLocked(trigger metrics.TriggerLabel, prelude func() error) (string, error) {
	start := time.Now()
	cycleID := uuid.NewString()

	slog.Info("Starting sync cycle",
		logfields.CycleID(cycleID), logfields.Trigger(string(trigger)))

	if prelude != nil {
		if err := prelude(); err != nil {
			slog.Error("Cycle prelude failed",
				logfields.CycleID(cycleID), logfields.Error(err))
			e.finish(cycleID, trigger, OutcomeFatal, err.Error(), nil, start)
			return OutcomeFatal, err
		}
	}

	report := e.syncer.Sync()
	for _, step := range report.Steps {
		e.recorder.IncStepResult(step.Step, step.Severity.String())
	}

	outcome := e.concludeCycle(cycleID, report)

	// Persist the fingerprint only after a successful publish so aborted
	// cycles are retried by the next trigger.
	if outcome == OutcomePublished {
		if err := e.store.Save(e.prints.Repo(e.cfg.RepoDir, e.cfg.GitRef)); err != nil {
			slog.Warn("Failed to persist fingerprint",
				logfields.CycleID(cycleID), logfields.Error(err))
		}
	}

	e.finish(cycleID, trigger, outcome, report.Summary(), collectConflicts(report), start)
	return outcome, nil
}

// concludeCycle maps the accumulated step results to a publish decision.
func (e *Engine) concludeCycle(cycleID string, report gitrepo.Report) string {
	switch {
	case report.Worst() == gitrepo.SeverityFatal:
		return OutcomeFatal
	case !report.ShouldPublish():
		slog.Warn("Skipping publish, submodule sync failed",
			logfields.CycleID(cycleID), slog.String("result", report.Summary()))
		return OutcomePartial
	}

	if err := e.pipeline.Publish(); err != nil {
		slog.Error("Publish pipeline failed",
			logfields.CycleID(cycleID), logfields.Error(err))
		return OutcomePublishFailed
	}
	return OutcomePublished
}

func (e *Engine) finish(cycleID string, trigger metrics.TriggerLabel, outcome, detail string, conflicts []string, start time.Time) {
	elapsed := time.Since(start)
	e.recorder.ObserveCycleDuration(trigger, elapsed)
	e.recorder.IncCycleOutcome(trigger, outcome)

	if e.history != nil {
		rec := history.Record{
			CycleID:   cycleID,
			Trigger:   string(trigger),
			Outcome:   outcome,
			Detail:    detail,
			Conflicts: history.JoinConflicts(conflicts),
			StartedAt: start.UTC(),
			Duration:  elapsed.Milliseconds(),
		}
		if err := e.history.Append(context.Background(), rec); err != nil {
			slog.Warn("Failed to record cycle history",
				logfields.CycleID(cycleID), logfields.Error(err))
		}
	}

	if e.notifier != nil {
		e.notifier.CycleFinished(cycleID, string(trigger), outcome)
	}

	slog.Info("Sync cycle finished",
		logfields.CycleID(cycleID),
		logfields.Trigger(string(trigger)),
		slog.String("outcome", outcome),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
}

func collectConflicts(report gitrepo.Report) []string {
	var paths []string
	for _, step := range report.Steps {
		paths = append(paths, step.Conflicts...)
	}
	return paths
}
