package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/redpen/contentsyncd/internal/config"
	"git.home.luguber.info/redpen/contentsyncd/internal/engine"
	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
	"git.home.luguber.info/redpen/contentsyncd/internal/fingerprint"
	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
	"git.home.luguber.info/redpen/contentsyncd/internal/metrics"
	"git.home.luguber.info/redpen/contentsyncd/internal/publish"
)

// DirWatcher polls one watched root with directory fingerprints. An fsnotify
// watch on the root serves only as a wake-up hint between poll ticks; the
// fingerprint comparison alone decides whether anything happened.
type DirWatcher struct {
	cfg    config.Config
	mode   Mode
	root   string
	prints *fingerprint.Engine
	eng    *engine.Engine
	runner execx.Runner

	baseline string
	sleep    func(time.Duration) // test seam for the debounce wait
}

// NewDirWatcher builds a watcher for root in the given mode.
func NewDirWatcher(cfg config.Config, mode Mode, root string, prints *fingerprint.Engine, eng *engine.Engine, runner execx.Runner) *DirWatcher {
	return &DirWatcher{
		cfg:    cfg,
		mode:   mode,
		root:   root,
		prints: prints,
		eng:    eng,
		runner: runner,
		sleep:  time.Sleep,
	}
}

// Run polls until ctx is cancelled. The initial fingerprint becomes the
// baseline so a daemon restart does not replay the whole tree as a change.
func (w *DirWatcher) Run(ctx context.Context) {
	w.baseline = w.prints.Dir(w.root, w.mode.Filter)

	wake := w.fsnotifyHints(ctx)

	slog.Info("Starting directory watcher",
		slog.String("mode", w.mode.Name),
		logfields.Dir(w.root),
		slog.Duration("interval", w.cfg.WatchInterval))

	ticker := time.NewTicker(w.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping directory watcher", slog.String("mode", w.mode.Name))
			return
		case <-ticker.C:
		case <-wake:
		}
		w.poll()
	}
}

// poll performs one detect → debounce → act pass.
func (w *DirWatcher) poll() {
	current := w.prints.Dir(w.root, w.mode.Filter)
	if current == w.baseline {
		return
	}

	// Debounce: wait, recompute, and treat a further change as still-in-flux.
	// Updating the baseline without acting avoids publishing a half-written
	// edit; the next stable poll picks it up.
	w.sleep(w.cfg.DebounceWindow)
	settled := w.prints.Dir(w.root, w.mode.Filter)
	if settled != current {
		slog.Debug("Change still in flux, deferring",
			slog.String("mode", w.mode.Name), logfields.Dir(w.root))
		w.baseline = settled
		return
	}

	if w.mode.GuardStamp {
		if stamp, ok := publish.ReadStamp(w.cfg.PublicDir); ok && time.Since(stamp) < w.cfg.LoopGuardWindow {
			slog.Debug("Ignoring change inside publish loop-guard window",
				slog.String("mode", w.mode.Name), slog.Time("stamp", stamp))
			w.baseline = settled
			return
		}
	}

	slog.Info("Directory change detected",
		slog.String("mode", w.mode.Name), logfields.Dir(w.root))

	outcome, err := w.eng.Trigger(metrics.TriggerWatcher, w.importChanges)
	if err != nil {
		// The change never made it into the submodule. Keeping the old
		// baseline makes the next stable poll retry the import.
		slog.Error("Watcher cycle failed",
			slog.String("mode", w.mode.Name), logfields.Error(err))
		return
	}
	slog.Info("Watcher cycle completed",
		slog.String("mode", w.mode.Name), slog.String("outcome", outcome))

	w.baseline = w.prints.Dir(w.root, w.mode.Filter)
}

// importChanges runs under the engine lock: copy the watched root into the
// submodule working copy and commit any resulting diff, leaving the push to
// the synchronizer's bidirectional step.
func (w *DirWatcher) importChanges() error {
	dest := filepath.Join(w.cfg.RepoDir, w.mode.SubmodulePath)

	argv := []string{"rsync", "-a", "--exclude", ".git"}
	if len(w.mode.CopyIncludes) > 0 {
		argv = append(argv, "--include", "*/")
		for _, pattern := range w.mode.CopyIncludes {
			argv = append(argv, "--include", pattern)
		}
		argv = append(argv, "--exclude", "*", "--prune-empty-dirs")
	} else {
		argv = append(argv, "--delete")
	}
	argv = append(argv, w.root+"/", dest+"/")

	if res, err := w.runner.Run(argv, ""); err != nil || !res.Ok() {
		return fmt.Errorf("copy %s into %s: %s", w.root, dest, commandDetail(res, err))
	}

	status, err := w.runner.Run([]string{"git", "status", "--porcelain"}, dest)
	if err != nil || !status.Ok() {
		return fmt.Errorf("inspect worktree in %s: %s", dest, commandDetail(status, err))
	}
	if strings.TrimSpace(status.Stdout) == "" {
		return nil
	}

	if res, err := w.runner.Run([]string{"git", "add", "-A"}, dest); err != nil || !res.Ok() {
		return fmt.Errorf("stage imported changes in %s: %s", dest, commandDetail(res, err))
	}
	commit := []string{
		"git",
		"-c", "user.name=" + w.cfg.AuthorName,
		"-c", "user.email=" + w.cfg.AuthorEmail,
		"commit", "-m", w.mode.CommitMessage,
	}
	if res, err := w.runner.Run(commit, dest); err != nil || !res.Ok() {
		return fmt.Errorf("commit imported changes in %s: %s", dest, commandDetail(res, err))
	}
	return nil
}

// fsnotifyHints returns a channel that fires when the watched root sees
// filesystem events. Best effort: if the watch cannot be established the
// watcher falls back to pure polling.
func (w *DirWatcher) fsnotifyHints(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("fsnotify unavailable, polling only", logfields.Error(err))
		return wake
	}
	if err := fsw.Add(w.root); err != nil {
		slog.Debug("Cannot watch root, polling only", logfields.Dir(w.root), logfields.Error(err))
		_ = fsw.Close()
		return wake
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-fsw.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return wake
}

func commandDetail(res execx.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = fmt.Sprintf("exit %d", res.ExitCode)
	}
	return detail
}
