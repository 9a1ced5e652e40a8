package gitrepo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.home.luguber.info/redpen/contentsyncd/internal/config"
	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
)

const (
	stepParentCheckout = "parent-checkout"
	stepSubmoduleSetup = "submodule-setup"
	stepSubmoduleSync  = "submodule-sync"
	stepPointerBump    = "pointer-bump"

	submoduleCommitMessage = "content-sync: auto-commit local changes"
	pointerCommitMessage   = "content-sync: update submodule pointers"
)

// Synchronizer drives one full reconciliation of the parent repository and
// its submodules. It is stateless between cycles; all durable state lives in
// the repositories themselves.
type Synchronizer struct {
	runner      execx.Runner
	repo        RepositoryRef
	strategy    config.SubmoduleStrategy
	authorName  string
	authorEmail string
}

// NewSynchronizer builds a synchronizer for the configured parent repository.
func NewSynchronizer(runner execx.Runner, cfg config.Config) *Synchronizer {
	return &Synchronizer{
		runner:      runner,
		repo:        RepositoryRef{RootPath: cfg.RepoDir, TrackedBranch: cfg.GitRef},
		strategy:    cfg.SubmoduleStrategy,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
	}
}

// Sync runs the four-step state machine and returns the accumulated report.
// The machine is terminal on the first fatal step; degraded and partial
// results let later steps continue.
func (s *Synchronizer) Sync() Report {
	var report Report

	parent := s.parentCheckout()
	report.Add(parent)
	if parent.Severity == SeverityFatal {
		slog.Error("Parent checkout failed, aborting cycle",
			logfields.Step(stepParentCheckout), logfields.Error(parent.Err))
		return report
	}

	report.Add(s.submoduleSetup())

	descriptors := DiscoverSubmodules(s.runner, s.repo)
	for _, desc := range descriptors {
		report.Add(s.syncSubmodule(desc))
	}

	report.Add(s.pointerBump(descriptors))

	slog.Info("Git synchronization finished", slog.String("result", report.Summary()))
	return report
}

// parentCheckout fetches all remotes and hard-resets the worktree to
// origin/<ref>, falling back to a plain local checkout when the remote ref
// does not exist. Failure here is fatal to the cycle.
func (s *Synchronizer) parentCheckout() StepResult {
	root := s.repo.RootPath

	if res, err := s.runner.Run([]string{"git", "fetch", "--all", "--prune"}, root); err != nil || !res.Ok() {
		return StepResult{Step: stepParentCheckout, Severity: SeverityFatal,
			Err: commandError("git fetch --all", root, res, err)}
	}

	reset, err := s.runner.Run([]string{"git", "reset", "--hard", "origin/" + s.repo.TrackedBranch}, root)
	if err == nil && reset.Ok() {
		return StepResult{Step: stepParentCheckout, Severity: SeverityOk}
	}

	slog.Warn("Remote ref missing, falling back to local checkout",
		logfields.Branch(s.repo.TrackedBranch), logfields.Dir(root))
	co, err := s.runner.Run([]string{"git", "checkout", "-f", s.repo.TrackedBranch}, root)
	if err != nil || !co.Ok() {
		return StepResult{Step: stepParentCheckout, Severity: SeverityFatal,
			Err: commandError("git checkout -f "+s.repo.TrackedBranch, root, co, err)}
	}
	return StepResult{Step: stepParentCheckout, Severity: SeverityOk}
}

// submoduleSetup syncs submodule URL/branch configuration and updates the
// checkouts. Failure degrades the cycle: the parent's recorded commits still
// provide usable, if stale, state.
func (s *Synchronizer) submoduleSetup() StepResult {
	root := s.repo.RootPath

	if res, err := s.runner.Run([]string{"git", "submodule", "sync", "--recursive"}, root); err != nil || !res.Ok() {
		return StepResult{Step: stepSubmoduleSetup, Severity: SeverityDegraded,
			Err: commandError("git submodule sync", root, res, err)}
	}

	if s.strategy == config.StrategyRemote {
		res, err := s.runner.Run([]string{"git", "submodule", "update", "--init", "--recursive", "--remote"}, root)
		if err == nil && res.Ok() {
			return StepResult{Step: stepSubmoduleSetup, Severity: SeverityOk}
		}
		slog.Warn("Remote-tracking submodule update failed, retrying with recorded commits",
			logfields.Error(commandError("git submodule update --remote", root, res, err)))
	}

	res, err := s.runner.Run([]string{"git", "submodule", "update", "--init", "--recursive"}, root)
	if err != nil || !res.Ok() {
		return StepResult{Step: stepSubmoduleSetup, Severity: SeverityDegraded,
			Err: commandError("git submodule update", root, res, err)}
	}
	return StepResult{Step: stepSubmoduleSetup, Severity: SeverityOk}
}

// syncSubmodule runs the bidirectional commit→rebase→push sequence for one
// descriptor. A failure marks the whole cycle partial but does not abort
// sibling submodules.
func (s *Synchronizer) syncSubmodule(desc SubmoduleDescriptor) StepResult {
	dir := filepath.Join(s.repo.RootPath, desc.RelativePath)
	branch := DetectBranch(s.runner, dir, desc.ResolvedBranch)

	slog.Debug("Syncing submodule",
		logfields.Submodule(desc.Name), logfields.Branch(branch), logfields.Dir(dir))

	res := s.commitRebasePush(dir, branch, submoduleCommitMessage)
	res.Step = stepSubmoduleSync
	res.Submodule = desc.Name
	if res.Severity != SeverityOk {
		res.Severity = SeverityPartial
		slog.Error("Submodule sync failed",
			logfields.Submodule(desc.Name), logfields.Branch(branch), logfields.Error(res.Err),
			slog.Any("conflicts", res.Conflicts))
	}
	return res
}

// pointerBump stages the updated submodule entries in the parent and runs the
// same commit/rebase/push sequence on the parent's tracking branch so other
// clones observe the version bump. Failure is degraded, not partial: the
// local worktree is already consistent, only pointer persistence lagged.
func (s *Synchronizer) pointerBump(descriptors []SubmoduleDescriptor) StepResult {
	root := s.repo.RootPath

	for _, desc := range descriptors {
		if res, err := s.runner.Run([]string{"git", "add", desc.RelativePath}, root); err != nil || !res.Ok() {
			slog.Warn("Failed to stage submodule entry",
				logfields.Submodule(desc.Name), logfields.Error(commandError("git add", root, res, err)))
		}
	}
	if _, err := os.Stat(filepath.Join(root, ".gitmodules")); err == nil {
		if res, err := s.runner.Run([]string{"git", "add", ".gitmodules"}, root); err != nil || !res.Ok() {
			slog.Warn("Failed to stage .gitmodules", logfields.Error(commandError("git add .gitmodules", root, res, err)))
		}
	}

	res := s.commitRebasePush(root, s.repo.TrackedBranch, pointerCommitMessage)
	res.Step = stepPointerBump
	if res.Severity != SeverityOk {
		res.Severity = SeverityDegraded
		slog.Warn("Submodule pointer bump failed", logfields.Error(res.Err))
	}
	return res
}

// commitRebasePush is the shared bidirectional sequence: auto-commit local
// changes under the bot identity, fetch, rebase onto origin/<branch>
// (aborting and collecting conflict paths on failure), then push when the
// local branch is ahead, with one upstream-setting retry.
func (s *Synchronizer) commitRebasePush(dir, branch, message string) StepResult {
	if s.isDirty(dir) {
		if res, err := s.runner.Run([]string{"git", "add", "-A"}, dir); err != nil || !res.Ok() {
			return StepResult{Severity: SeverityPartial, Err: commandError("git add -A", dir, res, err)}
		}
		commit := []string{
			"git",
			"-c", "user.name=" + s.authorName,
			"-c", "user.email=" + s.authorEmail,
			"commit", "-m", message,
		}
		if res, err := s.runner.Run(commit, dir); err != nil || !res.Ok() {
			return StepResult{Severity: SeverityPartial, Err: commandError("git commit", dir, res, err)}
		}
	}

	if res, err := s.runner.Run([]string{"git", "fetch", "origin"}, dir); err != nil || !res.Ok() {
		// Rebase will use the last-known remote ref; stale but workable.
		slog.Debug("Fetch before rebase failed", logfields.Dir(dir),
			logfields.Error(commandError("git fetch origin", dir, res, err)))
	}

	rebase, err := s.runner.Run([]string{"git", "rebase", "origin/" + branch}, dir)
	if err != nil || !rebase.Ok() {
		conflicts := s.conflictPaths(dir)
		if res, abortErr := s.runner.Run([]string{"git", "rebase", "--abort"}, dir); abortErr != nil || !res.Ok() {
			slog.Warn("Rebase abort failed", logfields.Dir(dir),
				logfields.Error(commandError("git rebase --abort", dir, res, abortErr)))
		}
		return StepResult{
			Severity:  SeverityPartial,
			Err:       commandError("git rebase origin/"+branch, dir, rebase, err),
			Conflicts: conflicts,
		}
	}

	ahead := s.aheadCount(dir, branch)
	if ahead == 0 && !s.isDirty(dir) {
		return StepResult{Severity: SeverityOk}
	}

	push, err := s.runner.Run([]string{"git", "push", "origin", branch}, dir)
	if err == nil && push.Ok() {
		return StepResult{Severity: SeverityOk}
	}

	push, err = s.runner.Run([]string{"git", "push", "--set-upstream", "origin", branch}, dir)
	if err != nil || !push.Ok() {
		return StepResult{Severity: SeverityPartial, Err: commandError("git push origin "+branch, dir, push, err)}
	}
	return StepResult{Severity: SeverityOk}
}

func (s *Synchronizer) isDirty(dir string) bool {
	res, err := s.runner.Run([]string{"git", "status", "--porcelain"}, dir)
	if err != nil || !res.Ok() {
		return false
	}
	return strings.TrimSpace(res.Stdout) != ""
}

func (s *Synchronizer) aheadCount(dir, branch string) int {
	out := execx.Output(s.runner, []string{"git", "rev-list", "--count", "origin/" + branch + "..HEAD"}, dir)
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0
	}
	return n
}

func (s *Synchronizer) conflictPaths(dir string) []string {
	out := execx.Output(s.runner, []string{"git", "diff", "--name-only", "--diff-filter=U"}, dir)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func commandError(cmd, dir string, res execx.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s in %s: %w", cmd, dir, err)
	}
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(res.Stdout)
	}
	return fmt.Errorf("%s in %s: exit %d: %s", cmd, dir, res.ExitCode, detail)
}
