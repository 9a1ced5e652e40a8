// Package publish mirrors the synchronized source tree through a staging
// area into the public output root: stage, mutate, publish, stamp. After a
// successful run the public root is byte-for-byte what the source tree
// produces after mutation, with no leftovers from earlier publishes.
package publish

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
)

// Pipeline copies and mutates the published site.
type Pipeline struct {
	runner     execx.Runner
	sourceDir  string
	stagingDir string
	publicDir  string
	apiBaseURL string
	now        func() time.Time
}

// NewPipeline builds a publish pipeline. sourceDir is the parent repository
// worktree (or the publish submodule within it) that feeds the site.
func NewPipeline(runner execx.Runner, sourceDir, stagingDir, publicDir, apiBaseURL string) *Pipeline {
	return &Pipeline{
		runner:     runner,
		sourceDir:  sourceDir,
		stagingDir: stagingDir,
		publicDir:  publicDir,
		apiBaseURL: apiBaseURL,
		now:        time.Now,
	}
}

// Publish runs the full stage → mutate → publish → stamp sequence.
func (p *Pipeline) Publish() error {
	start := p.now()

	if err := os.RemoveAll(p.stagingDir); err != nil {
		return fmt.Errorf("clear staging root: %w", err)
	}
	if err := os.MkdirAll(p.stagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging root: %w", err)
	}

	if err := p.mirror(p.sourceDir, p.stagingDir, true); err != nil {
		return fmt.Errorf("stage source tree: %w", err)
	}

	if err := Mutate(p.stagingDir, p.apiBaseURL); err != nil {
		return fmt.Errorf("mutate staging tree: %w", err)
	}

	if err := os.MkdirAll(p.publicDir, 0o755); err != nil {
		return fmt.Errorf("create public root: %w", err)
	}
	if err := p.mirror(p.stagingDir, p.publicDir, false); err != nil {
		return fmt.Errorf("publish staging tree: %w", err)
	}

	if err := WriteStamp(p.publicDir, p.now()); err != nil {
		return fmt.Errorf("write publish stamp: %w", err)
	}

	slog.Info("Publish completed",
		logfields.Dir(p.publicDir),
		logfields.DurationMS(float64(p.now().Sub(start).Milliseconds())))
	return nil
}

// mirror copies src into dst with exact-mirror deletion semantics. Version
// control metadata is excluded only on the staging leg; the public leg must
// reproduce staging exactly.
func (p *Pipeline) mirror(src, dst string, excludeGit bool) error {
	argv := []string{"rsync", "-a", "--delete"}
	if excludeGit {
		argv = append(argv, "--exclude", ".git")
	}
	argv = append(argv, src+"/", dst+"/")

	res, err := p.runner.Run(argv, "")
	if err != nil {
		return fmt.Errorf("rsync %s -> %s: %w", src, dst, err)
	}
	if !res.Ok() {
		return fmt.Errorf("rsync %s -> %s: exit %d: %s", src, dst, res.ExitCode, res.Stderr)
	}
	return nil
}
