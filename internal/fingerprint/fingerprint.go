// Package fingerprint computes comparable digests of repository and
// directory state. Equal fingerprints imply, with high probability, no
// actionable change since the last computation; the digests are not meant to
// resist adversarial input.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
)

// Engine computes fingerprints using the shared process runner for git reads.
type Engine struct {
	runner execx.Runner
}

// NewEngine returns an Engine backed by runner.
func NewEngine(runner execx.Runner) *Engine {
	return &Engine{runner: runner}
}

// Repo digests the observable state of the parent repository: the remote tip
// of ref, the local HEAD, the dirty-worktree flag, the recursive submodule
// status and each submodule's remote default-branch pointer.
//
// The remote fetch is best effort. When it fails the fingerprint degrades to
// whatever local metadata is available rather than failing the caller.
func (e *Engine) Repo(repoDir, ref string) string {
	if res, err := e.runner.Run([]string{"git", "fetch", "--all", "--prune", "--quiet"}, repoDir); err != nil || !res.Ok() {
		slog.Debug("Fingerprint fetch failed, using local metadata",
			logfields.Dir(repoDir), logfields.Error(err))
	}

	var parts []string
	parts = append(parts, "remote:"+execx.Output(e.runner, []string{"git", "rev-parse", "origin/" + ref}, repoDir))
	parts = append(parts, "head:"+localHead(repoDir))
	parts = append(parts, "dirty:"+strconv.FormatBool(worktreeDirty(e.runner, repoDir)))
	parts = append(parts, "submodules:"+execx.Output(e.runner, []string{"git", "submodule", "status", "--recursive"}, repoDir))

	for _, subPath := range submodulePaths(e.runner, repoDir) {
		dir := filepath.Join(repoDir, subPath)
		head := execx.Output(e.runner, []string{"git", "rev-parse", "origin/HEAD"}, dir)
		parts = append(parts, "sub:"+subPath+":"+head)
	}

	return digest(parts)
}

// Dir digests the sorted (relative path, mtime, size) tuples of every regular
// file under root that filter accepts. Version-control metadata directories
// are skipped. I/O errors on individual entries reduce sensitivity instead of
// aborting the walk.
func (e *Engine) Dir(root string, filter Filter) string {
	var parts []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == ".svn" || d.Name() == ".hg" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || !filter.Accept(rel) {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		parts = append(parts,
			rel+"|"+strconv.FormatInt(info.ModTime().UnixNano(), 10)+"|"+strconv.FormatInt(info.Size(), 10))
		return nil
	})
	if err != nil {
		slog.Debug("Directory fingerprint walk incomplete", logfields.Dir(root), logfields.Error(err))
	}

	sort.Strings(parts)
	return digest(parts)
}

func digest(parts []string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// localHead reads HEAD via go-git so a corrupted or missing repository yields
// a stable sentinel instead of an error.
func localHead(repoDir string) string {
	repo, err := gogit.PlainOpen(repoDir)
	if err != nil {
		return "no-repo"
	}
	head, err := repo.Head()
	if err != nil {
		return "no-head"
	}
	return head.Hash().String()
}

func worktreeDirty(r execx.Runner, repoDir string) bool {
	res, err := r.Run([]string{"git", "status", "--porcelain"}, repoDir)
	if err != nil || !res.Ok() {
		return false
	}
	return strings.TrimSpace(res.Stdout) != ""
}

// submodulePaths lists submodule working-tree paths from `git submodule
// status` output (second whitespace column).
func submodulePaths(r execx.Runner, repoDir string) []string {
	out := execx.Output(r, []string{"git", "submodule", "status"}, repoDir)
	if out == "" {
		return nil
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) >= 2 {
			paths = append(paths, fields[1])
		}
	}
	return paths
}
