// Package gitrepo reconciles the parent content repository and its
// submodules with their remotes: fetch/reset of the parent, submodule
// checkout updates, and per-submodule commit→rebase→push bidirectional sync.
package gitrepo

import (
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
)

// RepositoryRef identifies the parent repository for the daemon's lifetime.
type RepositoryRef struct {
	RootPath      string
	TrackedBranch string
}

// SubmoduleDescriptor is derived per cycle from the parent's submodule
// configuration; branch resolution can change between cycles, so it is never
// persisted.
type SubmoduleDescriptor struct {
	Name           string
	RelativePath   string
	ResolvedBranch string
}

// Validate confirms root is a git repository. This is the one startup error
// the daemon refuses to run past.
func Validate(root string) error {
	if _, err := gogit.PlainOpen(root); err != nil {
		return fmt.Errorf("%s is not a git repository: %w", root, err)
	}
	return nil
}

// DiscoverSubmodules reads .gitmodules via git config; when that lookup
// fails it falls back to parsing `git submodule status` output, in which case
// branches resolve later through the per-submodule fallback chain.
func DiscoverSubmodules(r execx.Runner, repo RepositoryRef) []SubmoduleDescriptor {
	if descs := submodulesFromConfig(r, repo.RootPath); len(descs) > 0 {
		return descs
	}
	return submodulesFromStatus(r, repo.RootPath)
}

func submodulesFromConfig(r execx.Runner, root string) []SubmoduleDescriptor {
	res, err := r.Run([]string{"git", "config", "-f", ".gitmodules", "--get-regexp", `^submodule\..*\.path$`}, root)
	if err != nil || !res.Ok() || strings.TrimSpace(res.Stdout) == "" {
		return nil
	}

	var descs []SubmoduleDescriptor
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		// "submodule.<name>.path <value>"
		fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
		if len(fields) != 2 {
			continue
		}
		key := fields[0]
		name := strings.TrimSuffix(strings.TrimPrefix(key, "submodule."), ".path")
		if name == key {
			continue
		}
		branch := execx.Output(r, []string{"git", "config", "-f", ".gitmodules", "submodule." + name + ".branch"}, root)
		descs = append(descs, SubmoduleDescriptor{
			Name:           name,
			RelativePath:   strings.TrimSpace(fields[1]),
			ResolvedBranch: branch,
		})
	}
	return descs
}

func submodulesFromStatus(r execx.Runner, root string) []SubmoduleDescriptor {
	out := execx.Output(r, []string{"git", "submodule", "status"}, root)
	if out == "" {
		return nil
	}
	var descs []SubmoduleDescriptor
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		descs = append(descs, SubmoduleDescriptor{
			Name:         fields[1],
			RelativePath: fields[1],
		})
	}
	return descs
}
