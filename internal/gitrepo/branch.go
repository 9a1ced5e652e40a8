package gitrepo

import (
	"strings"

	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
)

// DefaultBranch is the last resort of the branch fallback chain.
const DefaultBranch = "main"

// DetectBranch resolves the upstream branch a working copy should sync
// against. Priority order: upstream tracking ref, current branch name,
// symbolic origin/HEAD, the configured descriptor branch, DefaultBranch.
//
// A detached HEAD with no cached origin/HEAD can resolve to the wrong branch
// here; the chain is kept in this order because every downstream consumer
// (rebase, ahead-count, push) depends on the same answer.
func DetectBranch(r execx.Runner, dir, configured string) string {
	if up := execx.Output(r, []string{"git", "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"}, dir); up != "" {
		return strings.TrimPrefix(up, "origin/")
	}

	if cur := execx.Output(r, []string{"git", "rev-parse", "--abbrev-ref", "HEAD"}, dir); cur != "" && cur != "HEAD" {
		return cur
	}

	if sym := execx.Output(r, []string{"git", "symbolic-ref", "refs/remotes/origin/HEAD"}, dir); sym != "" {
		return strings.TrimPrefix(sym, "refs/remotes/origin/")
	}

	if configured != "" {
		return configured
	}
	return DefaultBranch
}
