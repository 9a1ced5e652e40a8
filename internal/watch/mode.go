package watch

import (
	"git.home.luguber.info/redpen/contentsyncd/internal/fingerprint"
)

// Mode is the tagged variant describing what a directory watcher observes and
// how it imports changes. The filter predicate and commit message travel as
// data, so the watcher itself has no per-mode branching.
type Mode struct {
	// Name labels the watcher in logs ("content" or "public").
	Name string
	// Filter selects the files that participate in fingerprints and copies.
	Filter fingerprint.Filter
	// SubmodulePath is where, relative to the parent repository, watched
	// files are copied before a cycle.
	SubmodulePath string
	// CommitMessage is used when committing the imported diff.
	CommitMessage string
	// CopyIncludes, when non-empty, restricts the rsync copy to matching
	// patterns; empty means an unfiltered mirror.
	CopyIncludes []string
	// GuardStamp enables the publish loop guard: changes observed shortly
	// after the engine's own publish are ignored.
	GuardStamp bool
}

// ContentMode watches the local raw-content working copy. Only text and
// metadata extensions are imported.
func ContentMode(submodulePath string) Mode {
	return Mode{
		Name:          "content",
		Filter:        fingerprint.ContentExtensions(),
		SubmodulePath: submodulePath,
		CommitMessage: "content-sync: import content edits",
		CopyIncludes: []string{
			"*.md", "*.markdown", "*.json", "*.yaml", "*.yml", "*.txt", "*.csv",
		},
	}
}

// PublicMode watches the already-published public tree for external edits.
// The copy is an unfiltered mirror, and the publish loop guard applies.
func PublicMode(submodulePath string) Mode {
	return Mode{
		Name:          "public",
		Filter:        fingerprint.AcceptAll{},
		SubmodulePath: submodulePath,
		CommitMessage: "content-sync: import public edits",
		GuardStamp:    true,
	}
}
