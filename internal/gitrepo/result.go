package gitrepo

import "strings"

// Severity classifies the outcome of one synchronizer step.
//
//   - SeverityOk: step succeeded.
//   - SeverityDegraded: step failed but the cycle continues on best-effort
//     state (submodule config/update failures).
//   - SeverityPartial: the cycle must skip publishing (a per-submodule
//     bidirectional sync failed; publishing would mix synced and unsynced
//     trees).
//   - SeverityFatal: the cycle aborts immediately (parent checkout failure).
type Severity int

const (
	SeverityOk Severity = iota
	SeverityDegraded
	SeverityPartial
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityOk:
		return "ok"
	case SeverityDegraded:
		return "degraded"
	case SeverityPartial:
		return "partial"
	case SeverityFatal:
		return "fatal"
	}
	return "unknown"
}

// StepResult records one synchronizer step.
type StepResult struct {
	Step      string
	Submodule string
	Severity  Severity
	Err       error
	// Conflicts lists conflicting paths when a rebase was aborted.
	Conflicts []string
}

// Report accumulates step results for one cycle. The publish-skip decision is
// a pure function of the accumulated results.
type Report struct {
	Steps []StepResult
}

// Add appends a step result.
func (r *Report) Add(res StepResult) { r.Steps = append(r.Steps, res) }

// Worst returns the highest severity seen, SeverityOk for an empty report.
func (r Report) Worst() Severity {
	worst := SeverityOk
	for _, s := range r.Steps {
		if s.Severity > worst {
			worst = s.Severity
		}
	}
	return worst
}

// ShouldPublish reports whether the publish pipeline may run: degraded state
// still publishes, partial and fatal outcomes do not.
func (r Report) ShouldPublish() bool { return r.Worst() <= SeverityDegraded }

// Summary renders a compact single-line description for logs.
func (r Report) Summary() string {
	var b strings.Builder
	for i, s := range r.Steps {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.Step)
		if s.Submodule != "" {
			b.WriteString("[" + s.Submodule + "]")
		}
		b.WriteString("=" + s.Severity.String())
	}
	return b.String()
}
