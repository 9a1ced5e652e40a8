// Package execx is the single choke point for external commands.
// All filesystem-mutating git and rsync invocations go through a Runner so
// argument construction and working-directory handling stay uniform and
// substitutable in tests.
package execx

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
)

// Result captures one finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Ok reports whether the command exited zero.
func (r Result) Ok() bool { return r.ExitCode == 0 }

// Runner executes external commands synchronously. A failing exit status is
// surfaced in the Result, never as an error; the error return is reserved for
// failures to start the process at all.
type Runner interface {
	Run(argv []string, dir string) (Result, error)
}

// ShellRunner runs commands with os/exec. Extra environment entries are
// appended to the inherited process environment.
type ShellRunner struct {
	Env []string
}

// NewShellRunner returns a runner with no extra environment.
func NewShellRunner() *ShellRunner { return &ShellRunner{} }

func (s *ShellRunner) Run(argv []string, dir string) (Result, error) {
	if len(argv) == 0 {
		return Result{ExitCode: -1}, os.ErrInvalid
	}

	slog.Debug("exec", logfields.Command(strings.Join(argv, " ")), logfields.Dir(dir))

	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 - argv is assembled by callers from config, never request input
	cmd.Dir = dir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// Non-zero exit is data, not an error; callers decide severity.
			return res, nil
		}
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}

// Output runs argv and returns trimmed stdout, discarding the exit status
// distinction: a failed command yields an empty string. Convenient for
// best-effort reads like `git rev-parse`.
func Output(r Runner, argv []string, dir string) string {
	res, err := r.Run(argv, dir)
	if err != nil || !res.Ok() {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}
