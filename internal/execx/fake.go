package execx

import (
	"strings"
	"sync"
)

// FakeRunner is a scriptable Runner for tests. Responses are matched by
// command prefix (joined argv); unmatched commands succeed with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	responses []fakeResponse
	Calls     []FakeCall
}

// FakeCall records one invocation.
type FakeCall struct {
	Argv []string
	Dir  string
}

type fakeResponse struct {
	prefix string
	result Result
	once   bool
	used   bool
}

// NewFakeRunner returns an empty fake that acknowledges every command.
func NewFakeRunner() *FakeRunner { return &FakeRunner{} }

// Stub registers a response for commands whose joined argv starts with prefix.
// Later registrations win over earlier ones.
func (f *FakeRunner) Stub(prefix string, result Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, result: result})
}

// StubOnce registers a response consumed by a single matching call, after
// which matching falls through to earlier registrations.
func (f *FakeRunner) StubOnce(prefix string, result Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, result: result, once: true})
}

func (f *FakeRunner) Run(argv []string, dir string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, FakeCall{Argv: append([]string(nil), argv...), Dir: dir})

	joined := strings.Join(argv, " ")
	for i := len(f.responses) - 1; i >= 0; i-- {
		r := &f.responses[i]
		if r.used || !strings.HasPrefix(joined, r.prefix) {
			continue
		}
		if r.once {
			r.used = true
		}
		return r.result, nil
	}
	return Result{}, nil
}

// CommandLines returns each recorded call as a joined argv string, in order.
func (f *FakeRunner) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, strings.Join(c.Argv, " "))
	}
	return lines
}

// Ran reports whether any recorded command line starts with prefix.
func (f *FakeRunner) Ran(prefix string) bool {
	for _, line := range f.CommandLines() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
