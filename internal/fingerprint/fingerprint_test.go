package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDir_StableAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.md", "hello")
	writeFile(t, root, "nested/page.md", "world")

	e := NewEngine(execx.NewFakeRunner())
	first := e.Dir(root, AcceptAll{})
	second := e.Dir(root, AcceptAll{})

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "sha256 hex digest")
}

func TestDir_ChangesWhenContentChanges(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "index.md", "hello")

	e := NewEngine(execx.NewFakeRunner())
	before := e.Dir(root, AcceptAll{})

	// Same size, different mtime.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.NotEqual(t, before, e.Dir(root, AcceptAll{}))
}

func TestDir_ChangesWhenFileAdded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.md", "hello")

	e := NewEngine(execx.NewFakeRunner())
	before := e.Dir(root, AcceptAll{})

	writeFile(t, root, "extra.md", "more")
	assert.NotEqual(t, before, e.Dir(root, AcceptAll{}))
}

func TestDir_SkipsVCSDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.md", "hello")

	e := NewEngine(execx.NewFakeRunner())
	before := e.Dir(root, AcceptAll{})

	writeFile(t, root, ".git/objects/ab/cdef", "blob")
	writeFile(t, root, ".svn/entries", "12")

	assert.Equal(t, before, e.Dir(root, AcceptAll{}), "VCS metadata must not perturb the digest")
}

func TestDir_FilterExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.md", "hello")

	e := NewEngine(execx.NewFakeRunner())
	filter := ContentExtensions()
	before := e.Dir(root, filter)

	writeFile(t, root, "build.log", "noise")
	assert.Equal(t, before, e.Dir(root, filter))

	writeFile(t, root, "data.JSON", "{}")
	assert.NotEqual(t, before, e.Dir(root, filter), "extension match is case-insensitive")
}

func TestDir_MissingRootIsStable(t *testing.T) {
	e := NewEngine(execx.NewFakeRunner())
	missing := filepath.Join(t.TempDir(), "gone")
	assert.Equal(t, e.Dir(missing, AcceptAll{}), e.Dir(missing, AcceptAll{}))
}

func TestRepo_ReactsToGitMetadata(t *testing.T) {
	repoDir := t.TempDir()

	runner := execx.NewFakeRunner()
	runner.Stub("git rev-parse origin/main", execx.Result{Stdout: "aaa111\n"})
	runner.Stub("git status --porcelain", execx.Result{Stdout: ""})
	runner.Stub("git submodule status", execx.Result{Stdout: " bbb222 redpen-content (heads/main)\n"})

	e := NewEngine(runner)
	before := e.Repo(repoDir, "main")
	assert.Equal(t, before, e.Repo(repoDir, "main"))

	// Remote tip moves.
	runner.Stub("git rev-parse origin/main", execx.Result{Stdout: "ccc333\n"})
	assert.NotEqual(t, before, e.Repo(repoDir, "main"))
}

func TestRepo_DirtyWorktreeChangesFingerprint(t *testing.T) {
	repoDir := t.TempDir()

	runner := execx.NewFakeRunner()
	e := NewEngine(runner)
	clean := e.Repo(repoDir, "main")

	runner.Stub("git status --porcelain", execx.Result{Stdout: " M index.md\n"})
	assert.NotEqual(t, clean, e.Repo(repoDir, "main"))
}

func TestRepo_FetchFailureDegradesGracefully(t *testing.T) {
	repoDir := t.TempDir()

	runner := execx.NewFakeRunner()
	runner.Stub("git fetch", execx.Result{ExitCode: 128, Stderr: "no network"})

	e := NewEngine(runner)
	fp := e.Repo(repoDir, "main")
	assert.Len(t, fp, 64)
	assert.True(t, runner.Ran("git fetch --all --prune --quiet"))
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", ".sync.fingerprint")
	s := NewStore(path)

	assert.Equal(t, "", s.Load(), "missing file reads as empty")

	// Save creates the missing parent directory itself.
	require.NoError(t, s.Save("abc123"))
	assert.Equal(t, "abc123", s.Load())

	require.NoError(t, s.Save("def456"))
	assert.Equal(t, "def456", s.Load())
	assert.Equal(t, path, s.Path())
}
