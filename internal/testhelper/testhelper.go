// Package testhelper contains helpers to simplify tests that drive a
// real git repository
package testhelper

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mystor/git-revise/internal/gitcmd"
	"github.com/stretchr/testify/require"
)

// RequireGit skips the test when no git binary is available
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// Repo is a scratch git repository for a single test
type Repo struct {
	T   *testing.T
	Dir string

	run *gitcmd.Runner
}

// NewRepo creates an empty scratch repository with a deterministic
// identity and environment
func NewRepo(t *testing.T) *Repo {
	t.Helper()
	RequireGit(t)

	// Isolate from the user's configuration; identities come from
	// the environment so `git var` sees them too
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("GIT_AUTHOR_NAME", "Test User")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_AUTHOR_DATE", "1500000000 +0000")
	t.Setenv("GIT_COMMITTER_NAME", "Test Committer")
	t.Setenv("GIT_COMMITTER_EMAIL", "committer@example.com")
	t.Setenv("GIT_COMMITTER_DATE", "1500000000 +0000")

	dir := t.TempDir()
	r := &Repo{T: t, Dir: dir, run: gitcmd.New(dir)}
	r.Git("init", "-q", "-b", "main")
	return r
}

// Git runs a git command in the repository, failing the test on
// error, and returns its trimmed output
func (r *Repo) Git(args ...string) string {
	r.T.Helper()
	out, err := r.run.Output(args...)
	require.NoError(r.T, err, "git %s", strings.Join(args, " "))
	return string(out)
}

// GitWithStdin is like Git with bytes fed to the command's stdin
func (r *Repo) GitWithStdin(stdin []byte, args ...string) string {
	r.T.Helper()
	out, err := r.run.OutputWith(gitcmd.Opts{Stdin: stdin}, args...)
	require.NoError(r.T, err, "git %s", strings.Join(args, " "))
	return string(out)
}

// WriteFile writes a file inside the working tree
func (r *Repo) WriteFile(name, content string) {
	r.T.Helper()
	path := filepath.Join(r.Dir, name)
	require.NoError(r.T, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(r.T, os.WriteFile(path, []byte(content), 0o644))
}

// Commit writes the given files, stages everything, and commits.
// It returns the hex oid of the new commit
func (r *Repo) Commit(message string, files map[string]string) string {
	r.T.Helper()
	for name, content := range files {
		r.WriteFile(name, content)
	}
	r.Git("add", "-A")
	r.Git("commit", "-q", "--allow-empty", "-m", message)
	return r.Git("rev-parse", "HEAD")
}
