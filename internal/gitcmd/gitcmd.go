// Package gitcmd runs the git binary and captures its output.
//
// Every interaction with the on-disk repository goes through this
// package: one-shot plumbing commands, the long-lived cat-file
// process, and interactive commands that need the controlling
// terminal.
package gitcmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TraceEnv enables debug logging of every git invocation when set to
// a non-empty value
const TraceEnv = "GIT_REVISE_TRACE"

func init() {
	if os.Getenv(TraceEnv) != "" {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetOutput(os.Stderr)
}

// Runner invokes git commands in a fixed working directory with a
// fixed set of extra environment variables
type Runner struct {
	// Dir is the working directory commands run in
	Dir string

	extraEnv []string
}

// New returns a Runner operating in the given directory
func New(dir string) *Runner {
	return &Runner{Dir: dir}
}

// WithEnv returns a copy of the Runner with the provided KEY=VALUE
// pairs appended to the environment of every command it runs
func (r *Runner) WithEnv(kv ...string) *Runner {
	env := make([]string, 0, len(r.extraEnv)+len(kv))
	env = append(env, r.extraEnv...)
	env = append(env, kv...)
	return &Runner{
		Dir:      r.Dir,
		extraEnv: env,
	}
}

// Env returns the full environment commands run with
func (r *Runner) Env() []string {
	return append(os.Environ(), r.extraEnv...)
}

// Opts alters how a single command is run
type Opts struct {
	// Stdin is fed to the command's standard input when non-nil
	Stdin []byte
	// KeepNewline disables stripping of the single trailing newline
	// from the captured output
	KeepNewline bool
}

// Output runs `git args...` and returns its standard output with the
// trailing newline stripped
func (r *Runner) Output(args ...string) ([]byte, error) {
	return r.OutputWith(Opts{}, args...)
}

// OutputWith runs `git args...` with the given options. The captured
// output is returned even when the command failed, so callers can
// inspect partial results such as conflict-marked merges
func (r *Runner) OutputWith(opts Opts, args ...string) ([]byte, error) {
	logrus.WithField("dir", r.Dir).Debugf("git %s", strings.Join(args, " "))

	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env()
	if opts.Stdin != nil {
		cmd.Stdin = bytes.NewReader(opts.Stdin)
	}

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	out := stdout.Bytes()
	if !opts.KeepNewline {
		out = bytes.TrimSuffix(out, []byte{'\n'})
	}
	if err != nil {
		return out, newGitError(err, args, stderr.Bytes())
	}
	return out, nil
}

// Run runs `git args...` discarding its output
func (r *Runner) Run(args ...string) error {
	_, err := r.Output(args...)
	return err
}

// Interactive runs `git args...` with stdio attached to the current
// process, for commands that drive the user's terminal (add -p,
// reset --patch, ...)
func (r *Runner) Interactive(args ...string) error {
	logrus.WithField("dir", r.Dir).Debugf("git %s (interactive)", strings.Join(args, " "))

	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env()
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return newGitError(err, args, nil)
	}
	return nil
}

// GitError describes a git command that exited unsuccessfully
type GitError struct {
	// Args is the argument list the command ran with, without the
	// leading "git"
	Args []string
	// Stderr is the captured error output, if any
	Stderr []byte
	// Code is the command's exit code, or -1 when the command did not
	// run or was killed by a signal
	Code int

	cause error
}

func newGitError(err error, args []string, stderr []byte) *GitError {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &GitError{
		Args:   args,
		Stderr: stderr,
		Code:   code,
		cause:  errors.Wrapf(err, "git %s", strings.Join(args, " ")),
	}
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s exited with code %d", strings.Join(e.Args, " "), e.Code)
	if len(e.Stderr) > 0 {
		msg += ": " + strings.TrimSpace(string(e.Stderr))
	}
	return msg
}

// Unwrap returns the underlying exec error
func (e *GitError) Unwrap() error {
	return e.cause
}

// ExitCode returns the exit code of the failed command, or -1 if the
// error isn't a *GitError or the command never ran
func ExitCode(err error) int {
	var gitErr *GitError
	if errors.As(err, &gitErr) {
		return gitErr.Code
	}
	return -1
}
