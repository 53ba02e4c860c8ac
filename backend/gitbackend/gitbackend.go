// Package gitbackend stores and retrieves objects from the odb of a
// host git repository by driving the git binary.
//
// Retrieval goes through a single long-lived `cat-file --batch`
// subprocess: requests are newline-terminated references on its
// stdin, responses are `<oid> <kind> <size>` header lines followed by
// the object body. Writes go through one-shot `hash-object -w`
// invocations.
package gitbackend

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os/exec"
	"strconv"

	"github.com/mystor/git-revise/ginternals/githash"
	"github.com/mystor/git-revise/internal/gitcmd"
	"golang.org/x/xerrors"
)

var (
	// ErrObjectMissing is returned when the requested reference does
	// not resolve to an object
	ErrObjectMissing = errors.New("object does not exist")

	// ErrCorrupted is returned when the batch subprocess returns a
	// malformed or truncated response. There is no way to resync the
	// stream afterwards, so callers must treat it as fatal
	ErrCorrupted = errors.New("cat-file backend returned corrupted data")
)

// Backend reads and writes objects in the odb of an on-disk
// repository
type Backend struct {
	run *gitcmd.Runner

	cat    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// New starts the batch retrieval subprocess in the given runner's
// directory and verifies it responds correctly
func New(run *gitcmd.Runner) (*Backend, error) {
	cat := exec.Command("git", "cat-file", "--batch")
	cat.Dir = run.Dir
	cat.Env = run.Env()

	stdin, err := cat.StdinPipe()
	if err != nil {
		return nil, xerrors.Errorf("could not create cat-file stdin pipe: %w", err)
	}
	stdout, err := cat.StdoutPipe()
	if err != nil {
		return nil, xerrors.Errorf("could not create cat-file stdout pipe: %w", err)
	}
	if err = cat.Start(); err != nil {
		return nil, xerrors.Errorf("could not start cat-file: %w", err)
	}

	b := &Backend{
		run:    run,
		cat:    cat,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}

	// A probe for the null oid must report the object as missing;
	// anything else means the subprocess is not speaking the batch
	// protocol
	_, _, _, err = b.Object(githash.NullOid.String())
	if !errors.Is(err, ErrObjectMissing) {
		b.Close() //nolint:errcheck // the probe error is the one that matters
		if err == nil {
			return nil, xerrors.Errorf("null oid probe returned an object: %w", ErrCorrupted)
		}
		return nil, xerrors.Errorf("cat-file backend failure: %w", err)
	}
	return b, nil
}

// Object fetches the object the given textual reference resolves to.
// It returns ErrObjectMissing when the reference resolves to nothing,
// and ErrCorrupted when the subprocess response cannot be trusted
func (b *Backend) Object(ref string) (oid githash.Oid, kind string, body []byte, err error) {
	if _, err = b.stdin.Write([]byte(ref + "\n")); err != nil {
		return githash.NullOid, "", nil, xerrors.Errorf("could not send request for %s: %w", ref, err)
	}

	header, err := b.stdout.ReadString('\n')
	if err != nil {
		return githash.NullOid, "", nil, xerrors.Errorf("no response for %s: %w", ref, ErrCorrupted)
	}

	if len(header) > 0 {
		header = header[:len(header)-1]
	}
	fields := bytes.Fields([]byte(header))
	if len(fields) >= 2 && string(fields[len(fields)-1]) == "missing" {
		return githash.NullOid, "", nil, xerrors.Errorf("%s: %w", ref, ErrObjectMissing)
	}
	if len(fields) != 3 {
		return githash.NullOid, "", nil, xerrors.Errorf("malformed response %q for %s: %w", header, ref, ErrCorrupted)
	}

	oid, err = githash.NewOidFromChars(fields[0])
	if err != nil {
		return githash.NullOid, "", nil, xerrors.Errorf("malformed oid in response %q: %w", header, ErrCorrupted)
	}
	kind = string(fields[1])
	size, err := strconv.Atoi(string(fields[2]))
	if err != nil || size < 0 {
		return githash.NullOid, "", nil, xerrors.Errorf("malformed size in response %q: %w", header, ErrCorrupted)
	}

	// The body is followed by a single newline
	buf := make([]byte, size+1)
	if _, err = io.ReadFull(b.stdout, buf); err != nil {
		return githash.NullOid, "", nil, xerrors.Errorf("short read for %s: %w", ref, ErrCorrupted)
	}
	if buf[size] != '\n' {
		return githash.NullOid, "", nil, xerrors.Errorf("missing body terminator for %s: %w", ref, ErrCorrupted)
	}
	return oid, kind, buf[:size], nil
}

// WriteObject persists an object body with the given type tag and
// returns the oid reported by the odb
func (b *Backend) WriteObject(kind string, body []byte) (githash.Oid, error) {
	out, err := b.run.OutputWith(gitcmd.Opts{Stdin: body},
		"hash-object", "--no-filters", "-t", kind, "-w", "--stdin")
	if err != nil {
		return githash.NullOid, xerrors.Errorf("could not write %s object: %w", kind, err)
	}
	oid, err := githash.NewOidFromChars(out)
	if err != nil {
		return githash.NullOid, xerrors.Errorf("hash-object returned %q: %w", out, ErrCorrupted)
	}
	return oid, nil
}

// Close terminates the batch subprocess
func (b *Backend) Close() error {
	if b.cat == nil {
		return nil
	}
	err := b.stdin.Close()
	if waitErr := b.cat.Wait(); err == nil {
		err = waitErr
	}
	b.cat = nil
	return err
}
