package revise

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"time"

	"github.com/mystor/git-revise/internal/gitcmd"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// ErrConflictParse is returned when a conflicted file carries
// malformed conflict markers. It only disables record/replay for
// that file; the merge itself proceeds through manual resolution
var ErrConflictParse = errors.New("malformed conflict markers")

// rerereEnabled reports whether recorded conflict resolutions are
// replayed. revise.rerere falls back to rerere.enabled; when neither
// is set, the presence of the rr-cache directory decides
func (r *Repository) rerereEnabled() bool {
	if enabled, ok := r.cfg.Rerere(); ok {
		return enabled
	}
	dir, err := r.GitPath("rr-cache")
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// normalizeConflictedFile canonicalizes the conflict blocks of a
// file and computes the content-addressed resolution identifier.
//
// Conflict hunks lose their labels, drop the diff3 original section,
// and are emitted in lexicographic order so that the identifier
// doesn't depend on which side of the merge produced which hunk.
// Each top-level hunk is fed NUL-terminated into one running SHA-1
func normalizeConflictedFile(data []byte) (normalized []byte, id string, err error) {
	h := sha1.New()
	out := new(bytes.Buffer)

	lines := splitLines(data)
	for i := 0; i < len(lines); {
		line := lines[i]
		switch {
		case isConflictMarker(line, '<'):
			block, consumed, err := normalizeConflictBlock(lines[i:], h)
			if err != nil {
				return nil, "", err
			}
			out.Write(block)
			i += consumed
		case isConflictMarker(line, '='), isConflictMarker(line, '>'), isConflictMarker(line, '|'):
			return nil, "", xerrors.Errorf("unexpected %q outside a conflict: %w", string(line[0]), ErrConflictParse)
		default:
			out.Write(line)
			i++
		}
	}
	return out.Bytes(), hex.EncodeToString(h.Sum(nil)), nil
}

// normalizeConflictBlock processes one conflict block starting at
// lines[0] (the "<<<<<<<" marker) and returns its canonical form and
// the number of input lines consumed. Nested blocks are normalized
// recursively and spliced into the enclosing hunk; only the
// outermost block's hunks feed the hasher, which is nil on recursive
// calls
func normalizeConflictBlock(lines [][]byte, h hash.Hash) (block []byte, consumed int, err error) {
	var hunks [2]bytes.Buffer
	side := 0
	discard := false

	for i := 1; i < len(lines); {
		line := lines[i]
		switch {
		case isConflictMarker(line, '<'):
			inner, n, err := normalizeConflictBlock(lines[i:], nil)
			if err != nil {
				return nil, 0, err
			}
			if !discard {
				hunks[side].Write(inner)
			}
			i += n

		case isConflictMarker(line, '|'):
			if side != 0 || discard {
				return nil, 0, xerrors.Errorf("unexpected original-section marker: %w", ErrConflictParse)
			}
			discard = true
			i++

		case isConflictMarker(line, '='):
			if side != 0 {
				return nil, 0, xerrors.Errorf("duplicate hunk separator: %w", ErrConflictParse)
			}
			side = 1
			discard = false
			i++

		case isConflictMarker(line, '>'):
			if side != 1 {
				return nil, 0, xerrors.Errorf("conflict terminator before separator: %w", ErrConflictParse)
			}
			one, two := hunks[0].Bytes(), hunks[1].Bytes()
			if bytes.Compare(one, two) > 0 {
				one, two = two, one
			}
			if h != nil {
				h.Write(one)
				h.Write([]byte{0})
				h.Write(two)
				h.Write([]byte{0})
			}
			out := new(bytes.Buffer)
			out.WriteString("<<<<<<<\n")
			out.Write(one)
			out.WriteString("=======\n")
			out.Write(two)
			out.WriteString(">>>>>>>\n")
			return out.Bytes(), i + 1, nil

		default:
			if !discard {
				hunks[side].Write(line)
			}
			i++
		}
	}
	return nil, 0, xerrors.Errorf("unterminated conflict: %w", ErrConflictParse)
}

// isConflictMarker reports whether a line is a conflict marker of
// the given kind: seven marker characters followed by end of line or
// a space-separated label
func isConflictMarker(line []byte, marker byte) bool {
	if len(line) < 7 {
		return false
	}
	for i := 0; i < 7; i++ {
		if line[i] != marker {
			return false
		}
	}
	rest := bytes.TrimRight(line[7:], "\r\n")
	return len(rest) == 0 || rest[0] == ' '
}

// splitLines splits data into lines, keeping the line terminators
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, data)
			break
		}
		lines = append(lines, data[:i+1])
		data = data[i+1:]
	}
	return lines
}

// replayResolution attempts to resolve a conflicted file from a
// previously recorded resolution. ok reports whether the returned
// bytes are a clean replay
func (r *Repository) replayResolution(path string, preimage []byte) (replayed []byte, ok bool, err error) {
	if !r.rerereEnabled() {
		return nil, false, nil
	}

	normalized, id, err := normalizeConflictedFile(preimage)
	if err != nil {
		logrus.Warnf("not replaying resolution for %s: %v", path, err)
		return nil, false, nil
	}

	cacheDir, err := r.GitPath(filepath.Join("rr-cache", id))
	if err != nil {
		return nil, false, err
	}
	if _, err = os.Stat(cacheDir); err != nil {
		return nil, false, nil
	}

	if !r.cfg.RerereAutoUpdate() {
		apply, err := promptYesNo(fmt.Sprintf("Apply recorded resolution for %q?", path), true)
		if err != nil {
			return nil, false, err
		}
		if !apply {
			return nil, false, nil
		}
	}

	recordedPre, err := os.ReadFile(filepath.Join(cacheDir, "preimage"))
	if err != nil {
		logrus.Warnf("unreadable recorded preimage for %s: %v", path, err)
		return nil, false, nil
	}
	postimagePath := filepath.Join(cacheDir, "postimage")
	recordedPost, err := os.ReadFile(postimagePath)
	if err != nil {
		logrus.Warnf("unreadable recorded postimage for %s: %v", path, err)
		return nil, false, nil
	}

	tmpdir, err := r.Tempdir()
	if err != nil {
		return nil, false, err
	}
	replayDir := filepath.Join(tmpdir, "rr-replay")
	if err = os.MkdirAll(replayDir, 0o755); err != nil {
		return nil, false, xerrors.Errorf("could not create replay directory: %w", err)
	}
	inputs := map[string][]byte{
		"postimage": recordedPost,
		"preimage":  recordedPre,
		"conflict":  normalized,
	}
	for name, body := range inputs {
		if err = os.WriteFile(filepath.Join(replayDir, name), body, 0o644); err != nil {
			return nil, false, xerrors.Errorf("could not write replay input %s: %w", name, err)
		}
	}

	// Merge the current conflict into the recorded resolution; a
	// clean result means the recorded resolution applies
	out, err := r.git.OutputWith(gitcmd.Opts{KeepNewline: true},
		"merge-file", "-q", "-p",
		"-Lresolved", "-Lconflicted (recorded)", "-Lconflicted (current)",
		filepath.Join(replayDir, "postimage"),
		filepath.Join(replayDir, "preimage"),
		filepath.Join(replayDir, "conflict"))
	if err != nil {
		code := gitcmd.ExitCode(err)
		if code > 0 && code <= 127 {
			return nil, false, nil
		}
		return nil, false, err
	}

	// Touch the postimage so cache expiry counts the reuse
	now := time.Now()
	if err := os.Chtimes(postimagePath, now, now); err != nil {
		logrus.Debugf("could not touch %s: %v", postimagePath, err)
	}
	fmt.Printf("Replayed resolution for %q\n", path)
	return out, true, nil
}

// recordResolution stores a successful manual resolution keyed by
// the normalized preimage. Failures only cost future replays, so
// they are logged rather than propagated
func (r *Repository) recordResolution(preimage, postimage []byte) {
	if !r.rerereEnabled() {
		return
	}

	normalized, id, err := normalizeConflictedFile(preimage)
	if err != nil {
		logrus.Warnf("not recording resolution: %v", err)
		return
	}

	unlock, err := r.lockMergeRR()
	if err != nil {
		logrus.Warnf("could not lock rr-cache, recording anyway: %v", err)
	} else {
		defer unlock()
	}

	cacheDir, err := r.GitPath(filepath.Join("rr-cache", id))
	if err != nil {
		logrus.Warnf("not recording resolution: %v", err)
		return
	}
	if err = os.MkdirAll(cacheDir, 0o755); err != nil {
		logrus.Warnf("could not create %s: %v", cacheDir, err)
		return
	}
	if err = os.WriteFile(filepath.Join(cacheDir, "preimage"), normalized, 0o644); err != nil {
		logrus.Warnf("could not record preimage: %v", err)
		return
	}
	if err = os.WriteFile(filepath.Join(cacheDir, "postimage"), postimage, 0o644); err != nil {
		logrus.Warnf("could not record postimage: %v", err)
	}
}

// lockMergeRR takes a best-effort exclusive lock for rr-cache
// writers, so concurrent processes can't interleave
// preimage/postimage pairs
func (r *Repository) lockMergeRR() (unlock func(), err error) {
	lockPath := filepath.Join(r.Gitdir, "MERGE_RR.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close() //nolint:errcheck // nothing was written
	return func() {
		if err := os.Remove(lockPath); err != nil {
			logrus.Debugf("could not remove %s: %v", lockPath, err)
		}
	}, nil
}
