package revise

import (
	"fmt"
	"os"

	"github.com/mystor/git-revise/ginternals/githash"
	"golang.org/x/xerrors"
)

// Version of the tool
const Version = "0.7.0"

// StageAll stages every change to already-tracked files, the way
// `git add -u` does
func (r *Repository) StageAll() error {
	return r.git.Run("add", "-u")
}

// CommitRange returns the oldest-first list of commits reachable
// from tip down to, and not including, base
func CommitRange(base, tip *Commit) ([]*Commit, error) {
	var commits []*Commit
	for tip.Oid() != base.Oid() {
		commits = append(commits, tip)
		parent, err := tip.Parent()
		if err != nil {
			return nil, xerrors.Errorf("%s is not a linear descendant of %s: %w",
				commits[0].Oid().Short(), base.Oid().Short(), err)
		}
		tip = parent
	}
	// reverse into oldest-first order
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// LocalCommits returns the oldest-first chain of single-parent
// commits leading up to tip which are not present on any remote,
// along with the commit the chain sits on
func LocalCommits(r *Repository, tip *Commit) (base *Commit, commits []*Commit, err error) {
	// Track the current base commit we're expecting; it both becomes
	// the returned base and ensures the logged commits form a
	// single-parent chain from tip
	base = tip

	log, err := r.git.Output("log", tip.Oid().String(), "--not", "--remotes", "--pretty=%H")
	if err != nil {
		return nil, nil, err
	}
	if len(log) > 0 {
		for _, line := range splitLines(append(log, '\n')) {
			oid, err := githash.NewOidFromChars(line[:len(line)-1])
			if err != nil {
				return nil, nil, xerrors.Errorf("git log returned %q: %w", line, ErrCorrupted)
			}
			commit, err := r.GetCommitOid(oid)
			if err != nil {
				return nil, nil, err
			}
			if len(commit.parentOids) != 1 || commit.Oid() != base.Oid() {
				break
			}
			if base, err = commit.Parent(); err != nil {
				return nil, nil, err
			}
			commits = append(commits, commit)
		}
	}

	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return base, commits, nil
}

// UpdateHead points ref at new, warning when the final tree doesn't
// match the expected one (which means the working directory and
// index no longer line up with the rewritten history)
func UpdateHead(ref *Reference[*Commit], new *Commit, expected *Tree) error {
	oldOid := githash.NullOid
	if ref.IsSet() {
		oldOid = ref.Target.Oid()
	}
	fmt.Printf("Updating %s (%s => %s)\n", ref.Name, oldOid, new.Oid())
	if err := ref.Update(new, "git-revise rewrite"); err != nil {
		return err
	}

	if expected != nil && new.TreeOid() != expected.Oid() {
		fmt.Fprintf(os.Stderr,
			"(warning) unexpected final tree\n"+
				"(note) expected: %s\n"+
				"(note) actual: %s\n"+
				"(note) working directory & index have not been updated.\n"+
				"(note) use `git status` to see what has changed.\n",
			expected.Oid(), new.TreeOid())
	}
	return nil
}
