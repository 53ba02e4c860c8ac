package revise

import (
	"fmt"
	"path/filepath"

	"golang.org/x/xerrors"
)

// CutCommit interactively splits a commit into two, letting the user
// pick which parts of the change land in the first half. Both halves
// get their messages edited before the split is accepted
func CutCommit(commit *Commit) (*Commit, error) {
	r := commit.repo

	fmt.Printf("Cutting commit %s\n", commit.Oid().Short())
	fmt.Println("Select changes to be included in part [1]:")

	parent, err := commit.Parent()
	if err != nil {
		return nil, err
	}
	baseTree, err := parent.Tree()
	if err != nil {
		return nil, err
	}
	finalTree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	// Stage the parent tree in an isolated index. The skip-worktree
	// bits keep `git reset --patch` from refreshing every entry
	// against the working tree, which it would otherwise insist on
	tmpdir, err := r.Tempdir()
	if err != nil {
		return nil, err
	}
	index, err := baseTree.ToIndex(filepath.Join(tmpdir, "TEMP_INDEX"), true)
	if err != nil {
		return nil, err
	}

	finalOid, err := finalTree.Persist()
	if err != nil {
		return nil, err
	}
	if err = index.run.Interactive("reset", "--patch", finalOid.String(), "--", "."); err != nil {
		return nil, err
	}

	midTree, err := index.Tree()
	if err != nil {
		return nil, err
	}

	if midTree.Oid() == baseTree.Oid() {
		return nil, xerrors.Errorf("cut part [1] is empty - aborting: %w", ErrUserAborted)
	}
	if midTree.Oid() == finalTree.Oid() {
		return nil, xerrors.Errorf("cut part [2] is empty - aborting: %w", ErrUserAborted)
	}

	part1, err := commit.Update(CommitUpdate{
		Tree:    midTree,
		Message: append([]byte("[1] "), commit.Message()...),
	})
	if err != nil {
		return nil, err
	}
	if part1, err = part1.EditCommitMessage(); err != nil {
		return nil, err
	}

	part2, err := commit.Update(CommitUpdate{
		Parents: []*Commit{part1},
		Message: append([]byte("[2] "), commit.Message()...),
	})
	if err != nil {
		return nil, err
	}
	return part2.EditCommitMessage()
}
